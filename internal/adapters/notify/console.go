package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alvariitoSW/produccion/internal/domain"
	"github.com/alvariitoSW/produccion/internal/ports"
)

// Console implementa ports.Notifier escribiendo a stdout. Es el notificador
// que siempre está activo; Telegram es opcional encima.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

func (c *Console) stamp() string {
	return time.Now().Format("15:04:05")
}

// Send imprime un mensaje de texto tal cual.
func (c *Console) Send(_ context.Context, text string) error {
	fmt.Fprintf(c.out, "[%s] %s\n", c.stamp(), text)
	return nil
}

func (c *Console) Startup(_ context.Context, balance float64) {
	fmt.Fprintf(c.out, "[%s] bot arrancado — balance $%.2f USDC\n", c.stamp(), balance)
}

func (c *Console) EventDiscovered(_ context.Context, ev *domain.EventContext) {
	fmt.Fprintf(c.out, "[%s] evento descubierto %s (empieza %s)\n",
		c.stamp(), ev.Slug, ev.StartTime.Format("15:04"))
}

func (c *Console) LadderPlaced(_ context.Context, slug string, orders int, balance float64) {
	fmt.Fprintf(c.out, "[%s] escalera en %s: %d órdenes, balance $%.2f\n",
		c.stamp(), slug, orders, balance)
}

func (c *Console) SellPlaced(_ context.Context, side domain.Side, entryPrice, exitPrice, size float64, slug string) {
	fmt.Fprintf(c.out, "[%s] venta %s %.4f @ %.2f (entrada %.2f) — %s\n",
		c.stamp(), side, size, exitPrice, entryPrice, slug)
}

func (c *Console) SellFill(_ context.Context, order *domain.TrackedOrder, pnl float64, stopLoss bool) {
	label := "venta"
	if stopLoss {
		label = "STOP-LOSS"
	}
	fmt.Fprintf(c.out, "[%s] %s ejecutada %s %.4f @ %.2f — PnL %+.4f — %s\n",
		c.stamp(), label, order.Side, order.Size, order.Price, pnl, order.EventSlug)
}

func (c *Console) PhaseTransition(_ context.Context, ev *domain.EventContext, cancelled int) {
	fmt.Fprintf(c.out, "[%s] %s LIVE — %d compras canceladas\n",
		c.stamp(), ev.Slug, cancelled)
}

// CycleReport imprime la tabla resumen de un ciclo completado.
func (c *Console) CycleReport(_ context.Context, result *domain.CycleResult) {
	if result == nil {
		return
	}

	fmt.Fprintf(c.out, "\n[%s] ciclo completado: %s\n", c.stamp(), result.EventSlug)

	table := tablewriter.NewWriter(c.out)
	table.Header("Lado", "Fills", "Entradas")

	table.Append("YES", fmt.Sprintf("%d", len(result.FillsYes)), entriesLabel(result.FillsYes))
	table.Append("NO", fmt.Sprintf("%d", len(result.FillsNo)), entriesLabel(result.FillsNo))
	table.Render()

	duration := result.EndTime.Sub(result.StartTime).Round(time.Second)
	fmt.Fprintf(c.out, "  PnL total: $%+.4f | fills: %d | duración: %s\n\n",
		result.TotalPnL, result.TotalFills(), duration)
}

// entriesLabel lista los precios de entrada, acotado para no romper la tabla.
func entriesLabel(fills []float64) string {
	if len(fills) == 0 {
		return "-"
	}
	out := ""
	for i, f := range fills {
		if i >= 8 {
			out += fmt.Sprintf(" +%d más", len(fills)-i)
			break
		}
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%.2f", f)
	}
	return out
}

var _ ports.Notifier = (*Console)(nil)
