package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alvariitoSW/produccion/internal/domain"
	"github.com/alvariitoSW/produccion/internal/ports"
)

const (
	telegramAPIBase  = "https://api.telegram.org"
	telegramRetries  = 3
	telegramWait     = 2 * time.Second
	telegramHTTPWait = 10 * time.Second
)

// Telegram implementa ports.Notifier sobre la Bot API de Telegram.
// Todos los envíos son best-effort: un fallo se loguea y se descarta.
type Telegram struct {
	base   string
	token  string
	chatID string
	http   *http.Client
}

// NewTelegram crea el notificador. base vacío usa la API oficial.
func NewTelegram(base, token, chatID string) *Telegram {
	if base == "" {
		base = telegramAPIBase
	}
	return &Telegram{
		base:   base,
		token:  token,
		chatID: chatID,
		http:   &http.Client{Timeout: telegramHTTPWait},
	}
}

// Send envía un mensaje de texto con reintentos. El client HTTP se recrea
// tras un fallo: las conexiones keep-alive de Telegram caducan en silencio.
func (t *Telegram) Send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.base, t.token)
	form := url.Values{
		"chat_id": {t.chatID},
		"text":    {text},
	}

	var lastErr error
	for attempt := 1; attempt <= telegramRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
			strings.NewReader(form.Encode()))
		if err != nil {
			return fmt.Errorf("notify.Send: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := t.http.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Errorf("telegram status %d", resp.StatusCode)
		} else {
			lastErr = err
		}

		t.http = &http.Client{Timeout: telegramHTTPWait}
		if attempt < telegramRetries {
			select {
			case <-time.After(telegramWait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("notify.Send: after %d attempts: %w", telegramRetries, lastErr)
}

// send es Send sin propagación de error, para los mensajes best-effort.
func (t *Telegram) send(ctx context.Context, text string) {
	if err := t.Send(ctx, text); err != nil {
		slog.Warn("telegram send failed", "err", err)
	}
}

func (t *Telegram) Startup(ctx context.Context, balance float64) {
	t.send(ctx, fmt.Sprintf("🤖 Bot arrancado\n💰 Balance: %.2f USDC", balance))
}

func (t *Telegram) EventDiscovered(ctx context.Context, ev *domain.EventContext) {
	t.send(ctx, fmt.Sprintf("🔍 Evento descubierto: %s\n⏰ Empieza: %s",
		ev.Slug, ev.StartTime.Format("15:04 MST")))
}

func (t *Telegram) LadderPlaced(ctx context.Context, slug string, orders int, balance float64) {
	t.send(ctx, fmt.Sprintf("📊 Escalera colocada en %s\n📝 %d órdenes\n💰 Balance: %.2f USDC",
		slug, orders, balance))
}

func (t *Telegram) SellPlaced(ctx context.Context, side domain.Side, entryPrice, exitPrice, size float64, slug string) {
	t.send(ctx, fmt.Sprintf("💸 Venta colocada: %.4f %s @ %.2f (entrada media %.2f)\n📍 %s",
		size, side, exitPrice, entryPrice, slug))
}

func (t *Telegram) SellFill(ctx context.Context, order *domain.TrackedOrder, pnl float64, stopLoss bool) {
	icon := "✅"
	label := "Venta ejecutada"
	if stopLoss {
		icon = "🛑"
		label = "Stop-loss ejecutado"
	}
	t.send(ctx, fmt.Sprintf("%s %s: %.4f %s @ %.2f\n📈 PnL: %+.4f USDC\n📍 %s",
		icon, label, order.Size, order.Side, order.Price, pnl, order.EventSlug))
}

func (t *Telegram) PhaseTransition(ctx context.Context, ev *domain.EventContext, cancelled int) {
	t.send(ctx, fmt.Sprintf("🔔 %s está LIVE\n❌ %d compras canceladas, solo quedan salidas",
		ev.Slug, cancelled))
}

func (t *Telegram) CycleReport(ctx context.Context, result *domain.CycleResult) {
	if result == nil {
		return
	}
	t.send(ctx, fmt.Sprintf(
		"🏁 Ciclo completado: %s\n🟢 Fills YES: %d | 🔴 Fills NO: %d\n💵 PnL total: %+.4f USDC",
		result.EventSlug, len(result.FillsYes), len(result.FillsNo), result.TotalPnL))
}

var _ ports.Notifier = (*Telegram)(nil)
