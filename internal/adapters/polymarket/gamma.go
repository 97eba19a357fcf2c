package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/alvariitoSW/produccion/internal/domain"
)

const gammaEventsPath = "/events"

// FetchEventBySlug resuelve un slug horario contra Gamma y devuelve el
// EventContext con condition ID y token IDs del CLOB.
//
// Devuelve (nil, nil) si el evento aún no existe en Gamma — los eventos
// horarios se crean poco antes de su hora, así que "not found" es normal
// durante el escaneo anticipado.
func (c *Client) FetchEventBySlug(ctx context.Context, slug string, start time.Time) (*domain.EventContext, error) {
	u := fmt.Sprintf("%s%s?slug=%s", c.gammaBase, gammaEventsPath, url.QueryEscape(slug))

	var resp gammaEventsResponse
	if err := c.get(ctx, c.gammaLimiter, u, &resp); err != nil {
		return nil, fmt.Errorf("gamma.FetchEventBySlug %q: %w", slug, err)
	}
	if len(resp) == 0 {
		slog.Debug("event not yet listed on gamma", "slug", slug)
		return nil, nil
	}

	ev, err := mapGammaEvent(resp[0], slug, start)
	if err != nil {
		return nil, fmt.Errorf("gamma.FetchEventBySlug: %w", err)
	}

	slog.Info("event resolved",
		"slug", slug,
		"condition_id", ev.ConditionID,
		"starts_in", start.Sub(time.Now().UTC()).Round(time.Second))
	return ev, nil
}
