package scanner

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/alvariitoSW/produccion/internal/domain"
	"github.com/alvariitoSW/produccion/internal/ports"
)

// Config contiene la configuración del scanner de eventos.
type Config struct {
	// Asset es el subyacente del evento horario, p.ej. "bitcoin".
	Asset     string
	LookAhead time.Duration
	MaxEvents int
}

// DefaultConfig devuelve una configuración sensata para producción.
func DefaultConfig() Config {
	return Config{
		Asset:     "bitcoin",
		LookAhead: 24 * time.Hour,
		MaxEvents: 2,
	}
}

// Scanner descubre eventos horarios generando sus slugs de forma determinista
// y resolviéndolos contra Gamma. Implementa ports.EventSource.
//
// No es concurrente: el orquestador lo llama siempre desde el mismo loop.
type Scanner struct {
	cfg     Config
	fetcher ports.EventFetcher
	tracked map[string]*domain.EventContext
}

// New crea un Scanner con el fetcher inyectado.
func New(cfg Config, fetcher ports.EventFetcher) *Scanner {
	if cfg.Asset == "" {
		cfg.Asset = "bitcoin"
	}
	return &Scanner{
		cfg:     cfg,
		fetcher: fetcher,
		tracked: make(map[string]*domain.EventContext),
	}
}

// Scan genera los slugs de las próximas horas y devuelve los eventos recién
// descubiertos, más cercanos primero. Respeta el límite de eventos activos.
func (s *Scanner) Scan(ctx context.Context) []*domain.EventContext {
	now := time.Now().UTC()

	var discovered []*domain.EventContext
	for _, start := range UpcomingHours(now, s.cfg.LookAhead) {
		if len(s.tracked) >= s.cfg.MaxEvents {
			break
		}

		slug := SlugFor(s.cfg.Asset, start)
		if _, ok := s.tracked[slug]; ok {
			continue
		}
		if domain.PhaseAt(start, now) != domain.PhasePreMarket {
			// La hora en curso ya está LIVE: no hay ventana de acumulación.
			continue
		}

		ev, err := s.fetcher.FetchEventBySlug(ctx, slug, start)
		if err != nil {
			slog.Warn("event fetch failed", "slug", slug, "err", err)
			continue
		}
		if ev == nil {
			continue // aún no listado en Gamma
		}

		s.tracked[slug] = ev
		discovered = append(discovered, ev)
	}

	if len(discovered) > 0 {
		slog.Info("scan complete",
			"discovered", len(discovered), "tracked", len(s.tracked))
	}
	return discovered
}

// Active devuelve todos los eventos en seguimiento, más cercanos primero.
func (s *Scanner) Active() []*domain.EventContext {
	events := make([]*domain.EventContext, 0, len(s.tracked))
	for _, ev := range s.tracked {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].StartTime.Before(events[j].StartTime)
	})
	return events
}

// UpdatePhases re-deriva la fase de cada evento desde el reloj y devuelve los
// que acaban de pasar de PRE_MARKET a LIVE.
func (s *Scanner) UpdatePhases(now time.Time) []*domain.EventContext {
	var transitioned []*domain.EventContext
	for _, ev := range s.tracked {
		before := ev.Phase
		after := ev.UpdatePhase(now)
		if before == domain.PhasePreMarket && after != domain.PhasePreMarket {
			transitioned = append(transitioned, ev)
		}
	}
	sort.Slice(transitioned, func(i, j int) bool {
		return transitioned[i].StartTime.Before(transitioned[j].StartTime)
	})
	return transitioned
}

// Remove deja de seguir un evento completado.
func (s *Scanner) Remove(slug string) {
	delete(s.tracked, slug)
}
