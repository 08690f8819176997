package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const probeTimeout = 3 * time.Second

type probe struct {
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type diagnosticsResponse struct {
	OK      bool             `json:"ok"`
	Checks  map[string]probe `json:"checks"`
	Webhook bool             `json:"webhook_configurado"`
	Limiter int              `json:"ciudades_en_espera"`
	Fuente  string           `json:"fuente"` // what listings are served from right now
}

// diagnostics pings every backing service in parallel. A failed probe is
// reported in the body; the endpoint itself only fails on bad auth.
func (h *Handlers) diagnostics(w http.ResponseWriter, r *http.Request) {
	targets := map[string]Pinger{"mysql": h.DB}
	if h.Cache != nil {
		targets["redis"] = h.Cache
	}

	var mu sync.Mutex
	out := diagnosticsResponse{OK: true, Checks: map[string]probe{}}
	g, ctx := errgroup.WithContext(r.Context())
	for name, p := range targets {
		name, p := name, p
		g.Go(func() error {
			res := runProbe(ctx, p)
			mu.Lock()
			out.Checks[name] = res
			if !res.OK {
				out.OK = false
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out.Webhook = h.S.WebhookEnabled()
	out.Limiter = h.S.TrackedCities()
	out.Fuente = "db"
	if !out.Checks["mysql"].OK {
		out.Fuente = "mock"
	}
	writeJSON(w, http.StatusOK, out)
}

func runProbe(ctx context.Context, p Pinger) probe {
	if p == nil {
		return probe{Error: "not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	start := time.Now()
	err := p.Ping(ctx)
	res := probe{OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}
