package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/semaphore"

	"telos_booking/internal/adapters/webhook"
	"telos_booking/internal/domain"
)

type enrichStats struct {
	requested, skipped, failed atomic.Int64
}

func newEnrichCmd() *cobra.Command {
	var (
		cities  []string
		workers int
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Request external searches for cities that have no telos yet",
		Long: `enrich asks the enrichment webhook to look up telos for every given city
that has none stored. Without --cities it walks the known cities, most
searched first. Results arrive later through the webhook callback.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			hook := webhook.New(e.cfg.WebhookURL, e.cfg.WebhookSecret, e.cfg.WebhookRPS, e.cfg.WebhookTimeout)
			if !hook.Enabled() && !dryRun {
				return domain.ErrWebhookDisabled
			}
			if workers <= 0 {
				workers = e.cfg.EnrichWorkers
			}
			targets, err := enrichTargets(cmd.Context(), e.repo, cities)
			if err != nil {
				return err
			}
			callback := e.cfg.PublicBaseURL + "/api/webhook/telos"

			st := runEnrich(cmd.Context(), e.repo, hook, targets, workers, callback, dryRun)
			fmt.Fprintf(cmd.OutOrStdout(), "requested %d, skipped %d, failed %d\n",
				st.requested.Load(), st.skipped.Load(), st.failed.Load())
			if st.failed.Load() > 0 {
				return fmt.Errorf("%d cities failed", st.failed.Load())
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&cities, "cities", nil, "comma separated city names (default: every known city)")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel webhook calls (default ENRICH_WORKERS)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only print what would be requested")
	return cmd
}

func enrichTargets(ctx context.Context, repo domain.CityRepository, names []string) ([]string, error) {
	if len(names) > 0 {
		out := make([]string, 0, len(names))
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				out = append(out, n)
			}
		}
		return out, nil
	}
	cs, err := repo.ListCities(ctx, "busquedas")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		if c.Telos == 0 {
			out = append(out, c.Nombre)
		}
	}
	return out, nil
}

func runEnrich(ctx context.Context, repo domain.TeloRepository, hook domain.Enricher, cities []string, workers int, callback string, dryRun bool) *enrichStats {
	st := &enrichStats{}
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup

	for _, raw := range cities {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("enrich interrupted")
			break
		}
		wg.Add(1)
		go func(raw string) {
			defer wg.Done()
			defer sem.Release(1)

			name, err := domain.ValidateCityName(raw)
			if err != nil {
				st.failed.Add(1)
				log.Warn().Err(err).Str("ciudad", raw).Msg("invalid city")
				return
			}
			n, err := repo.CountTelosByCity(ctx, name)
			if err != nil {
				st.failed.Add(1)
				log.Warn().Err(err).Str("ciudad", name).Msg("count failed")
				return
			}
			if n > 0 {
				st.skipped.Add(1)
				log.Debug().Str("ciudad", name).Int("telos", n).Msg("city already has telos")
				return
			}
			req := domain.SearchRequest{Ciudad: name, Slug: domain.Slugify(name), JobID: uuid.NewString(), CallbackURL: callback}
			if dryRun {
				st.requested.Add(1)
				log.Info().Str("ciudad", name).Msg("would request search")
				return
			}
			if err := hook.RequestSearch(ctx, req); err != nil {
				st.failed.Add(1)
				log.Warn().Err(err).Str("ciudad", name).Msg("search request failed")
				return
			}
			st.requested.Add(1)
			log.Info().Str("ciudad", name).Str("job_id", req.JobID).Msg("search requested")
		}(raw)
	}

	wg.Wait()
	return st
}
