package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"telos_booking/internal/adapters/observability"
	"telos_booking/internal/domain"
)

// Trigger outcomes, also used as metric labels.
const (
	StatusCached    = "cached"
	StatusTriggered = "triggered"
	StatusPending   = "pending"
	StatusDisabled  = "disabled"
	StatusError     = "error"
)

type CheckResult struct {
	Ciudad string `json:"ciudad"`
	Slug   string `json:"slug"`
	Count  int    `json:"count"`
	Exists bool   `json:"exists"`
}

type TriggerResult struct {
	Status string        `json:"status"`
	Ciudad string        `json:"ciudad"`
	Slug   string        `json:"slug"`
	JobID  string        `json:"job_id,omitempty"`
	Count  int           `json:"count"`
	Telos  []domain.Telo `json:"telos"`
	Fuente string        `json:"fuente"`
}

type SearchServiceConfig struct {
	CallbackURL    string
	WebhookTimeout time.Duration
}

// SearchService decides between stored listings and an external search.
// The webhook call is fire-and-forget: no queue, no retries.
type SearchService struct {
	repo     domain.Repository
	cache    domain.Cache
	enricher domain.Enricher
	limiter  *CityLimiter
	mock     *MockData
	cfg      SearchServiceConfig
	newJobID func() string

	wg sync.WaitGroup
}

func NewSearchService(r domain.Repository, c domain.Cache, e domain.Enricher, l *CityLimiter, m *MockData, cfg SearchServiceConfig) *SearchService {
	if cfg.WebhookTimeout <= 0 {
		cfg.WebhookTimeout = 30 * time.Second
	}
	return &SearchService{
		repo: r, cache: c, enricher: e, limiter: l, mock: m, cfg: cfg,
		newJobID: func() string { return uuid.NewString() },
	}
}

// Register records that someone searched for a city, creating it if needed.
func (s *SearchService) Register(ctx context.Context, ciudad string) (domain.Ciudad, error) {
	name, err := domain.ValidateCityName(ciudad)
	if err != nil {
		return domain.Ciudad{}, err
	}
	c, err := s.repo.EnsureCity(ctx, name, nil)
	if err != nil {
		return domain.Ciudad{}, err
	}
	c, err = s.repo.IncrementSearch(ctx, c.Slug)
	if err != nil {
		return domain.Ciudad{}, err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, citiesKey("busquedas"))
	}
	return c, nil
}

func (s *SearchService) Check(ctx context.Context, ciudad string) (CheckResult, error) {
	name, err := domain.ValidateCityName(ciudad)
	if err != nil {
		return CheckResult{}, err
	}
	n, err := s.repo.CountTelosByCity(ctx, name)
	if err != nil {
		return CheckResult{}, err
	}
	return CheckResult{Ciudad: name, Slug: domain.Slugify(name), Count: n, Exists: n > 0}, nil
}

// Trigger serves stored telos when the city has any; otherwise it starts
// the external search in the background and answers with mock data.
func (s *SearchService) Trigger(ctx context.Context, ciudad string) (TriggerResult, error) {
	name, err := domain.ValidateCityName(ciudad)
	if err != nil {
		return TriggerResult{}, err
	}
	slug := domain.Slugify(name)
	res := TriggerResult{Ciudad: name, Slug: slug}

	n, err := s.repo.CountTelosByCity(ctx, name)
	if err != nil {
		log.Error().Err(err).Str("ciudad", name).Msg("existence check failed, serving mock")
		return s.withMock(res, StatusError), nil
	}
	if n > 0 {
		page, err := s.repo.ListTelos(ctx, domain.TelosQuery{Ciudad: &slug})
		if err != nil {
			log.Error().Err(err).Str("ciudad", name).Msg("list after check failed, serving mock")
			return s.withMock(res, StatusError), nil
		}
		res.Status, res.Count, res.Telos, res.Fuente = StatusCached, n, page.Items, fuenteDB
		observability.ObserveSearch(StatusCached)
		return res, nil
	}

	if s.enricher == nil || !s.enricher.Enabled() {
		return s.withMock(res, StatusDisabled), nil
	}
	if !s.limiter.Allow(slug) {
		return s.withMock(res, StatusPending), nil
	}

	res.JobID = s.newJobID()
	s.dispatch(ctx, domain.SearchRequest{
		Ciudad:      name,
		Slug:        slug,
		JobID:       res.JobID,
		CallbackURL: s.cfg.CallbackURL,
	})
	return s.withMock(res, StatusTriggered), nil
}

func (s *SearchService) withMock(res TriggerResult, status string) TriggerResult {
	res.Status = status
	res.Telos = s.mock.ForCityOrGeneric(res.Slug)
	res.Fuente = domain.SourceMock
	observability.ObserveSearch(status)
	return res
}

// dispatch runs the webhook call detached from the request: the request
// context's values are kept (request id) but not its cancellation.
func (s *SearchService) dispatch(ctx context.Context, req domain.SearchRequest) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WebhookTimeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		start := time.Now()
		if err := s.enricher.RequestSearch(bg, req); err != nil {
			// let the next visitor try again
			s.limiter.Forget(req.Slug)
			ev := log.Warn()
			if errors.Is(err, context.DeadlineExceeded) {
				ev = log.Error()
			}
			ev.Err(err).Str("ciudad", req.Ciudad).Str("job_id", req.JobID).Msg("external search request failed")
			return
		}
		log.Info().
			Str("ciudad", req.Ciudad).
			Str("job_id", req.JobID).
			Dur("duration", time.Since(start)).
			Msg("external search requested")
	}()
}

// Wait blocks until in-flight webhook calls finish (shutdown, tests).
func (s *SearchService) Wait() { s.wg.Wait() }

// TrackedCities is the number of cities currently held by the limiter.
func (s *SearchService) TrackedCities() int { return s.limiter.Len() }

// WebhookEnabled reports whether an enrichment webhook is configured.
func (s *SearchService) WebhookEnabled() bool { return s.enricher != nil && s.enricher.Enabled() }
