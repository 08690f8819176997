package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"telos_booking/internal/adapters/observability"
	"telos_booking/internal/domain"
)

// geocode at most this many telos per webhook batch; the public geocoder
// allows about one request per second
const maxGeocodePerBatch = 10

// upper bound for the background geocoding that follows an ingest
const geocodeBudget = 2 * time.Minute

type CommandService struct {
	repo     domain.Repository
	cache    domain.Cache
	geocoder domain.Geocoder // optional

	wg sync.WaitGroup
}

func NewCommandService(r domain.Repository, c domain.Cache, g domain.Geocoder) *CommandService {
	return &CommandService{repo: r, cache: c, geocoder: g}
}

func (s *CommandService) CreateTelo(ctx context.Context, t domain.Telo) (domain.Telo, error) {
	t.ID = 0
	t.Activo = true
	t.Fuente = domain.SourceManual
	if err := t.Sanitize(); err != nil {
		return domain.Telo{}, err
	}
	if _, err := s.repo.EnsureCity(ctx, t.Ciudad, nil); err != nil {
		return domain.Telo{}, err
	}
	out, err := s.repo.CreateTelo(ctx, t)
	if err != nil {
		return domain.Telo{}, err
	}
	s.invalidate(ctx, []string{out.Slug}, []string{out.Ciudad})
	return out, nil
}

func (s *CommandService) UpdateTelo(ctx context.Context, id int64, p domain.TeloPatch) (domain.Telo, error) {
	before, err := s.repo.GetTeloByID(ctx, id)
	if err != nil {
		return domain.Telo{}, err
	}
	if p.Ciudad != nil {
		if _, err := s.repo.EnsureCity(ctx, strings.TrimSpace(*p.Ciudad), nil); err != nil {
			return domain.Telo{}, err
		}
	}
	after, err := s.repo.UpdateTelo(ctx, id, p)
	if err != nil {
		return domain.Telo{}, err
	}
	// slug and city may both have moved
	s.invalidate(ctx, []string{before.Slug, after.Slug}, []string{before.Ciudad, after.Ciudad})
	return after, nil
}

func (s *CommandService) DeactivateTelo(ctx context.Context, id int64) (domain.Telo, error) {
	t, err := s.repo.DeactivateTelo(ctx, id)
	if err != nil {
		return domain.Telo{}, err
	}
	s.invalidate(ctx, []string{t.Slug}, []string{t.Ciudad})
	return t, nil
}

// IngestWebhook maps and upserts a webhook callback. Items that cannot be
// mapped are counted as skipped, never fatal.
func (s *CommandService) IngestWebhook(ctx context.Context, p WebhookPayload) (domain.UpsertResult, error) {
	var res domain.UpsertResult
	fallbackCity := strings.Join(strings.Fields(p.Ciudad), " ")

	seen := map[string]int{}
	var batch []domain.Telo
	for _, raw := range p.Telos {
		t, err := mapWebhookTelo(raw, fallbackCity)
		if err != nil {
			res.Skipped++
			log.Debug().Err(err).Str("job_id", p.JobID).Msg("webhook telo skipped")
			continue
		}
		// same key twice in one batch: keep the first, fill its gaps
		if i, ok := seen[t.Slug]; ok {
			mergeMissing(&batch[i], t)
			res.Skipped++
			continue
		}
		seen[t.Slug] = len(batch)
		batch = append(batch, t)
	}

	cities := map[string]struct{}{}
	for _, t := range batch {
		if _, ok := cities[t.Ciudad]; ok {
			continue
		}
		cities[t.Ciudad] = struct{}{}
		if _, err := s.repo.EnsureCity(ctx, t.Ciudad, nil); err != nil {
			return res, fmt.Errorf("ensure city %q: %w", t.Ciudad, err)
		}
	}

	up, err := s.repo.UpsertTelos(ctx, batch)
	if err != nil {
		return res, err
	}
	res.Inserted, res.Updated = up.Inserted, up.Updated

	observability.ObserveIngest("inserted", res.Inserted)
	observability.ObserveIngest("updated", res.Updated)
	observability.ObserveIngest("skipped", res.Skipped)

	slugs := make([]string, 0, len(batch))
	for _, t := range batch {
		slugs = append(slugs, t.Slug)
	}
	cityNames := make([]string, 0, len(cities))
	for c := range cities {
		cityNames = append(cityNames, c)
	}
	s.invalidate(ctx, slugs, cityNames)
	s.geocodeLater(ctx, batch)

	log.Info().
		Str("job_id", p.JobID).
		Str("ciudad", fallbackCity).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Msg("webhook ingest")
	return res, nil
}

func mergeMissing(dst *domain.Telo, src domain.Telo) {
	if dst.Telefono == nil {
		dst.Telefono = src.Telefono
	}
	if dst.Precio == nil {
		dst.Precio = src.Precio
	}
	if dst.Rating == nil {
		dst.Rating = src.Rating
	}
	if dst.Descripcion == nil {
		dst.Descripcion = src.Descripcion
	}
	if dst.ImagenURL == nil {
		dst.ImagenURL = src.ImagenURL
	}
	if dst.Lat == nil {
		dst.Lat, dst.Lng = src.Lat, src.Lng
	}
	if len(dst.Servicios) == 0 {
		dst.Servicios = src.Servicios
	}
}

func geocodeQuery(t domain.Telo) string {
	return t.Direccion + ", " + t.Ciudad + ", Argentina"
}

// geocodeLater fills missing coordinates after the batch is stored, so a
// slow geocoder never holds the callback request open. Best-effort.
func (s *CommandService) geocodeLater(ctx context.Context, batch []domain.Telo) {
	if s.geocoder == nil {
		return
	}
	var slugs []string
	for _, t := range batch {
		if t.Lat == nil && len(slugs) < maxGeocodePerBatch {
			slugs = append(slugs, t.Slug)
		}
	}
	if len(slugs) == 0 {
		return
	}

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), geocodeBudget)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		var done, cities []string
		for _, slug := range slugs {
			t, err := s.repo.GetTeloBySlug(bg, slug)
			if err != nil || t.Lat != nil {
				if bg.Err() != nil {
					break
				}
				continue
			}
			c, err := s.geocoder.Geocode(bg, geocodeQuery(t))
			if err != nil {
				if bg.Err() != nil {
					log.Warn().Err(err).Int("resolved", len(done)).Msg("geocode budget exhausted")
					break
				}
				log.Debug().Err(err).Str("slug", slug).Msg("geocode miss")
				continue
			}
			if err := s.repo.SetCoords(bg, t.ID, c); err != nil {
				log.Warn().Err(err).Str("slug", slug).Msg("store coords failed")
				continue
			}
			done = append(done, slug)
			cities = append(cities, t.Ciudad)
		}
		if len(done) > 0 {
			s.invalidate(bg, done, cities)
		}
	}()
}

// Wait blocks until background geocoding finishes (shutdown, tests).
func (s *CommandService) Wait() { s.wg.Wait() }

type BackfillResult struct {
	Checked  int `json:"revisados"`
	Resolved int `json:"resueltos"`
	Failed   int `json:"fallidos"`
}

// BackfillCoords geocodes stored telos without coordinates for one city
// (or every city when ciudad is empty).
func (s *CommandService) BackfillCoords(ctx context.Context, ciudad string, limit int) (BackfillResult, error) {
	var res BackfillResult
	if s.geocoder == nil {
		return res, fmt.Errorf("%w: no geocoder configured", domain.ErrInvalid)
	}
	ts, err := s.repo.MissingCoords(ctx, ciudad, limit)
	if err != nil {
		return res, err
	}
	var slugs, cities []string
	for _, t := range ts {
		res.Checked++
		c, err := s.geocoder.Geocode(ctx, geocodeQuery(t))
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			if !errors.Is(err, domain.ErrNotFound) {
				log.Warn().Err(err).Str("slug", t.Slug).Msg("geocode failed")
			}
			continue
		}
		if err := s.repo.SetCoords(ctx, t.ID, c); err != nil {
			return res, err
		}
		res.Resolved++
		slugs = append(slugs, t.Slug)
		cities = append(cities, t.Ciudad)
	}
	s.invalidate(ctx, slugs, cities)
	return res, nil
}

// invalidate drops every cache entry a telo write can make stale.
func (s *CommandService) invalidate(ctx context.Context, slugs, cities []string) {
	if s.cache == nil {
		return
	}
	for _, sl := range slugs {
		_ = s.cache.Del(ctx, teloKey(sl))
	}
	for _, c := range cities {
		cs := domain.Slugify(c)
		_ = s.cache.Del(ctx, cityKey(cs))
		_ = s.cache.Del(ctx, mapKey(cs))
	}
	_ = s.cache.Del(ctx, mapKey(""))
	_ = s.cache.Del(ctx, citiesKey("nombre"))
	_ = s.cache.Del(ctx, citiesKey("busquedas"))
}
