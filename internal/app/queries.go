package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"telos_booking/internal/adapters/observability"
	"telos_booking/internal/domain"
)

const fuenteDB = "db"

// listing caches are short lived; single telo and city pages use cacheTTL
const listCacheTTL = 60 * time.Second

func teloKey(slug string) string    { return "telo:" + slug }
func cityKey(slug string) string    { return "city:" + slug }
func citiesKey(orden string) string { return "cities:" + orden }
func mapKey(citySlug string) string {
	if citySlug == "" {
		citySlug = "all"
	}
	return "map:" + citySlug
}

type QueryService struct {
	repo     domain.Repository
	cache    domain.Cache
	mock     *MockData
	cacheTTL time.Duration
}

func NewQueryService(r domain.Repository, c domain.Cache, mock *MockData, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, mock: mock, cacheTTL: ttl}
}

func (s *QueryService) GetTelo(ctx context.Context, slug string) (domain.Telo, error) {
	key := teloKey(slug)
	var t domain.Telo
	if ok, _ := s.cache.Get(ctx, key, &t); ok {
		return t, nil
	}
	t, err := s.repo.GetTeloBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			if mt, ok := s.mock.BySlug(slug); ok {
				return mt, nil
			}
			return domain.Telo{}, err
		}
		if mt, ok := s.mock.BySlug(slug); ok {
			log.Warn().Err(err).Str("slug", slug).Msg("get telo failed, serving mock")
			observability.ObserveMockFallback("telo")
			return mt, nil
		}
		return domain.Telo{}, err
	}
	// soft-deleted telos stay reachable for admins by id only
	if !t.Activo {
		return domain.Telo{}, domain.ErrNotFound
	}
	_ = s.cache.Set(ctx, key, t, int(s.cacheTTL.Seconds()))
	return t, nil
}

// ListTelos never fails: a storage error degrades to mock data.
func (s *QueryService) ListTelos(ctx context.Context, q domain.TelosQuery) domain.TelosPage {
	q.Clamp()
	page, err := s.repo.ListTelos(ctx, q)
	if err != nil {
		log.Error().Err(err).Msg("list telos failed, serving mock")
		observability.ObserveMockFallback("telos")
		return s.mock.List(q)
	}
	page.Fuente = fuenteDB
	return page
}

func (s *QueryService) ListCities(ctx context.Context, orden string) ([]domain.Ciudad, string) {
	if orden != "busquedas" {
		orden = "nombre"
	}
	key := citiesKey(orden)
	var cs []domain.Ciudad
	if ok, _ := s.cache.Get(ctx, key, &cs); ok {
		return cs, fuenteDB
	}
	cs, err := s.repo.ListCities(ctx, orden)
	if err != nil {
		log.Error().Err(err).Msg("list cities failed, serving mock")
		observability.ObserveMockFallback("ciudades")
		return s.mock.Cities(), domain.SourceMock
	}
	_ = s.cache.Set(ctx, key, cs, int(listCacheTTL.Seconds()))
	return cs, fuenteDB
}

// GetCity builds the city page. A city without stored telos is still a
// valid page; the client decides whether to trigger a search.
func (s *QueryService) GetCity(ctx context.Context, slug string) (domain.CityPage, error) {
	key := cityKey(slug)
	var cp domain.CityPage
	if ok, _ := s.cache.Get(ctx, key, &cp); ok {
		return cp, nil
	}

	c, err := s.repo.GetCityBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.CityPage{}, err
		}
		return s.mockCity(slug, err)
	}
	ciudad := c.Slug
	page, err := s.repo.ListTelos(ctx, domain.TelosQuery{Ciudad: &ciudad, Limit: domain.MaxPageLimit})
	if err != nil {
		return s.mockCity(slug, err)
	}
	cp = domain.CityPage{Ciudad: c, Telos: page.Items, Fuente: fuenteDB}
	_ = s.cache.Set(ctx, key, cp, int(s.cacheTTL.Seconds()))
	return cp, nil
}

func (s *QueryService) mockCity(slug string, cause error) (domain.CityPage, error) {
	ts := s.mock.ForCity(slug)
	if len(ts) == 0 {
		return domain.CityPage{}, fmt.Errorf("city %s: %w", slug, cause)
	}
	log.Warn().Err(cause).Str("slug", slug).Msg("city page failed, serving mock")
	observability.ObserveMockFallback("ciudad")
	return domain.CityPage{
		Ciudad: domain.Ciudad{Nombre: ts[0].Ciudad, Slug: domain.Slugify(ts[0].Ciudad), Telos: len(ts)},
		Telos:  ts,
		Fuente: domain.SourceMock,
	}, nil
}

func (s *QueryService) MapPoints(ctx context.Context, ciudad string) ([]domain.MapPoint, string) {
	key := mapKey(domain.Slugify(ciudad))
	var pts []domain.MapPoint
	if ok, _ := s.cache.Get(ctx, key, &pts); ok {
		return pts, fuenteDB
	}
	pts, err := s.repo.MapPoints(ctx, ciudad)
	if err != nil {
		log.Error().Err(err).Str("ciudad", ciudad).Msg("map points failed, serving mock")
		observability.ObserveMockFallback("mapa")
		return s.mock.MapPoints(ciudad), domain.SourceMock
	}
	_ = s.cache.Set(ctx, key, pts, int(listCacheTTL.Seconds()))
	return pts, fuenteDB
}

func (s *QueryService) Stats(ctx context.Context) (domain.Stats, error) {
	return s.repo.Stats(ctx)
}
