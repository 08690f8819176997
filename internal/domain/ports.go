package domain

import "context"

type TeloRepository interface {
	// Write paths
	UpsertTelos(ctx context.Context, ts []Telo) (UpsertResult, error)
	CreateTelo(ctx context.Context, t Telo) (Telo, error)
	UpdateTelo(ctx context.Context, id int64, p TeloPatch) (Telo, error)
	DeactivateTelo(ctx context.Context, id int64) (Telo, error)
	SetCoords(ctx context.Context, id int64, c Coords) error

	// Read paths
	GetTeloBySlug(ctx context.Context, slug string) (Telo, error)
	GetTeloByID(ctx context.Context, id int64) (Telo, error)
	ListTelos(ctx context.Context, q TelosQuery) (TelosPage, error)
	CountTelosByCity(ctx context.Context, ciudad string) (int, error)
	MapPoints(ctx context.Context, ciudad string) ([]MapPoint, error)
	MissingCoords(ctx context.Context, ciudad string, limit int) ([]Telo, error)
}

type CityRepository interface {
	EnsureCity(ctx context.Context, nombre string, provincia *string) (Ciudad, error)
	IncrementSearch(ctx context.Context, slug string) (Ciudad, error)
	ListCities(ctx context.Context, orden string) ([]Ciudad, error)
	GetCityBySlug(ctx context.Context, slug string) (Ciudad, error)
}

type StatsRepository interface {
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
}

// Repository is the full storage surface the MySQL adapter implements.
type Repository interface {
	TeloRepository
	CityRepository
	StatsRepository
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Enricher asks the external workflow to look up telos for a city.
type Enricher interface {
	Enabled() bool
	RequestSearch(ctx context.Context, req SearchRequest) error
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (Coords, error)
}

type SearchRequest struct {
	Ciudad      string `json:"ciudad"`
	Slug        string `json:"slug"`
	JobID       string `json:"job_id"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// Read models & queries
type TelosQuery struct {
	Ciudad          *string
	Q               *string
	PrecioMin       *float64
	PrecioMax       *float64
	RatingMin       *float64
	Servicio        *string
	Verificado      *bool
	ConCoordenadas  bool
	IncluirInactivo bool
	Orden           string // rating|precio|nombre|recientes
	Page            int
	Limit           int
}

const (
	DefaultPageLimit = 24
	MaxPageLimit     = 100
)

// Clamp applies the default/max page size and a 1-based page.
func (q *TelosQuery) Clamp() {
	if q.Limit <= 0 {
		q.Limit = DefaultPageLimit
	}
	if q.Limit > MaxPageLimit {
		q.Limit = MaxPageLimit
	}
	if q.Page <= 0 {
		q.Page = 1
	}
}

type TelosPage struct {
	Items  []Telo `json:"items"`
	Total  int    `json:"total"`
	Page   int    `json:"page"`
	Limit  int    `json:"limit"`
	Fuente string `json:"fuente"`
}
