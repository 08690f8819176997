package app

import (
	_ "embed"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"telos_booking/internal/domain"
)

//go:embed mockdata/telos.json
var mockTelosJSON []byte

const genericMockSize = 6

// MockData is the static dataset served when storage is unavailable or a
// city has not been enriched yet. Read-only after construction.
type MockData struct {
	telos []domain.Telo
}

func LoadMockData() (*MockData, error) {
	var ts []domain.Telo
	if err := json.Unmarshal(mockTelosJSON, &ts); err != nil {
		return nil, err
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range ts {
		ts[i].ID = -int64(i + 1) // never collides with a stored row
		ts[i].Activo = true
		ts[i].Fuente = domain.SourceMock
		ts[i].CreatedAt, ts[i].UpdatedAt = now, now
		if err := ts[i].Sanitize(); err != nil {
			return nil, err
		}
	}
	return &MockData{telos: ts}, nil
}

func MustLoadMockData() *MockData {
	m, err := LoadMockData()
	if err != nil {
		panic("mock data: " + err.Error())
	}
	return m
}

// All returns a copy, so callers may retag Fuente (seeding) freely.
func (m *MockData) All() []domain.Telo {
	return append([]domain.Telo(nil), m.telos...)
}

func (m *MockData) ForCity(ciudad string) []domain.Telo {
	key := domain.Normalize(strings.ReplaceAll(ciudad, "-", " "))
	out := []domain.Telo{}
	for _, t := range m.telos {
		if domain.Normalize(t.Ciudad) == key {
			out = append(out, t)
		}
	}
	return out
}

// ForCityOrGeneric falls back to a small generic sample for unknown cities.
func (m *MockData) ForCityOrGeneric(ciudad string) []domain.Telo {
	if ts := m.ForCity(ciudad); len(ts) > 0 {
		return ts
	}
	n := genericMockSize
	if n > len(m.telos) {
		n = len(m.telos)
	}
	return append([]domain.Telo(nil), m.telos[:n]...)
}

func (m *MockData) BySlug(slug string) (domain.Telo, bool) {
	for _, t := range m.telos {
		if t.Slug == slug {
			return t, true
		}
	}
	return domain.Telo{}, false
}

// List applies the subset of TelosQuery filters that make sense offline.
func (m *MockData) List(q domain.TelosQuery) domain.TelosPage {
	q.Clamp()
	var items []domain.Telo
	for _, t := range m.telos {
		if q.Ciudad != nil && *q.Ciudad != "" &&
			domain.Normalize(t.Ciudad) != domain.Normalize(strings.ReplaceAll(*q.Ciudad, "-", " ")) {
			continue
		}
		if q.Q != nil && *q.Q != "" {
			needle := domain.Normalize(*q.Q)
			if !strings.Contains(domain.Normalize(t.Nombre+" "+t.Direccion+" "+deref(t.Descripcion)), needle) {
				continue
			}
		}
		if q.PrecioMin != nil && (t.Precio == nil || *t.Precio < *q.PrecioMin) {
			continue
		}
		if q.PrecioMax != nil && (t.Precio == nil || *t.Precio > *q.PrecioMax) {
			continue
		}
		if q.RatingMin != nil && (t.Rating == nil || *t.Rating < *q.RatingMin) {
			continue
		}
		if q.Servicio != nil && *q.Servicio != "" && !contains(t.Servicios, strings.ToLower(*q.Servicio)) {
			continue
		}
		if q.Verificado != nil && t.Verificado != *q.Verificado {
			continue
		}
		if q.ConCoordenadas && (t.Lat == nil || t.Lng == nil) {
			continue
		}
		items = append(items, t)
	}
	if q.Orden == "precio" {
		sort.SliceStable(items, func(i, j int) bool { return num(items[i].Precio) < num(items[j].Precio) })
	}
	if q.Orden == "rating" || q.Orden == "" {
		sort.SliceStable(items, func(i, j int) bool { return num(items[i].Rating) > num(items[j].Rating) })
	}

	page := domain.TelosPage{Items: []domain.Telo{}, Total: len(items), Page: q.Page, Limit: q.Limit, Fuente: domain.SourceMock}
	start := (q.Page - 1) * q.Limit
	if start < len(items) {
		end := start + q.Limit
		if end > len(items) {
			end = len(items)
		}
		page.Items = items[start:end]
	}
	return page
}

func (m *MockData) Cities() []domain.Ciudad {
	counts := map[string]*domain.Ciudad{}
	var order []string
	for _, t := range m.telos {
		slug := domain.Slugify(t.Ciudad)
		c, ok := counts[slug]
		if !ok {
			c = &domain.Ciudad{Nombre: t.Ciudad, Slug: slug}
			counts[slug] = c
			order = append(order, slug)
		}
		c.Telos++
	}
	sort.Strings(order)
	out := make([]domain.Ciudad, 0, len(order))
	for _, s := range order {
		out = append(out, *counts[s])
	}
	return out
}

func (m *MockData) MapPoints(ciudad string) []domain.MapPoint {
	src := m.telos
	if strings.TrimSpace(ciudad) != "" {
		src = m.ForCity(ciudad)
	}
	out := []domain.MapPoint{}
	for _, t := range src {
		if t.Lat == nil || t.Lng == nil {
			continue
		}
		out = append(out, toMapPoint(t))
	}
	return out
}

func toMapPoint(t domain.Telo) domain.MapPoint {
	return domain.MapPoint{
		ID: t.ID, Slug: t.Slug, Nombre: t.Nombre, Ciudad: t.Ciudad,
		Lat: *t.Lat, Lng: *t.Lng, Precio: t.Precio, Rating: t.Rating,
	}
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func num(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
