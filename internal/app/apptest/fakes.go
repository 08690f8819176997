// Package apptest holds in-memory implementations of the domain ports for
// service and handler tests.
package apptest

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"telos_booking/internal/domain"
)

// ErrDB is what Repo returns from every call once Err is set to it.
var ErrDB = errors.New("db down")

// Repo keeps telos keyed by slug, which is derived from the normalized key,
// so upserting the same telo twice touches one entry.
type Repo struct {
	mu     sync.Mutex
	telos  map[string]domain.Telo
	cities map[string]domain.Ciudad
	nextID int64
	calls  map[string]int

	Err error // returned by every call when set
}

func NewRepo() *Repo {
	return &Repo{telos: map[string]domain.Telo{}, cities: map[string]domain.Ciudad{}, calls: map[string]int{}}
}

func (f *Repo) hit(name string) error {
	f.calls[name]++
	return f.Err
}

// Calls reports how often the named method ran.
func (f *Repo) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// Put stores t as is, bypassing the write methods.
func (f *Repo) Put(t domain.Telo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.telos[t.Slug] = t
}

// Telo returns the stored telo without counting a call.
func (f *Repo) Telo(slug string) (domain.Telo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.telos[slug]
	return t, ok
}

// Telos returns every stored telo ordered by id.
func (f *Repo) Telos() []domain.Telo {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Telo, 0, len(f.telos))
	for _, t := range f.telos {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *Repo) HasCity(slug string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.cities[slug]
	return ok
}

func (f *Repo) UpsertTelos(ctx context.Context, ts []domain.Telo) (domain.UpsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res domain.UpsertResult
	if err := f.hit("UpsertTelos"); err != nil {
		return res, err
	}
	for _, t := range ts {
		if cur, ok := f.telos[t.Slug]; ok {
			t.ID, t.Activo, t.Verificado, t.Fuente = cur.ID, cur.Activo, cur.Verificado, cur.Fuente
			f.telos[t.Slug] = t
			res.Updated++
			continue
		}
		f.nextID++
		t.ID = f.nextID
		f.telos[t.Slug] = t
		res.Inserted++
	}
	return res, nil
}

func (f *Repo) CreateTelo(ctx context.Context, t domain.Telo) (domain.Telo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("CreateTelo"); err != nil {
		return domain.Telo{}, err
	}
	if _, ok := f.telos[t.Slug]; ok {
		return domain.Telo{}, domain.ErrConflict
	}
	f.nextID++
	t.ID = f.nextID
	f.telos[t.Slug] = t
	return t, nil
}

func (f *Repo) byID(id int64) (domain.Telo, bool) {
	for _, t := range f.telos {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Telo{}, false
}

func (f *Repo) UpdateTelo(ctx context.Context, id int64, p domain.TeloPatch) (domain.Telo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("UpdateTelo"); err != nil {
		return domain.Telo{}, err
	}
	t, ok := f.byID(id)
	if !ok {
		return domain.Telo{}, domain.ErrNotFound
	}
	delete(f.telos, t.Slug)
	if p.Nombre != nil {
		t.Nombre = *p.Nombre
	}
	if p.Ciudad != nil {
		t.Ciudad = *p.Ciudad
	}
	if p.Precio != nil {
		t.Precio = p.Precio
	}
	if p.Verificado != nil {
		t.Verificado = *p.Verificado
	}
	if err := t.Sanitize(); err != nil {
		return domain.Telo{}, err
	}
	f.telos[t.Slug] = t
	return t, nil
}

func (f *Repo) DeactivateTelo(ctx context.Context, id int64) (domain.Telo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("DeactivateTelo"); err != nil {
		return domain.Telo{}, err
	}
	t, ok := f.byID(id)
	if !ok {
		return domain.Telo{}, domain.ErrNotFound
	}
	t.Activo = false
	f.telos[t.Slug] = t
	return t, nil
}

func (f *Repo) SetCoords(ctx context.Context, id int64, c domain.Coords) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("SetCoords"); err != nil {
		return err
	}
	t, ok := f.byID(id)
	if !ok {
		return domain.ErrNotFound
	}
	t.Lat, t.Lng = &c.Lat, &c.Lng
	f.telos[t.Slug] = t
	return nil
}

func (f *Repo) GetTeloBySlug(ctx context.Context, slug string) (domain.Telo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("GetTeloBySlug"); err != nil {
		return domain.Telo{}, err
	}
	t, ok := f.telos[slug]
	if !ok {
		return domain.Telo{}, domain.ErrNotFound
	}
	return t, nil
}

func (f *Repo) GetTeloByID(ctx context.Context, id int64) (domain.Telo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("GetTeloByID"); err != nil {
		return domain.Telo{}, err
	}
	t, ok := f.byID(id)
	if !ok {
		return domain.Telo{}, domain.ErrNotFound
	}
	return t, nil
}

func (f *Repo) cityTelos(ciudad string) []domain.Telo {
	key := domain.Normalize(strings.ReplaceAll(ciudad, "-", " "))
	var out []domain.Telo
	for _, t := range f.telos {
		if t.Activo && (ciudad == "" || domain.Normalize(t.Ciudad) == key) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *Repo) ListTelos(ctx context.Context, q domain.TelosQuery) (domain.TelosPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("ListTelos"); err != nil {
		return domain.TelosPage{}, err
	}
	q.Clamp()
	city := ""
	if q.Ciudad != nil {
		city = *q.Ciudad
	}
	items := f.cityTelos(city)
	if items == nil {
		items = []domain.Telo{}
	}
	return domain.TelosPage{Items: items, Total: len(items), Page: q.Page, Limit: q.Limit}, nil
}

func (f *Repo) CountTelosByCity(ctx context.Context, ciudad string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("CountTelosByCity"); err != nil {
		return 0, err
	}
	return len(f.cityTelos(ciudad)), nil
}

func (f *Repo) MapPoints(ctx context.Context, ciudad string) ([]domain.MapPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("MapPoints"); err != nil {
		return nil, err
	}
	out := []domain.MapPoint{}
	for _, t := range f.cityTelos(ciudad) {
		if t.Lat != nil && t.Lng != nil {
			out = append(out, domain.MapPoint{ID: t.ID, Slug: t.Slug, Lat: *t.Lat, Lng: *t.Lng})
		}
	}
	return out, nil
}

func (f *Repo) MissingCoords(ctx context.Context, ciudad string, limit int) ([]domain.Telo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("MissingCoords"); err != nil {
		return nil, err
	}
	var out []domain.Telo
	for _, t := range f.cityTelos(ciudad) {
		if t.Lat == nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *Repo) EnsureCity(ctx context.Context, nombre string, provincia *string) (domain.Ciudad, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("EnsureCity"); err != nil {
		return domain.Ciudad{}, err
	}
	slug := domain.Slugify(nombre)
	c, ok := f.cities[slug]
	if !ok {
		c = domain.Ciudad{ID: int64(len(f.cities) + 1), Nombre: nombre, Slug: slug, Provincia: provincia}
		f.cities[slug] = c
	}
	return c, nil
}

func (f *Repo) IncrementSearch(ctx context.Context, slug string) (domain.Ciudad, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("IncrementSearch"); err != nil {
		return domain.Ciudad{}, err
	}
	c, ok := f.cities[slug]
	if !ok {
		return domain.Ciudad{}, domain.ErrNotFound
	}
	c.Busquedas++
	f.cities[slug] = c
	return c, nil
}

func (f *Repo) ListCities(ctx context.Context, orden string) ([]domain.Ciudad, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("ListCities"); err != nil {
		return nil, err
	}
	out := []domain.Ciudad{}
	for _, c := range f.cities {
		c.Telos = len(f.cityTelos(c.Slug))
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nombre < out[j].Nombre })
	return out, nil
}

func (f *Repo) GetCityBySlug(ctx context.Context, slug string) (domain.Ciudad, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("GetCityBySlug"); err != nil {
		return domain.Ciudad{}, err
	}
	c, ok := f.cities[slug]
	if !ok {
		return domain.Ciudad{}, domain.ErrNotFound
	}
	c.Telos = len(f.cityTelos(slug))
	return c, nil
}

func (f *Repo) Stats(ctx context.Context) (domain.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.hit("Stats"); err != nil {
		return domain.Stats{}, err
	}
	return domain.Stats{TotalTelos: len(f.telos), TotalCiudades: len(f.cities)}, nil
}

func (f *Repo) Ping(ctx context.Context) error { return f.Err }

// Cache round-trips through JSON like the Redis adapter does.
type Cache struct {
	mu    sync.Mutex
	store map[string][]byte
	dels  []string
}

func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *Cache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

func (c *Cache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}

func (c *Cache) Ping(ctx context.Context) error { return nil }

// Deleted lists every key passed to Del, in order.
func (c *Cache) Deleted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.dels...)
}

// Enricher records search requests instead of calling a webhook.
type Enricher struct {
	mu   sync.Mutex
	reqs []domain.SearchRequest

	On    bool
	Err   error
	Block chan struct{} // when set, RequestSearch waits on it
}

func (e *Enricher) Enabled() bool { return e.On }

func (e *Enricher) RequestSearch(ctx context.Context, r domain.SearchRequest) error {
	if e.Block != nil {
		select {
		case <-e.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, r)
	return e.Err
}

func (e *Enricher) Requests() []domain.SearchRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.SearchRequest(nil), e.reqs...)
}

// Geocoder resolves addresses starting with one of the Coords keys.
type Geocoder struct {
	mu    sync.Mutex
	calls int

	Coords map[string]domain.Coords
	Block  chan struct{} // when set, Geocode waits on it
}

func (g *Geocoder) Geocode(ctx context.Context, address string) (domain.Coords, error) {
	if g.Block != nil {
		select {
		case <-g.Block:
		case <-ctx.Done():
			return domain.Coords{}, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	for prefix, c := range g.Coords {
		if strings.HasPrefix(address, prefix) {
			return c, nil
		}
	}
	return domain.Coords{}, domain.ErrNotFound
}

func (g *Geocoder) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
