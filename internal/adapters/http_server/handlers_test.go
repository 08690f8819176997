package httpserver_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "telos_booking/internal/adapters/http_server"
	"telos_booking/internal/adapters/webhook"
	"telos_booking/internal/app"
	"telos_booking/internal/app/apptest"
	"telos_booking/internal/domain"
)

const (
	adminToken = "s3cret-admin"
	hookSecret = "s3cret-hook"
)

type env struct {
	repo   *apptest.Repo
	hook   *apptest.Enricher
	search *app.SearchService
	h      http.Handler
}

func newEnv(t *testing.T, admin string) *env {
	t.Helper()
	repo := apptest.NewRepo()
	cache := &apptest.Cache{}
	mock := app.MustLoadMockData()
	hook := &apptest.Enricher{On: true}
	search := app.NewSearchService(repo, cache, hook, app.NewCityLimiter(time.Hour), mock, app.SearchServiceConfig{})
	t.Cleanup(search.Wait)

	srv := httpserver.New()
	srv.MountHandlers(&httpserver.Handlers{
		Q:             app.NewQueryService(repo, cache, mock, time.Minute),
		C:             app.NewCommandService(repo, cache, nil),
		S:             search,
		DB:            repo,
		Cache:         cache,
		AdminToken:    admin,
		WebhookSecret: hookSecret,
		BaseURL:       "https://telos.example",
	})
	return &env{repo: repo, hook: hook, search: search, h: srv.Mux()}
}

func (e *env) do(method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func (e *env) seed(t *testing.T, nombre, direccion, ciudad string) domain.Telo {
	t.Helper()
	tl := domain.Telo{Nombre: nombre, Direccion: direccion, Ciudad: ciudad, Activo: true, Fuente: domain.SourceSeed}
	require.NoError(t, tl.Sanitize())
	_, err := e.repo.UpsertTelos(context.Background(), []domain.Telo{tl})
	require.NoError(t, err)
	_, err = e.repo.EnsureCity(context.Background(), ciudad, nil)
	require.NoError(t, err)
	out, _ := e.repo.Telo(tl.Slug)
	return out
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthz(t *testing.T) {
	rec := newEnv(t, adminToken).do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestListTelos(t *testing.T) {
	e := newEnv(t, adminToken)
	e.seed(t, "Hotel Luna", "Corrientes 1234", "Rosario")

	rec := e.do(http.MethodGet, "/api/telos?ciudad=rosario&limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[domain.TelosPage](t, rec)
	assert.Equal(t, "db", page.Fuente)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 10, page.Limit)

	rec = e.do(http.MethodGet, "/api/telos?precio_min=barato", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = e.do(http.MethodGet, "/api/telos?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTelos_DBDownServesMock(t *testing.T) {
	e := newEnv(t, adminToken)
	e.repo.Err = apptest.ErrDB

	rec := e.do(http.MethodGet, "/api/telos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[domain.TelosPage](t, rec)
	assert.Equal(t, domain.SourceMock, page.Fuente)
	assert.NotEmpty(t, page.Items)
}

func TestGetTelo_ETag(t *testing.T) {
	e := newEnv(t, adminToken)
	tl := e.seed(t, "Hotel Luna", "Corrientes 1234", "Rosario")

	rec := e.do(http.MethodGet, "/api/telos/"+tl.Slug, "")
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	rec = e.do(http.MethodGet, "/api/telos/"+tl.Slug, "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = e.do(http.MethodGet, "/api/telos/no-existe-000000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoutes_Auth(t *testing.T) {
	body := `{"nombre":"Hotel Sol","direccion":"Mitre 900","ciudad":"Avellaneda","precio":12000}`

	rec := newEnv(t, "").do(http.MethodPost, "/api/telos", body, "Authorization", "Bearer anything")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	e := newEnv(t, adminToken)
	rec = e.do(http.MethodPost, "/api/telos", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = e.do(http.MethodPost, "/api/telos", body, "Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodPost, "/api/telos", body, "Authorization", "Bearer "+adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.Telo](t, rec)
	assert.Equal(t, "/api/telos/"+created.Slug, rec.Header().Get("Location"))
	assert.Equal(t, domain.SourceManual, created.Fuente)

	rec = e.do(http.MethodPost, "/api/telos", body, "Authorization", "Bearer "+adminToken)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminUpdateAndDelete(t *testing.T) {
	e := newEnv(t, adminToken)
	tl := e.seed(t, "Hotel Luna", "Corrientes 1234", "Rosario")
	auth := []string{"Authorization", "Bearer " + adminToken}
	path := "/api/telos/" + jsonInt(tl.ID)

	rec := e.do(http.MethodPut, path, `{"verificado":true,"precio":20000}`, auth...)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	upd := decode[domain.Telo](t, rec)
	assert.True(t, upd.Verificado)
	require.NotNil(t, upd.Precio)
	assert.Equal(t, 20000.0, *upd.Precio)

	rec = e.do(http.MethodPut, "/api/telos/abc", `{}`, auth...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(http.MethodPut, "/api/telos/9999", `{"verificado":true}`, auth...)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	detail := "/api/telos/" + tl.Slug
	require.Equal(t, http.StatusOK, e.do(http.MethodGet, detail, "").Code)

	rec = e.do(http.MethodDelete, path, "", auth...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[domain.Telo](t, rec).Activo)

	// the detail page is gone too, even though it was cached
	rec = e.do(http.MethodGet, detail, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), `"activo"`)

	// soft-deleted telos drop out of public listings
	page := decode[domain.TelosPage](t, e.do(http.MethodGet, "/api/telos?ciudad=rosario", ""))
	assert.Equal(t, 0, page.Total)
}

func TestSearchFlow(t *testing.T) {
	e := newEnv(t, adminToken)
	e.seed(t, "Hotel Luna", "Corrientes 1234", "Rosario")

	rec := e.do(http.MethodPost, "/api/busqueda/registrar", `{"ciudad":"Tandil"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[domain.Ciudad](t, rec).Busquedas)

	rec = e.do(http.MethodGet, "/api/busqueda/verificar?ciudad=Tandil", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[app.CheckResult](t, rec).Exists)

	rec = e.do(http.MethodPost, "/api/busqueda/disparar", `{"ciudad":"Tandil"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	res := decode[app.TriggerResult](t, rec)
	assert.Equal(t, app.StatusTriggered, res.Status)
	assert.Equal(t, domain.SourceMock, res.Fuente)

	rec = e.do(http.MethodPost, "/api/busqueda/disparar", `{"ciudad":"Tandil"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, app.StatusPending, decode[app.TriggerResult](t, rec).Status)

	rec = e.do(http.MethodPost, "/api/busqueda/disparar", `{"ciudad":"Rosario"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, app.StatusCached, decode[app.TriggerResult](t, rec).Status)

	e.search.Wait()
	assert.Len(t, e.hook.Requests(), 1)

	rec = e.do(http.MethodPost, "/api/busqueda/disparar", `{"ciudad":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(http.MethodPost, "/api/busqueda/disparar", `{ciudad`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookIngress(t *testing.T) {
	e := newEnv(t, adminToken)
	body := `{"ciudad":"Tandil","job_id":"job-1","telos":[
		{"name":"Hotel Serrano","address":"Av. España 500","rating":"4,2"},
		{"name":"Motel Piedra","address":"Ruta 226 km 160"},
		{"name":"sin dirección"}
	]}`

	rec := e.do(http.MethodPost, "/api/webhook/telos", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(http.MethodPost, "/api/webhook/telos", body, webhook.SecretHeader, hookSecret)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var first map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, "job-1", first["job_id"])
	assert.EqualValues(t, 2, first["insertados"])
	assert.EqualValues(t, 1, first["omitidos"])

	// the same callback twice updates rows instead of duplicating them
	rec = e.do(http.MethodPost, "/api/webhook/telos", body, webhook.SecretHeader, hookSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[domain.UpsertResult](t, rec)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 2, res.Updated)
	assert.Len(t, e.repo.Telos(), 2)

	rec = e.do(http.MethodPost, "/api/webhook/telos", `{"ciudad":"Tandil"}`, webhook.SecretHeader, hookSecret)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// the city now has telos, so a trigger serves them
	rec = e.do(http.MethodPost, "/api/busqueda/disparar", `{"ciudad":"tandil"}`)
	assert.Equal(t, app.StatusCached, decode[app.TriggerResult](t, rec).Status)
}

func TestWebhookIngress_DoesNotWaitForGeocoding(t *testing.T) {
	repo := apptest.NewRepo()
	cache := &apptest.Cache{}
	mock := app.MustLoadMockData()
	geo := &apptest.Geocoder{Block: make(chan struct{})}
	cmd := app.NewCommandService(repo, cache, geo)
	search := app.NewSearchService(repo, cache, &apptest.Enricher{}, app.NewCityLimiter(time.Hour), mock, app.SearchServiceConfig{})

	srv := httpserver.New()
	srv.MountHandlers(&httpserver.Handlers{
		Q: app.NewQueryService(repo, cache, mock, time.Minute), C: cmd, S: search,
		DB: repo, Cache: cache, WebhookSecret: hookSecret,
	})

	var items []string
	for i := 0; i < 12; i++ {
		items = append(items, fmt.Sprintf(`{"nombre":"Hotel %d","direccion":"Mitre %d"}`, i, 100+i))
	}
	body := `{"ciudad":"Tandil","telos":[` + strings.Join(items, ",") + `]}`

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/telos", strings.NewReader(body))
	req.Header.Set(webhook.SecretHeader, hookSecret)
	rec := httptest.NewRecorder()

	start := time.Now()
	srv.Mux().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.EqualValues(t, 12, decode[domain.UpsertResult](t, rec).Inserted)
	assert.Len(t, repo.Telos(), 12, "stored before any geocoding happened")
	assert.Zero(t, geo.Calls())

	close(geo.Block)
	cmd.Wait()
	assert.Equal(t, 10, geo.Calls(), "one batch geocodes a bounded number of telos")
}

func TestCitiesAndMap(t *testing.T) {
	e := newEnv(t, adminToken)
	e.seed(t, "Hotel Luna", "Corrientes 1234", "Mar del Plata")

	rec := e.do(http.MethodGet, "/api/ciudades?orden=busquedas", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mar-del-plata"`)

	rec = e.do(http.MethodGet, "/api/ciudades?orden=poblacion", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodGet, "/api/ciudades/mar-del-plata", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cp := decode[domain.CityPage](t, rec)
	assert.Len(t, cp.Telos, 1)

	rec = e.do(http.MethodGet, "/api/ciudades/atlantis", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(http.MethodGet, "/api/mapa?ciudad=mar-del-plata", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)
}

func TestStats(t *testing.T) {
	e := newEnv(t, adminToken)
	e.seed(t, "Hotel Luna", "Corrientes 1234", "Rosario")
	rec := e.do(http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[domain.Stats](t, rec).TotalTelos)

	e.repo.Err = apptest.ErrDB
	rec = e.do(http.MethodGet, "/api/stats", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestDiagnostics(t *testing.T) {
	e := newEnv(t, adminToken)
	rec := e.do(http.MethodGet, "/api/admin/diagnostico", "", "Authorization", "Bearer "+adminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		OK      bool                       `json:"ok"`
		Checks  map[string]json.RawMessage `json:"checks"`
		Webhook bool                       `json:"webhook_configurado"`
		Fuente  string                     `json:"fuente"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.OK)
	assert.Contains(t, out.Checks, "mysql")
	assert.Contains(t, out.Checks, "redis")
	assert.True(t, out.Webhook)
	assert.Equal(t, "db", out.Fuente)

	e.repo.Err = apptest.ErrDB
	rec = e.do(http.MethodGet, "/api/admin/diagnostico", "", "Authorization", "Bearer "+adminToken)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.OK)
	assert.Equal(t, "mock", out.Fuente)
}

func TestSitemap(t *testing.T) {
	e := newEnv(t, adminToken)
	tl := e.seed(t, "Hotel Luna", "Corrientes 1234", "Rosario")

	rec := e.do(http.MethodGet, "/sitemap.xml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/xml")
	body := rec.Body.String()
	assert.Contains(t, body, "<loc>https://telos.example/</loc>")
	assert.Contains(t, body, "<loc>https://telos.example/ciudad/rosario</loc>")
	assert.Contains(t, body, "<loc>https://telos.example/telo/"+tl.Slug+"</loc>")
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
