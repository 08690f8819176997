// internal/adapters/http_server/handlers.go
package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"telos_booking/internal/adapters/webhook"
	"telos_booking/internal/app"
	"telos_booking/internal/domain"
)

const (
	maxJSONBody    = 1 << 20
	maxWebhookBody = 8 << 20
)

// Pinger is anything the diagnostics endpoint can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Q *app.QueryService
	C *app.CommandService
	S *app.SearchService

	DB    Pinger
	Cache Pinger // optional

	AdminToken    string
	WebhookSecret string
	BaseURL       string // public site root for sitemap URLs
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/sitemap.xml", h.sitemap)

	s.mux.Route("/api", func(r chi.Router) {
		r.Get("/telos", h.listTelos)
		r.Get("/telos/{slug}", h.getTelo)
		r.Get("/ciudades", h.listCities)
		r.Get("/ciudades/{slug}", h.getCity)
		r.Get("/mapa", h.mapPoints)
		r.Get("/stats", h.stats)

		r.Post("/busqueda/registrar", h.registerSearch)
		r.Get("/busqueda/verificar", h.checkCity)
		r.Post("/busqueda/disparar", h.triggerSearch)

		r.With(RequireHeaderSecret(webhook.SecretHeader, h.WebhookSecret)).Post("/webhook/telos", h.ingestWebhook)

		r.Group(func(r chi.Router) {
			r.Use(RequireBearer(h.AdminToken))
			r.Post("/telos", h.createTelo)
			r.Put("/telos/{id}", h.updateTelo)
			r.Delete("/telos/{id}", h.deleteTelo)
			r.Get("/admin/diagnostico", h.diagnostics)
			r.Post("/admin/geocodificar", h.backfillCoords)
		})
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors to problems; anything unknown is logged and
// answered 500 without leaking details.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalid):
		writeProblem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, domain.ErrRateLimited):
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "")
	case errors.Is(err, domain.ErrWebhookDisabled):
		writeProblem(w, http.StatusServiceUnavailable, "Webhook Disabled", "")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached answers GETs with an ETag and honours If-None-Match.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("write body failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return 0, false
	}
	return id, true
}

// ---- query parsing ----

func optString(v string) *string {
	if v = strings.TrimSpace(v); v == "" {
		return nil
	}
	return &v
}

func optFloat(name, v string) (*float64, error) {
	if v = strings.TrimSpace(v); v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return nil, fmt.Errorf("%w: %s must be a non-negative number", domain.ErrInvalid, name)
	}
	return &f, nil
}

func optBool(name, v string) (*bool, error) {
	if v = strings.TrimSpace(v); v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be true or false", domain.ErrInvalid, name)
	}
	return &b, nil
}

func optInt(name, v string, lo, hi int) (int, error) {
	if v = strings.TrimSpace(v); v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%w: %s must be an integer between %d and %d", domain.ErrInvalid, name, lo, hi)
	}
	return n, nil
}

func parseTelosQuery(r *http.Request) (domain.TelosQuery, error) {
	v := r.URL.Query()
	q := domain.TelosQuery{
		Ciudad:   optString(v.Get("ciudad")),
		Q:        optString(v.Get("q")),
		Servicio: optString(v.Get("servicio")),
		Orden:    strings.TrimSpace(v.Get("orden")),
	}
	switch q.Orden {
	case "", "rating", "precio", "nombre", "recientes":
	default:
		return q, fmt.Errorf("%w: orden must be rating, precio, nombre or recientes", domain.ErrInvalid)
	}
	var err error
	if q.PrecioMin, err = optFloat("precio_min", v.Get("precio_min")); err != nil {
		return q, err
	}
	if q.PrecioMax, err = optFloat("precio_max", v.Get("precio_max")); err != nil {
		return q, err
	}
	if q.RatingMin, err = optFloat("rating_min", v.Get("rating_min")); err != nil {
		return q, err
	}
	if q.Verificado, err = optBool("verificado", v.Get("verificado")); err != nil {
		return q, err
	}
	coords, err := optBool("con_coordenadas", v.Get("con_coordenadas"))
	if err != nil {
		return q, err
	}
	q.ConCoordenadas = coords != nil && *coords
	if q.Page, err = optInt("page", v.Get("page"), 1, 10000); err != nil {
		return q, err
	}
	if q.Limit, err = optInt("limit", v.Get("limit"), 1, domain.MaxPageLimit); err != nil {
		return q, err
	}
	return q, nil
}

// ---- telos ----

func (h *Handlers) listTelos(w http.ResponseWriter, r *http.Request) {
	q, err := parseTelosQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCached(w, r, h.Q.ListTelos(r.Context(), q))
}

func (h *Handlers) getTelo(w http.ResponseWriter, r *http.Request) {
	t, err := h.Q.GetTelo(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "telo not found")
			return
		}
		writeError(w, r, err)
		return
	}
	writeCached(w, r, t)
}

func (h *Handlers) createTelo(w http.ResponseWriter, r *http.Request) {
	var in domain.Telo
	if !decodeJSON(w, r, &in) {
		return
	}
	out, err := h.C.CreateTelo(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/telos/"+out.Slug)
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handlers) updateTelo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var p domain.TeloPatch
	if !decodeJSON(w, r, &p) {
		return
	}
	out, err := h.C.UpdateTelo(r.Context(), id, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) deleteTelo(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := h.C.DeactivateTelo(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- cities, map, stats ----

type citiesResponse struct {
	Ciudades []domain.Ciudad `json:"ciudades"`
	Fuente   string          `json:"fuente"`
}

func (h *Handlers) listCities(w http.ResponseWriter, r *http.Request) {
	orden := r.URL.Query().Get("orden")
	if orden != "" && orden != "nombre" && orden != "busquedas" {
		writeProblem(w, http.StatusBadRequest, "Invalid orden", "orden must be nombre or busquedas")
		return
	}
	cs, fuente := h.Q.ListCities(r.Context(), orden)
	writeCached(w, r, citiesResponse{Ciudades: cs, Fuente: fuente})
}

func (h *Handlers) getCity(w http.ResponseWriter, r *http.Request) {
	cp, err := h.Q.GetCity(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Not Found", "ciudad not found")
			return
		}
		writeError(w, r, err)
		return
	}
	writeCached(w, r, cp)
}

type mapResponse struct {
	Puntos []domain.MapPoint `json:"puntos"`
	Total  int               `json:"total"`
	Fuente string            `json:"fuente"`
}

func (h *Handlers) mapPoints(w http.ResponseWriter, r *http.Request) {
	pts, fuente := h.Q.MapPoints(r.Context(), strings.TrimSpace(r.URL.Query().Get("ciudad")))
	writeCached(w, r, mapResponse{Puntos: pts, Total: len(pts), Fuente: fuente})
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Q.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ---- search fallback ----

type cityRequest struct {
	Ciudad string `json:"ciudad"`
}

func (h *Handlers) registerSearch(w http.ResponseWriter, r *http.Request) {
	var in cityRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	c, err := h.S.Register(r.Context(), in.Ciudad)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handlers) checkCity(w http.ResponseWriter, r *http.Request) {
	res, err := h.S.Check(r.Context(), r.URL.Query().Get("ciudad"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) triggerSearch(w http.ResponseWriter, r *http.Request) {
	var in cityRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.S.Trigger(r.Context(), in.Ciudad)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Status == app.StatusTriggered {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// ---- webhook ingress ----

type ingestResponse struct {
	JobID string `json:"job_id,omitempty"`
	domain.UpsertResult
}

func (h *Handlers) ingestWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeProblem(w, http.StatusRequestEntityTooLarge, "Payload Too Large", err.Error())
		return
	}
	p, err := app.ParseWebhookPayload(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.C.IngestWebhook(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{JobID: p.JobID, UpsertResult: res})
}

// ---- admin ----

type backfillRequest struct {
	Ciudad string `json:"ciudad"`
	Limit  int    `json:"limit"`
}

func (h *Handlers) backfillCoords(w http.ResponseWriter, r *http.Request) {
	var in backfillRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &in) {
		return
	}
	if in.Limit <= 0 || in.Limit > domain.MaxPageLimit {
		in.Limit = domain.MaxPageLimit
	}
	res, err := h.C.BackfillCoords(r.Context(), strings.TrimSpace(in.Ciudad), in.Limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
