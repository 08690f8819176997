package geocode_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"telos_booking/internal/adapters/geocode"
	"telos_booking/internal/domain"
)

func TestClient_Geocode_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("countrycodes") != "ar" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			w.WriteHeader(503)
		default:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"lat":"-32.9468","lon":"-60.6393","display_name":"Rosario"}]`))
		}
	}))
	defer ts.Close()

	cl, err := geocode.New(ts.URL, "test", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := cl.Geocode(ctx, "Córdoba 1200, Rosario, Argentina")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Lat != -32.9468 || c.Lng != -60.6393 {
		t.Fatalf("unexpected coords: %+v", c)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Fatalf("expected 3 calls due to retries, got %d", hits)
	}
}

func TestClient_Geocode_NoMatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	cl, _ := geocode.New(ts.URL, "test", 100)
	_, err := cl.Geocode(context.Background(), "nowhere")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_Geocode_Forbidden(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	cl, _ := geocode.New(ts.URL, "test", 100)
	_, err := cl.Geocode(context.Background(), "Calle 1")
	if !errors.Is(err, geocode.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestClient_Geocode_EmptyAddress(t *testing.T) {
	cl, _ := geocode.New("http://127.0.0.1:1", "test", 100)
	if _, err := cl.Geocode(context.Background(), "  "); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestClient_Geocode_RetriesStayRateLimited(t *testing.T) {
	var mu sync.Mutex
	var hits []time.Time
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, time.Now())
		n := len(hits)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`[{"lat":"-34.6","lon":"-58.4"}]`))
	}))
	defer ts.Close()

	// 2 rps: attempts at least 500ms apart, longer than the first backoff step
	cl, _ := geocode.New(ts.URL, "test", 2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := cl.Geocode(ctx, "Corrientes 1234, Buenos Aires"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(hits) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(hits))
	}
	if gap := hits[1].Sub(hits[0]); gap < 450*time.Millisecond {
		t.Fatalf("retry bypassed the limiter: %v between attempts", gap)
	}
}
