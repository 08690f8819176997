// internal/adapters/geocode/client.go
package geocode

import (
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"telos_booking/internal/adapters/observability"
	"telos_booking/internal/domain"
)

// Client talks to a Nominatim-compatible /search endpoint.
type Client struct {
	base string
	hc   *http.Client
	ua   string
	rl   *rate.Limiter
}

func New(base, userAgent string, rps float64) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("geocoder base URL is required")
	}
	if rps <= 0 {
		rps = 1 // public Nominatim usage policy
	}
	if userAgent == "" {
		userAgent = "telos-booking/1.0"
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 15 * time.Second},
		ua:   userAgent,
		rl:   rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

type place struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves a free-form Argentine address. domain.ErrNotFound when
// the geocoder has no match.
func (c *Client) Geocode(ctx context.Context, address string) (domain.Coords, error) {
	if strings.TrimSpace(address) == "" {
		return domain.Coords{}, fmt.Errorf("%w: empty address", domain.ErrInvalid)
	}
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")
	q.Set("countrycodes", "ar")

	var out []place
	if err := c.get(ctx, c.base+"/search?"+q.Encode(), &out); err != nil {
		return domain.Coords{}, err
	}
	if len(out) == 0 {
		return domain.Coords{}, domain.ErrNotFound
	}
	lat, err1 := strconv.ParseFloat(out[0].Lat, 64)
	lng, err2 := strconv.ParseFloat(out[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return domain.Coords{}, fmt.Errorf("geocode: bad coordinates %q,%q", out[0].Lat, out[0].Lon)
	}
	return domain.Coords{Lat: lat, Lng: lng}, nil
}

// ---- Internals ----

var ErrUnauthorized = errors.New("geocode: unauthorized")

// get performs a GET with client-side rate limiting, retries, and JSON decode into out.
// Retries on 429 and transient 5xx, honoring Retry-After when provided.
func (c *Client) get(ctx context.Context, url string, out any) error {
	var lastErr error
	for i := 0; i < 4; i++ {
		// every attempt, retries included, counts against the limiter
		if err := c.rl.Wait(ctx); err != nil {
			return err
		}
		// build a fresh request each attempt
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Accept-Language", "es")
		req.Header.Set("User-Agent", c.ua)

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("geocode", "search", 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("geocode", "search", resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err

		case http.StatusNotFound:
			resp.Body.Close()
			return domain.ErrNotFound

		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			// Prefer server-provided Retry-After; otherwise exponential backoff.
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff: 200ms, 400ms, 800ms... plus up to 50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
