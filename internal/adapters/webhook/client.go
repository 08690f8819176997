// Package webhook posts city search requests to the workflow-automation
// webhook that scrapes listings and later calls back /api/webhook/telos.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"telos_booking/internal/adapters/observability"
	"telos_booking/internal/domain"
)

// SecretHeader carries the shared secret in both directions.
const SecretHeader = "X-Webhook-Secret"

type Client struct {
	url    string
	secret string
	hc     *http.Client
	rl     *rate.Limiter
}

// New returns a client; an empty url yields a disabled client whose
// RequestSearch returns domain.ErrWebhookDisabled.
func New(url, secret string, rps int, timeout time.Duration) *Client {
	if rps <= 0 {
		rps = 2
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		url:    strings.TrimSpace(url),
		secret: secret,
		hc:     &http.Client{Timeout: timeout},
		rl:     rate.NewLimiter(rate.Limit(rps), rps),
	}
}

func (c *Client) Enabled() bool { return c.url != "" }

// RequestSearch makes a single POST; there is no retry policy. Any 2xx
// means the workflow accepted the job.
func (c *Client) RequestSearch(ctx context.Context, sr domain.SearchRequest) error {
	if !c.Enabled() {
		return domain.ErrWebhookDisabled
	}
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(sr)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "telos-booking/1.0")
	if c.secret != "" {
		req.Header.Set(SecretHeader, c.secret)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		observability.ObserveExternal("webhook", "search", 0, time.Since(start))
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	observability.ObserveExternal("webhook", "search", resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
