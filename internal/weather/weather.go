// Package weather supplies the per-hub weather bias that nudges gas and
// power price paths. A missing feed is never an error for the engine: the
// bias simply stays at zero.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

var ErrFeedUnavailable = errors.New("weather: feed unavailable")

// Feed is one bias observation.
type Feed struct {
	HeatingSeason bool               `json:"is_heating_season"`
	Bias          map[string]float64 `json:"bias"`
}

// Provider fetches the current feed.
type Provider interface {
	Fetch(ctx context.Context) (Feed, error)
}

// Static is a fixed bias table.
type Static map[string]float64

func (s Static) Fetch(context.Context) (Feed, error) {
	out := make(map[string]float64, len(s))
	for k, v := range s {
		out[k] = v
	}
	return Feed{Bias: out}, nil
}

// HTTPProvider reads {"success":true,"is_heating_season":..,"bias":{hub:x}}
// from a bias endpoint.
type HTTPProvider struct {
	URL    string
	Client *http.Client
}

// NewHTTPProvider creates a provider with a short client timeout.
func NewHTTPProvider(url string) *HTTPProvider {
	return &HTTPProvider{URL: url, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (p *HTTPProvider) Fetch(ctx context.Context) (Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return Feed{}, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return Feed{}, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Feed{}, fmt.Errorf("%w: status %d", ErrFeedUnavailable, resp.StatusCode)
	}

	var body struct {
		Success bool `json:"success"`
		Feed
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Feed{}, fmt.Errorf("%w: decode: %v", ErrFeedUnavailable, err)
	}
	if !body.Success {
		return Feed{}, fmt.Errorf("%w: success=false", ErrFeedUnavailable)
	}
	if body.Bias == nil {
		body.Bias = map[string]float64{}
	}
	return body.Feed, nil
}

// Poller caches the last good feed and refreshes it on an interval.
type Poller struct {
	provider Provider
	interval time.Duration

	mu      sync.RWMutex
	current Feed
	updated time.Time
}

// NewPoller creates a poller. Nothing is fetched until Refresh or Start.
func NewPoller(p Provider, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Poller{provider: p, interval: interval}
}

// Refresh fetches once. On failure the previous feed is kept.
func (p *Poller) Refresh(ctx context.Context) error {
	feed, err := p.provider.Fetch(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.current = feed
	p.updated = time.Now()
	p.mu.Unlock()
	return nil
}

// Start refreshes immediately and then every interval until ctx ends.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("weather bias refresh failed, keeping last value", "err", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Bias returns a copy of the last good bias table, empty if none.
func (p *Poller) Bias() map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]float64, len(p.current.Bias))
	for k, v := range p.current.Bias {
		out[k] = v
	}
	return out
}

// HeatingSeason reports the last feed's season flag.
func (p *Poller) HeatingSeason() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current.HeatingSeason
}

// Updated returns when the feed last refreshed successfully.
func (p *Poller) Updated() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updated
}
