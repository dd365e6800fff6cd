// Package feed implements a quote source over a normalized HTTP feed.
// Any upstream that exposes fixtures and per-fixture quotes in the feed
// schema can be wired in as one of these, one client per source id.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mcqweb/goosealerts/internal/logger"
	"github.com/mcqweb/goosealerts/internal/models"
)

// Client fetches fixtures and quotes from one feed endpoint.
type Client struct {
	id         string
	baseURL    string
	httpClient *http.Client
}

// fixturePayload is the feed's fixture representation.
type fixturePayload struct {
	ID        string    `json:"id"`
	HomeTeam  string    `json:"homeTeam"`
	AwayTeam  string    `json:"awayTeam"`
	StartTime time.Time `json:"startTime"`
}

// quotePayload is the feed's quote representation. Liquidity is a
// pointer because many books do not expose depth at all.
type quotePayload struct {
	Name       string    `json:"name"`
	Team       string    `json:"team,omitempty"`
	Market     string    `json:"market"`
	Side       string    `json:"side"`
	Price      float64   `json:"price"`
	Liquidity  *float64  `json:"liquidity,omitempty"`
	ObservedAt time.Time `json:"observedAt"`
}

// NewClient creates a feed client for one source.
func NewClient(id, baseURL string, timeout time.Duration) *Client {
	return &Client{
		id:      id,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ID reports the source id quotes from this feed carry.
func (c *Client) ID() string {
	return c.id
}

// Fixtures retrieves the feed's upcoming fixtures.
func (c *Client) Fixtures(ctx context.Context) ([]models.Fixture, error) {
	u, err := url.JoinPath(c.baseURL, "fixtures")
	if err != nil {
		return nil, fmt.Errorf("building fixtures URL: %w", err)
	}

	resp, err := c.doRequest(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetching fixtures from %q: %w", c.id, err)
	}
	defer resp.Body.Close()

	var payload []fixturePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding fixtures from %q: %w", c.id, err)
	}

	fixtures := make([]models.Fixture, 0, len(payload))
	for _, f := range payload {
		if f.ID == "" {
			continue
		}
		fixtures = append(fixtures, models.Fixture{
			ID:        f.ID,
			HomeTeam:  f.HomeTeam,
			AwayTeam:  f.AwayTeam,
			StartTime: f.StartTime,
		})
	}
	return fixtures, nil
}

// Fetch retrieves the feed's quotes for one fixture. Rows with unknown
// markets or sides are logged and skipped rather than failing the
// whole fetch.
func (c *Client) Fetch(ctx context.Context, fixture models.Fixture) ([]models.Quote, error) {
	u, err := url.JoinPath(c.baseURL, "fixtures", fixture.ID, "quotes")
	if err != nil {
		return nil, fmt.Errorf("building quotes URL: %w", err)
	}

	resp, err := c.doRequest(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetching quotes for fixture %q from %q: %w", fixture.ID, c.id, err)
	}
	defer resp.Body.Close()

	var payload []quotePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding quotes for fixture %q from %q: %w", fixture.ID, c.id, err)
	}

	quotes := make([]models.Quote, 0, len(payload))
	for _, q := range payload {
		market, err := models.ParseMarket(q.Market)
		if err != nil {
			logger.Debug("Skipping quote for %q from %q: %v", q.Name, c.id, err)
			continue
		}
		side, err := models.ParseSide(q.Side)
		if err != nil {
			logger.Debug("Skipping quote for %q from %q: %v", q.Name, c.id, err)
			continue
		}
		observedAt := q.ObservedAt
		if observedAt.IsZero() {
			observedAt = time.Now()
		}
		quote := models.Quote{
			SourceID:   c.id,
			EntityName: q.Name,
			TeamName:   q.Team,
			Market:     market,
			Side:       side,
			Price:      q.Price,
			ObservedAt: observedAt,
		}
		if q.Liquidity != nil {
			quote.Liquidity = *q.Liquidity
			quote.HasLiquidity = true
		}
		quotes = append(quotes, quote)
	}
	return quotes, nil
}

// doRequest performs a GET with retry on transport and 5xx errors.
func (c *Client) doRequest(ctx context.Context, urlStr string) (*http.Response, error) {
	maxRetries := 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
