// Package entropy provides the random sources that drive daily price moves.
// A seeded math/rand source gives reproducible runs; the random.org client
// provides true randomness and falls back to crypto/rand when the API is
// unavailable.
package entropy

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	mrand "math/rand"
	"net/http"
	"sync"
	"time"
)

// Source yields standard normal draws (mean 0, stddev 1).
type Source interface {
	NormFloat64() float64
}

// Seeded is a deterministic Source safe for concurrent use.
type Seeded struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeeded creates a deterministic source from seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewSource(seed))}
}

func (s *Seeded) NormFloat64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.NormFloat64()
}

const (
	randomOrgURL = "https://api.random.org/json-rpc/4/invoke"

	lowWater     = 10
	retryBackoff = 30 * time.Second
)

// Client provides true random numbers from random.org with a local pool.
// Draws never wait on the network: the pool is refilled in the background
// and crypto/rand covers any gap.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client

	mu        sync.Mutex
	pool      []float64
	refilling bool
	retryAt   time.Time

	// Second Box-Muller variate, kept for the next NormFloat64 call.
	spare    float64
	hasSpare bool
}

// NewClient creates a random.org client. Returns nil if apiKey is empty.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: randomOrgURL,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Float returns a random float64 in [0, 1). Uses the pool, refilling from
// random.org when low. Falls back to crypto/rand while the pool is empty.
func (c *Client) Float() float64 {
	if c == nil {
		return cryptoRandFloat()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.floatLocked()
}

func (c *Client) floatLocked() float64 {
	if len(c.pool) < lowWater && !c.refilling && time.Now().After(c.retryAt) {
		c.refilling = true
		go c.refillAsync()
	}

	if len(c.pool) == 0 {
		return cryptoRandFloat()
	}

	val := c.pool[0]
	c.pool = c.pool[1:]
	return val
}

func (c *Client) refillAsync() {
	data, err := c.fetch(context.Background())

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refilling = false
	if err != nil {
		c.retryAt = time.Now().Add(retryBackoff)
		return
	}
	c.pool = append(c.pool, data...)
}

// Prefetch fills the pool before the first draw and returns its size.
// Failures are logged; draws then fall back to crypto/rand.
func (c *Client) Prefetch(ctx context.Context) int {
	if c == nil {
		return 0
	}
	data, err := c.fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.pool = append(c.pool, data...)
	}
	return len(c.pool)
}

// NormFloat64 turns pairs of uniform draws into normal draws (Box-Muller).
func (c *Client) NormFloat64() float64 {
	if c == nil {
		return boxMuller(cryptoRandFloat, nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hasSpare {
		c.hasSpare = false
		return c.spare
	}
	return boxMuller(c.floatLocked, func(z float64) {
		c.spare = z
		c.hasSpare = true
	})
}

func boxMuller(uniform func() float64, keep func(float64)) float64 {
	u1 := uniform()
	for u1 <= 0 {
		u1 = uniform()
	}
	u2 := uniform()

	r := math.Sqrt(-2 * math.Log(u1))
	theta := 2 * math.Pi * u2
	if keep != nil {
		keep(r * math.Sin(theta))
	}
	return r * math.Cos(theta)
}

// fetch asks random.org for a batch of uniform fractions.
func (c *Client) fetch(ctx context.Context) ([]float64, error) {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateDecimalFractions",
		"params": map[string]any{
			"apiKey":        c.apiKey,
			"n":             100,
			"decimalPlaces": 6,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		slog.Debug("random.org fetch failed", "error", err)
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Debug("random.org read failed", "error", err)
		return nil, err
	}

	var result struct {
		Result struct {
			Random struct {
				Data []float64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		slog.Debug("random.org parse failed", "status", resp.StatusCode, "error", err)
		return nil, err
	}

	if result.Error != nil {
		slog.Debug("random.org API error", "error", result.Error.Message)
		return nil, fmt.Errorf("random.org: %s", result.Error.Message)
	}

	slog.Debug("random.org pool refilled", "count", len(result.Result.Random.Data))
	return result.Result.Random.Data, nil
}

// cryptoRandFloat generates a random float64 using crypto/rand as fallback.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// New picks the source for a run: random.org when a key is configured,
// otherwise a math/rand source seeded with seed (or the clock when seed is 0).
func New(apiKey string, seed int64) Source {
	if c := NewClient(apiKey); c != nil {
		return c
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewSeeded(seed)
}
