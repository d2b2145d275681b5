// Package entropy provides the random source that drives every stochastic draw in the
// simulation. The default source is a seeded PCG; crypto/rand and a pooled random.org
// client are available as alternatives.
package entropy

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	mrand "math/rand/v2"
	"net/http"
	"sync"
	"time"
)

// Dice is the uniform random source consumed by the simulation.
type Dice interface {
	// Chance reports whether an event with probability p happens.
	Chance(p float64) bool
	// Uniform returns a value in [lo, hi).
	Uniform(lo, hi float64) float64
	// IntN returns a value in [0, n).
	IntN(n int) int
}

// FloatSource yields uniform floats in [0, 1).
type FloatSource interface {
	Float() float64
}

// Roller implements Dice on top of a FloatSource.
type Roller struct {
	src FloatSource
}

// NewRoller wraps src as Dice.
func NewRoller(src FloatSource) *Roller {
	return &Roller{src: src}
}

// NewSeeded returns Dice backed by a PCG generator. A zero seed selects crypto/rand.
func NewSeeded(seed uint64) *Roller {
	if seed == 0 {
		return NewRoller(CryptoSource{})
	}
	return NewRoller(&pcgSource{r: mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))})
}

// Chance never fires for p <= 0 and always fires for p >= 1.
func (r *Roller) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return r.src.Float() < p
}

func (r *Roller) Uniform(lo, hi float64) float64 {
	return lo + r.src.Float()*(hi-lo)
}

func (r *Roller) IntN(n int) int {
	if n <= 1 {
		return 0
	}
	v := int(r.src.Float() * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

type pcgSource struct {
	r *mrand.Rand
}

func (p *pcgSource) Float() float64 { return p.r.Float64() }

// CryptoSource draws from crypto/rand.
type CryptoSource struct{}

func (CryptoSource) Float() float64 { return cryptoRandFloat() }

// Client provides true random numbers from random.org with a local pool.
type Client struct {
	apiKey string
	client *http.Client

	mu         sync.Mutex
	pool       []float64
	retryAfter time.Time // No refill attempts before this after a failure
}

// refillCooldown is how long the pool stays on crypto/rand after a failed refill.
const refillCooldown = 5 * time.Minute

// NewClient creates a random.org client. Returns nil if apiKey is empty.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Float returns a random float64 in [0, 1). Uses the pool, refilling from
// random.org when low. Falls back to crypto/rand on API failure.
func (c *Client) Float() float64 {
	if c == nil {
		return cryptoRandFloat()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pool) < 10 && !time.Now().Before(c.retryAfter) {
		if err := c.refill(); err != nil {
			slog.Debug("random.org refill failed, using crypto/rand", "error", err, "retry_in", refillCooldown)
			c.retryAfter = time.Now().Add(refillCooldown)
		}
	}

	if len(c.pool) == 0 {
		return cryptoRandFloat()
	}

	val := c.pool[0]
	c.pool = c.pool[1:]
	return val
}

func (c *Client) refill() error {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateDecimalFractions",
		"params": map[string]any{
			"apiKey":        c.apiKey,
			"n":             1000,
			"decimalPlaces": 8,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	resp, err := c.client.Post("https://api.random.org/json-rpc/4/invoke", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read: %w", err)
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
		return fmt.Errorf("parse: %w", err)
	}
	if result.Error != nil {
		return fmt.Errorf("api error: %s", result.Error.Message)
	}
	if len(result.Result.Random.Data) == 0 {
		return fmt.Errorf("empty response")
	}

	c.pool = append(c.pool, result.Result.Random.Data...)
	slog.Debug("random.org pool refilled", "count", len(result.Result.Random.Data))
	return nil
}

// cryptoRandFloat generates a random float64 using crypto/rand.
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
