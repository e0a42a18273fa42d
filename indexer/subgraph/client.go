// Package subgraph reads Uniswap V2 style pair data from GraphQL indexers (The Graph subgraphs).
package subgraph

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/machinebox/graphql"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "subgraph").Logger()
}

// FailoverConfig controls retry and failover behavior of the Client
type FailoverConfig struct {
	// MaxRetries is the number of times to retry a failed query on the current endpoint
	MaxRetries int
	// RetryDelay is the initial delay between retries (doubles with each retry)
	RetryDelay time.Duration
	// HealthCheckInterval is how often to check if the primary endpoint is back up
	HealthCheckInterval time.Duration
	// Timeout is the HTTP request timeout, indexers can take minutes on large queries
	Timeout time.Duration
}

// DefaultFailoverConfig returns the defaults used by NewClient
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		MaxRetries:          2,
		RetryDelay:          500 * time.Millisecond,
		HealthCheckInterval: 30 * time.Second,
		Timeout:             300 * time.Second,
	}
}

// Client runs GraphQL queries against a primary indexer endpoint and switches to
// backup endpoints when the primary keeps failing.
type Client struct {
	httpClient     *http.Client
	clients        map[string]*graphql.Client
	primaryURL     string
	backupURLs     []string
	currentURL     string
	mu             sync.RWMutex
	healthChecker  *healthChecker
	failoverConfig FailoverConfig
}

// NewClient creates a Client with a single endpoint
func NewClient(endpoint string) (*Client, error) {
	return NewClientWithFailover(endpoint, nil, DefaultFailoverConfig())
}

// NewClientWithFailover creates a Client with backup endpoints. A health checker restoring
// the primary endpoint runs in the background when backups are given, stop it with Close.
func NewClientWithFailover(primaryURL string, backupURLs []string, config FailoverConfig) (*Client, error) {
	if err := validateURL(primaryURL); err != nil {
		return nil, fmt.Errorf("invalid primary endpoint %q: %w", primaryURL, err)
	}

	validBackups := make([]string, 0, len(backupURLs))
	for _, u := range backupURLs {
		if err := validateURL(u); err != nil {
			log.Warn().Err(err).Str("url", u).Msg("Invalid backup URL, skipping")
			continue
		}
		validBackups = append(validBackups, u)
	}

	httpClient := &http.Client{Timeout: config.Timeout}
	c := &Client{
		httpClient:     httpClient,
		clients:        make(map[string]*graphql.Client, len(validBackups)+1),
		primaryURL:     primaryURL,
		backupURLs:     validBackups,
		currentURL:     primaryURL,
		failoverConfig: config,
	}
	for _, endpoint := range append([]string{primaryURL}, validBackups...) {
		c.clients[endpoint] = graphql.NewClient(endpoint, graphql.WithHTTPClient(httpClient))
	}

	if len(validBackups) > 0 && config.HealthCheckInterval > 0 {
		c.startHealthChecker()
	}

	log.Info().
		Str("primary", primaryURL).
		Int("backups", len(validBackups)).
		Msg("Subgraph client initialized")
	return c, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}

// Endpoint returns the endpoint queries are currently sent to
func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentURL
}

// Close stops the health checker
func (c *Client) Close() {
	if c.healthChecker != nil {
		c.healthChecker.stop()
	}
}

// Run executes the query with retries on the current endpoint, then once more on
// the next healthy endpoint. resp is decoded from the data field of the response.
func (c *Client) Run(ctx context.Context, query string, vars map[string]any, resp any) error {
	var lastErr error
	retryDelay := c.failoverConfig.RetryDelay

	for attempt := 0; attempt <= c.failoverConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("query canceled: %w (last error: %w)", ctx.Err(), lastErr)
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
		}

		endpoint := c.Endpoint()
		if err := c.run(ctx, endpoint, query, vars, resp); err != nil {
			lastErr = err
			log.Debug().Err(err).Str("url", endpoint).Int("attempt", attempt+1).Msg("Query failed")
			continue
		}
		return nil
	}

	if len(c.backupURLs) > 0 && c.failover(ctx) {
		if err := c.run(ctx, c.Endpoint(), query, vars, resp); err != nil {
			return fmt.Errorf("failover query failed: %w (original: %w)", err, lastErr)
		}
		return nil
	}

	return fmt.Errorf("query failed after %d retries: %w", c.failoverConfig.MaxRetries+1, lastErr)
}

func (c *Client) run(ctx context.Context, endpoint, query string, vars map[string]any, resp any) error {
	req := graphql.NewRequest(query)
	for key, value := range vars {
		req.Var(key, value)
	}
	return c.clients[endpoint].Run(ctx, req, resp)
}

// isEndpointHealthy sends the smallest valid GraphQL query to the endpoint
func (c *Client) isEndpointHealthy(ctx context.Context, endpoint string) bool {
	var resp struct {
		Typename string `json:"__typename"`
	}
	if err := c.run(ctx, endpoint, "{ __typename }", nil, &resp); err != nil {
		log.Debug().Err(err).Str("url", endpoint).Msg("Health check failed")
		return false
	}
	return true
}

// failover switches to the next healthy endpoint, returns false when none is healthy
func (c *Client) failover(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	allURLs := append([]string{c.primaryURL}, c.backupURLs...)
	currentIdx := 0
	for i, u := range allURLs {
		if u == c.currentURL {
			currentIdx = i
			break
		}
	}

	for i := 1; i < len(allURLs); i++ {
		nextURL := allURLs[(currentIdx+i)%len(allURLs)]
		if c.isEndpointHealthy(ctx, nextURL) {
			c.currentURL = nextURL
			log.Info().Str("url", nextURL).Msg("Failover to endpoint")
			return true
		}
	}

	log.Warn().Str("url", c.currentURL).Msg("All endpoints unhealthy, staying on current")
	return false
}

// healthChecker periodically checks if the primary endpoint is healthy again
type healthChecker struct {
	client    *Client
	stopCh    chan struct{}
	stoppedCh chan struct{}
	once      sync.Once
}

func (c *Client) startHealthChecker() {
	c.healthChecker = &healthChecker{
		client:    c,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}

	go func() {
		defer close(c.healthChecker.stoppedCh)
		ticker := time.NewTicker(c.failoverConfig.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.healthChecker.stopCh:
				return
			case <-ticker.C:
				c.healthChecker.checkAndRestore()
			}
		}
	}()
}

func (h *healthChecker) stop() {
	h.once.Do(func() {
		close(h.stopCh)
	})
	<-h.stoppedCh
}

func (h *healthChecker) checkAndRestore() {
	c := h.client
	if c.Endpoint() == c.primaryURL {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.failoverConfig.HealthCheckInterval)
	defer cancel()
	if c.isEndpointHealthy(ctx, c.primaryURL) {
		c.mu.Lock()
		c.currentURL = c.primaryURL
		c.mu.Unlock()
		log.Info().Str("url", c.primaryURL).Msg("Restored primary endpoint")
	}
}
