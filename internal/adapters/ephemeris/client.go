// Package ephemeris is the HTTP adapter for the external position and
// satellite-name service used by the verifier.
package ephemeris

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/satobs/internal/domain/verify"
	"github.com/okian/satobs/pkg/logger"
	"github.com/okian/satobs/pkg/metrics"
	"github.com/patrickmn/go-cache"
)

const (
	positionPath = "/ephemeris/catalog-number/"
	namesPath    = "/tools/names-from-norad-id/"

	endpointPosition = "position"
	endpointNames    = "names"

	maxBodyBytes = 4 << 20
)

// Config holds client settings.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	NameCacheTTL time.Duration
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://satchecker.cps.iau.org",
		Timeout:      10 * time.Second,
		NameCacheTTL: time.Hour,
	}
}

// Client implements verify.Ephemeris over HTTP.
type Client struct {
	config     Config
	httpClient *http.Client
	names      *cache.Cache
	logger     logger.Logger
}

var _ verify.Ephemeris = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client. Zero config fields fall back to DefaultConfig.
func New(cfg Config, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.NameCacheTTL <= 0 {
		cfg.NameCacheTTL = def.NameCacheTTL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		names:      cache.New(cfg.NameCacheTTL, 2*cfg.NameCacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("ephemeris")
	}
	return c
}

// Position calls the catalog-number ephemeris endpoint.
func (c *Client) Position(ctx context.Context, q verify.PositionQuery) ([]verify.Position, error) {
	params := url.Values{}
	params.Set("catalog", strconv.Itoa(q.CatalogNumber))
	params.Set("julian_date", strconv.FormatFloat(q.JulianDate, 'f', -1, 64))
	params.Set("latitude", strconv.FormatFloat(q.LatDeg, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(q.LongDeg, 'f', -1, 64))
	params.Set("elevation", strconv.FormatFloat(q.AltM, 'f', -1, 64))
	params.Set("min_altitude", strconv.FormatFloat(q.MinAltitudeDeg, 'f', -1, 64))

	var body tableResponse
	if err := c.get(ctx, endpointPosition, positionPath, params, &body); err != nil {
		return nil, err
	}
	positions, err := body.positions()
	if err != nil {
		return nil, fmt.Errorf("catalog %d: %w", q.CatalogNumber, err)
	}
	return positions, nil
}

// Names returns the name history of a catalog number. Non-empty results are
// cached for NameCacheTTL.
func (c *Client) Names(ctx context.Context, catalogNumber int) ([]verify.SatelliteName, error) {
	key := strconv.Itoa(catalogNumber)
	if cached, ok := c.names.Get(key); ok {
		if names, ok := cached.([]verify.SatelliteName); ok {
			metrics.RecordNameCacheHit()
			return names, nil
		}
	}
	metrics.RecordNameCacheMiss()

	params := url.Values{}
	params.Set("id", key)
	var rows []nameRow
	if err := c.get(ctx, endpointNames, namesPath, params, &rows); err != nil {
		return nil, err
	}

	names := make([]verify.SatelliteName, 0, len(rows))
	for _, r := range rows {
		n := verify.SatelliteName{Name: r.Name, NoradID: int(r.NoradID), Current: r.current()}
		if r.DateAdded != "" {
			t, err := parseTime(r.DateAdded)
			if err != nil {
				return nil, fmt.Errorf("%w: date_added %q", verify.ErrBadResponse, r.DateAdded)
			}
			n.DateAdded = t
		}
		names = append(names, n)
	}
	if len(names) > 0 {
		c.names.Set(key, names, cache.DefaultExpiration)
	}
	return names, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values, out any) error {
	start := time.Now()
	result := "ok"
	defer func() {
		metrics.RecordEphemerisRequest(endpoint, result, float64(time.Since(start).Nanoseconds())/1e6)
	}()

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	u := c.config.BaseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, http.NoBody)
	if err != nil {
		result = "bad_request"
		return fmt.Errorf("%w: build request: %v", verify.ErrBadResponse, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result = "transport"
		c.logger.Warn(ctx, "ephemeris request failed",
			logger.String("endpoint", endpoint),
			logger.Error(err),
		)
		return fmt.Errorf("%w: %v", verify.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		result = "transport"
		return fmt.Errorf("%w: read body: %v", verify.ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		result = "status_" + strconv.Itoa(resp.StatusCode)
		c.logger.Warn(ctx, "ephemeris service returned non-200",
			logger.String("endpoint", endpoint),
			logger.Int("status", resp.StatusCode),
		)
		return fmt.Errorf("%w: status %d", verify.ErrBadResponse, resp.StatusCode)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		result = "decode"
		return fmt.Errorf("%w: decode: %v", verify.ErrBadResponse, err)
	}
	return nil
}
