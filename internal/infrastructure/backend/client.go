// Package backend is the REST client for the marketplace API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultProductTTL = 30 * time.Second
	maxErrorBody      = 64 << 10
)

type Config struct {
	BaseURL         string
	Timeout         time.Duration
	RateLimit       float64
	Burst           int
	ProductCacheTTL time.Duration
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend returned %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return domain.ErrUnauthorized
	}
	return nil
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
	Code   string `json:"code"`
}

// Client talks to the marketplace REST API on behalf of the current session.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	identity   domain.IdentitySource
	limiter    *rate.Limiter
	products   *ttlcache.Cache[string, *domain.Product]
	group      singleflight.Group
	log        logger.Logger

	mu             sync.RWMutex
	onUnauthorized func()
}

func NewClient(cfg Config, identity domain.IdentitySource, log logger.Logger) (*Client, error) {
	baseURL, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL '%s': %w", cfg.BaseURL, err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("base URL '%s' must be http or https", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ProductCacheTTL <= 0 {
		cfg.ProductCacheTTL = defaultProductTTL
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	products := ttlcache.New(
		ttlcache.WithTTL[string, *domain.Product](cfg.ProductCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *domain.Product](),
	)
	go products.Start()

	log.Info("Backend client initialized", "base_url", baseURL.String(), "rate_limit", cfg.RateLimit, "burst", burst)

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		identity:   identity,
		limiter:    rate.NewLimiter(limit, burst),
		products:   products,
		log:        log,
	}, nil
}

// OnUnauthorized sets the hook run whenever an authenticated call is rejected with 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = fn
}

// Close stops the product cache janitor.
func (c *Client) Close() {
	c.products.Stop()
}

type countsResponse struct {
	WishlistCount int `json:"wishlist_count"`
	BidsCount     int `json:"bids_count"`
}

func (c *Client) FetchCounts(ctx context.Context, userID string) (domain.Counts, error) {
	if userID == "" {
		return domain.Counts{}, domain.ErrNoIdentity
	}

	var resp countsResponse
	path := "/api/users/" + url.PathEscape(userID) + "/counts/"
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return domain.Counts{}, err
	}

	return domain.Counts{
		WishlistCount: resp.WishlistCount,
		BidsCount:     resp.BidsCount,
	}, nil
}

// ListWishlist collapses concurrent calls for the same user into one request.
func (c *Client) ListWishlist(ctx context.Context) ([]domain.WishlistItem, error) {
	ident, ok := c.identity.Current()
	if !ok {
		return nil, domain.ErrNoIdentity
	}

	v, err, shared := c.group.Do("wishlist:"+ident.UserID, func() (interface{}, error) {
		var items []domain.WishlistItem
		if err := c.do(ctx, http.MethodGet, "/api/wishlist/", nil, &items); err != nil {
			return nil, err
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug("Shared wishlist list response", "user_id", ident.UserID)
	}

	items := v.([]domain.WishlistItem)
	out := make([]domain.WishlistItem, len(items))
	copy(out, items)
	return out, nil
}

func (c *Client) AddToWishlist(ctx context.Context, productID string) error {
	if _, ok := c.identity.Current(); !ok {
		return domain.ErrNoIdentity
	}
	body := map[string]string{"product_id": productID}
	return c.do(ctx, http.MethodPost, "/api/wishlist/", body, nil)
}

func (c *Client) RemoveFromWishlist(ctx context.Context, productID string) error {
	if _, ok := c.identity.Current(); !ok {
		return domain.ErrNoIdentity
	}
	return c.do(ctx, http.MethodDelete, "/api/wishlist/"+url.PathEscape(productID)+"/", nil, nil)
}

// GetProduct serves from the product cache when the entry has not expired.
func (c *Client) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	if item := c.products.Get(productID); item != nil {
		p := *item.Value()
		return &p, nil
	}

	var product domain.Product
	if err := c.do(ctx, http.MethodGet, "/api/products/"+url.PathEscape(productID)+"/", nil, &product); err != nil {
		return nil, err
	}

	c.products.Set(productID, &product, ttlcache.DefaultTTL)
	p := product
	return &p, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, target interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s %s: %w", method, path, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body for %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request for %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	ident, authenticated := c.identity.Current()
	if authenticated && ident.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ident.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp)
		c.log.Warn("Backend request failed", "method", method, "path", path, "status", resp.StatusCode, "error", apiErr.Message)
		if resp.StatusCode == http.StatusUnauthorized && authenticated {
			c.unauthorized()
		}
		return apiErr
	}

	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response for %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) unauthorized() {
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil {
		if msg := strings.TrimSpace(string(data)); msg != "" {
			apiErr.Message = msg
		}
		return apiErr
	}

	apiErr.Code = eb.Code
	switch {
	case eb.Detail != "":
		apiErr.Message = eb.Detail
	case eb.Error != "":
		apiErr.Message = eb.Error
	}
	return apiErr
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
