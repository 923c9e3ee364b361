package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"auction-storefront/internal/domain"
	"auction-storefront/pkg/logger"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubIdentity struct {
	mu    sync.Mutex
	ident *domain.Identity
}

func (s *stubIdentity) Current() (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ident == nil {
		return domain.Identity{}, false
	}
	return *s.ident, true
}

func loggedIn(userID string) *stubIdentity {
	return &stubIdentity{ident: &domain.Identity{UserID: userID, Token: "tok-" + userID}}
}

func newTestClient(t *testing.T, router *mux.Router, ident domain.IdentitySource, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	c, err := NewClient(cfg, ident, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNewClient_RejectsBadBaseURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "ftp://example.com"}, loggedIn("u1"), logger.NewNop())
	assert.Error(t, err)
}

func TestFetchCounts(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/users/{id}/counts/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "u1", mux.Vars(r)["id"])
		assert.Equal(t, "Bearer tok-u1", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]int{"wishlist_count": 3, "bids_count": 2})
	}).Methods(http.MethodGet)

	c := newTestClient(t, router, loggedIn("u1"), Config{})

	counts, err := c.FetchCounts(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, counts.WishlistCount)
	assert.Equal(t, 2, counts.BidsCount)
}

func TestFetchCounts_EmptyUser(t *testing.T) {
	c := newTestClient(t, mux.NewRouter(), loggedIn("u1"), Config{})

	_, err := c.FetchCounts(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrNoIdentity)
}

func TestUnauthorizedInvokesHook(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/users/{id}/counts/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token expired", "code": "token_not_valid"})
	})

	c := newTestClient(t, router, loggedIn("u1"), Config{})
	var expired atomic.Int32
	c.OnUnauthorized(func() { expired.Add(1) })

	_, err := c.FetchCounts(context.Background(), "u1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "token_not_valid", apiErr.Code)
	assert.Equal(t, "Token expired", apiErr.Message)
	assert.Equal(t, int32(1), expired.Load())
}

func TestUnauthorizedWithoutSessionSkipsHook(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/products/{id}/", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	})

	c := newTestClient(t, router, &stubIdentity{}, Config{})
	var expired atomic.Int32
	c.OnUnauthorized(func() { expired.Add(1) })

	_, err := c.GetProduct(context.Background(), "p1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Equal(t, int32(0), expired.Load())
}

func TestErrorBodies(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/products/plain/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})
	router.HandleFunc("/api/products/error-field/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid product id"})
	})
	router.HandleFunc("/api/products/empty/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	c := newTestClient(t, router, loggedIn("u1"), Config{})

	tests := []struct {
		id      string
		status  int
		message string
	}{
		{"plain", http.StatusBadGateway, "upstream exploded"},
		{"error-field", http.StatusBadRequest, "Invalid product id"},
		{"empty", http.StatusNotFound, "Not Found"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			_, err := c.GetProduct(context.Background(), tt.id)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.NotErrorIs(t, err, domain.ErrUnauthorized)
		})
	}

	_, err := c.GetProduct(context.Background(), "empty")
	assert.True(t, IsNotFound(err))
}

func TestGetProduct_Cached(t *testing.T) {
	var hits atomic.Int32
	end := time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)
	router := mux.NewRouter()
	router.HandleFunc("/api/products/{id}/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusOK, domain.Product{
			ID:        mux.Vars(r)["id"],
			Title:     "Pocket watch",
			StartTime: end.Add(-48 * time.Hour),
			EndTime:   end,
		})
	}).Methods(http.MethodGet)

	c := newTestClient(t, router, loggedIn("u1"), Config{ProductCacheTTL: time.Minute})

	first, err := c.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	second, err := c.GetProduct(context.Background(), "p1")
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, 48*time.Hour, second.Duration())

	second.Title = "mutated"
	third, err := c.GetProduct(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Pocket watch", third.Title)

	_, err = c.GetProduct(context.Background(), "p2")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestWishlistMutations(t *testing.T) {
	var mu sync.Mutex
	var added, removed []string

	router := mux.NewRouter()
	router.HandleFunc("/api/wishlist/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		added = append(added, body["product_id"])
		mu.Unlock()
		writeJSON(w, http.StatusCreated, map[string]string{"id": "w1", "product_id": body["product_id"]})
	}).Methods(http.MethodPost)
	router.HandleFunc("/api/wishlist/{product_id}/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		removed = append(removed, mux.Vars(r)["product_id"])
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	c := newTestClient(t, router, loggedIn("u1"), Config{})

	require.NoError(t, c.AddToWishlist(context.Background(), "p7"))
	require.NoError(t, c.RemoveFromWishlist(context.Background(), "p7"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"p7"}, added)
	assert.Equal(t, []string{"p7"}, removed)
}

func TestWishlist_RequiresSession(t *testing.T) {
	c := newTestClient(t, mux.NewRouter(), &stubIdentity{}, Config{})

	_, err := c.ListWishlist(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoIdentity)
	assert.ErrorIs(t, c.AddToWishlist(context.Background(), "p1"), domain.ErrNoIdentity)
	assert.ErrorIs(t, c.RemoveFromWishlist(context.Background(), "p1"), domain.ErrNoIdentity)
}

func TestListWishlist_CollapsesConcurrentCalls(t *testing.T) {
	var hits atomic.Int32
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})

	router := mux.NewRouter()
	router.HandleFunc("/api/wishlist/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case arrived <- struct{}{}:
		default:
		}
		<-release
		writeJSON(w, http.StatusOK, []domain.WishlistItem{{ID: "w1", ProductID: "p1"}, {ID: "w2", ProductID: "p2"}})
	}).Methods(http.MethodGet)

	c := newTestClient(t, router, loggedIn("u1"), Config{})

	const callers = 5
	var wg sync.WaitGroup
	results := make([][]domain.WishlistItem, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = c.ListWishlist(context.Background())
	}()
	<-arrived

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.ListWishlist(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Len(t, results[i], 2)
	}
}

func TestRateLimiterBoundsOutboundCalls(t *testing.T) {
	var hits atomic.Int32
	router := mux.NewRouter()
	router.HandleFunc("/api/users/{id}/counts/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusOK, map[string]int{"wishlist_count": 1, "bids_count": 1})
	})

	c := newTestClient(t, router, loggedIn("u1"), Config{RateLimit: 0.01, Burst: 1})

	_, err := c.FetchCounts(context.Background(), "u1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchCounts(ctx, "u1")
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}
