package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/shopcart-backend/internal/policy"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcart-backend/pkg/errors"
	"github.com/google/uuid"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func idempotentRouter(store *fakeStore, calls *int, status int) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := WithPrincipal(req.Context(), policy.Principal{UserID: uuid.MustParse("7d3c9a52-51a6-4c2b-9a7e-1b1f3f0c6a11"), Role: enums.UserRoleUser}, "access")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	handler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		*calls++
		body, _ := io.ReadAll(req.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"call":%d,"echo":%q}`, *calls, string(body))
	})
	r.Route("/cart", func(r chi.Router) {
		r.With(Idempotency(store, nil)).Post("/add", handler)
		r.With(Idempotency(store, nil)).Post("/checkout", handler)
		r.With(Idempotency(store, nil)).Patch("/{cartID}", handler)
	})
	return r
}

func sendIdempotent(h http.Handler, method, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestRouteTTL(t *testing.T) {
	if ttl, ok := routeTTL(http.MethodPost, "/cart/add"); !ok || ttl != defaultIdempotencyTTL {
		t.Fatalf("expected add to use default ttl, got %v %v", ttl, ok)
	}
	if ttl, ok := routeTTL(http.MethodPost, "/cart/checkout"); !ok || ttl != criticalIdempotencyTTL {
		t.Fatalf("expected checkout to use critical ttl, got %v %v", ttl, ok)
	}
	if _, ok := routeTTL(http.MethodGet, "/cart/add"); ok {
		t.Fatalf("GET should not be covered")
	}
	if _, ok := routeTTL(http.MethodPatch, "/cart/{cartID}"); ok {
		t.Fatalf("update should not be covered")
	}
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	store := newFakeStore()
	calls := 0
	h := idempotentRouter(store, &calls, http.StatusOK)

	sendIdempotent(h, http.MethodPost, "/cart/add", "", `{"items":[]}`)
	sendIdempotent(h, http.MethodPost, "/cart/add", "", `{"items":[]}`)

	if calls != 2 {
		t.Fatalf("expected both requests to run, got %d", calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("nothing should be stored without a key: %v", store.data)
	}
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	store := newFakeStore()
	calls := 0
	h := idempotentRouter(store, &calls, http.StatusOK)

	first := sendIdempotent(h, http.MethodPost, "/cart/checkout", "k-1", `{}`)
	second := sendIdempotent(h, http.MethodPost, "/cart/checkout", "k-1", `{}`)

	if calls != 1 {
		t.Fatalf("handler should run once, ran %d", calls)
	}
	if second.Code != first.Code || second.Body.String() != first.Body.String() {
		t.Fatalf("replay mismatch: %d %q vs %d %q", first.Code, first.Body.String(), second.Code, second.Body.String())
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("replay header missing")
	}
	if first.Header().Get("Idempotent-Replayed") != "" {
		t.Fatalf("first response must not be marked as replay")
	}
	for key, ttl := range store.ttls {
		if ttl != criticalIdempotencyTTL {
			t.Fatalf("expected %s stored with checkout ttl, got %v", key, ttl)
		}
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	store := newFakeStore()
	calls := 0
	h := idempotentRouter(store, &calls, http.StatusOK)

	sendIdempotent(h, http.MethodPost, "/cart/add", "k-2", `{"items":[1]}`)
	resp := sendIdempotent(h, http.MethodPost, "/cart/add", "k-2", `{"items":[2]}`)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	assertErrorCode(t, resp, pkgerrors.CodeIdempotency)
	if calls != 1 {
		t.Fatalf("handler should not run for the mismatched body")
	}
}

func TestIdempotencyRejectsInFlightDuplicate(t *testing.T) {
	store := newFakeStore()
	calls := 0
	h := idempotentRouter(store, &calls, http.StatusOK)

	key := store.IdempotencyKey("7d3c9a52-51a6-4c2b-9a7e-1b1f3f0c6a11|POST|/cart/add", "k-3")
	claim, _ := json.Marshal(idempotencyRecord{Pending: true, RequestHash: hashBody([]byte(`{}`))})
	store.data[key] = string(claim)

	resp := sendIdempotent(h, http.MethodPost, "/cart/add", "k-3", `{}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if calls != 0 {
		t.Fatalf("handler should not run while the key is claimed")
	}
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	calls := 0
	h := idempotentRouter(store, &calls, http.StatusInternalServerError)

	sendIdempotent(h, http.MethodPost, "/cart/add", "k-4", `{}`)
	if len(store.data) != 0 {
		t.Fatalf("server errors must release the key: %v", store.data)
	}
	sendIdempotent(h, http.MethodPost, "/cart/add", "k-4", `{}`)
	if calls != 2 {
		t.Fatalf("retry should execute again, got %d calls", calls)
	}
}

func TestIdempotencyStoresClientErrors(t *testing.T) {
	store := newFakeStore()
	calls := 0
	h := idempotentRouter(store, &calls, http.StatusBadRequest)

	sendIdempotent(h, http.MethodPost, "/cart/add", "k-5", `{}`)
	resp := sendIdempotent(h, http.MethodPost, "/cart/add", "k-5", `{}`)
	if resp.Code != http.StatusBadRequest || calls != 1 {
		t.Fatalf("expected stored 400 replay, got %d after %d calls", resp.Code, calls)
	}
}

func TestIdempotencyIgnoresUncoveredRoutes(t *testing.T) {
	store := newFakeStore()
	calls := 0
	h := idempotentRouter(store, &calls, http.StatusOK)

	sendIdempotent(h, http.MethodPatch, "/cart/"+uuid.NewString(), "k-6", `{}`)
	sendIdempotent(h, http.MethodPatch, "/cart/"+uuid.NewString(), "k-6", `{}`)
	if calls != 2 {
		t.Fatalf("uncovered route should not be deduplicated")
	}
}

func assertErrorCode(t *testing.T, resp *httptest.ResponseRecorder, code pkgerrors.Code) {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if body.Error.Code != string(code) {
		t.Fatalf("expected error code %s got %s", code, body.Error.Code)
	}
}
