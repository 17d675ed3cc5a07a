package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/shopcart-backend/internal/auth"
	"github.com/angelmondragon/shopcart-backend/internal/cart"
	"github.com/angelmondragon/shopcart-backend/internal/policy"
	"github.com/angelmondragon/shopcart-backend/internal/products"
	pkgAuth "github.com/angelmondragon/shopcart-backend/pkg/auth"
	"github.com/angelmondragon/shopcart-backend/pkg/config"
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	"github.com/angelmondragon/shopcart-backend/pkg/metrics"
	"github.com/angelmondragon/shopcart-backend/pkg/pagination"
	"github.com/angelmondragon/shopcart-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) { return true, nil }

type stubAuthService struct{}

func (stubAuthService) Register(ctx context.Context, caller *policy.Principal, req auth.RegisterRequest) (*models.User, error) {
	return &models.User{ID: uuid.New(), Email: req.Email}, nil
}

func (stubAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	return &auth.LoginResponse{AccessToken: "Bearer-token"}, nil
}

func (stubAuthService) Logout(ctx context.Context, userID uuid.UUID, accessID string) error {
	return nil
}

type stubProductService struct{}

func (stubProductService) List(ctx context.Context, p policy.Principal, params pagination.Params) (pagination.Page[models.Product], error) {
	return pagination.NewPage[models.Product](nil, params, 0), nil
}

func (stubProductService) Get(ctx context.Context, p policy.Principal, id uuid.UUID) (*models.Product, error) {
	return &models.Product{ID: id}, nil
}

func (stubProductService) Create(ctx context.Context, p policy.Principal, input products.CreateProductInput) (*models.Product, error) {
	return &models.Product{ID: uuid.New(), Name: input.Name}, nil
}

func (stubProductService) Update(ctx context.Context, p policy.Principal, id uuid.UUID, input products.UpdateProductInput) (*models.Product, error) {
	return &models.Product{ID: id}, nil
}

func (stubProductService) Delete(ctx context.Context, p policy.Principal, id uuid.UUID) error {
	return nil
}

type countingCartService struct {
	adds int
}

func (s *countingCartService) AddToCart(ctx context.Context, p policy.Principal, items []cart.ItemInput) (*cart.CartView, error) {
	s.adds++
	return &cart.CartView{Items: []models.CartItem{}, TotalPrice: decimal.NewFromInt(int64(s.adds))}, nil
}

func (s *countingCartService) ViewCart(ctx context.Context, p policy.Principal) (*cart.CartView, error) {
	return &cart.CartView{Items: []models.CartItem{}}, nil
}

func (s *countingCartService) UpdateCartItem(ctx context.Context, p policy.Principal, cartID uuid.UUID, items []cart.ItemInput) (*cart.UpdateResult, error) {
	return &cart.UpdateResult{}, nil
}

func (s *countingCartService) RemoveCartItem(ctx context.Context, p policy.Principal, cartID uuid.UUID, productIDs []uuid.UUID) error {
	return nil
}

func (s *countingCartService) Checkout(ctx context.Context, p policy.Principal) (*cart.CheckoutResult, error) {
	return &cart.CheckoutResult{}, nil
}

func (s *countingCartService) ViewCheckedOut(ctx context.Context, p policy.Principal) ([]models.Cart, error) {
	return nil, nil
}

type harness struct {
	handler http.Handler
	cart    *countingCartService
	jwt     config.JWTConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))

	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "shopcart", ExpirationMinutes: 30},
		AuthRateLimit: config.AuthRateLimitConfig{
			LoginWindow:    time.Minute,
			LoginIPLimit:   2,
			RegisterWindow: time.Minute,
		},
	}
	reg := prometheus.NewRegistry()
	cartSvc := &countingCartService{}
	h := NewRouter(cfg, nil, stubPinger{}, client, stubSessions{}, stubAuthService{}, stubProductService{}, cartSvc, metrics.NewHTTPMetrics(reg), reg)
	return &harness{handler: h, cart: cartSvc, jwt: cfg.JWT}
}

func (h *harness) token(t *testing.T, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(h.jwt, time.Now(), pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer-" + token
}

func (h *harness) do(method, path, body, token string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	h.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	h := newHarness(t)
	for _, path := range []string{"/health/live", "/health/ready"} {
		if resp := h.do(http.MethodGet, path, "", "", nil); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestCartRequiresAuth(t *testing.T) {
	h := newHarness(t)
	if resp := h.do(http.MethodGet, "/cart", "", "", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	resp := h.do(http.MethodGet, "/cart", "", h.token(t, enums.UserRoleUser), nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestProductsRequireAdmin(t *testing.T) {
	h := newHarness(t)
	if resp := h.do(http.MethodGet, "/products", "", h.token(t, enums.UserRoleUser), nil); resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	if resp := h.do(http.MethodGet, "/products", "", h.token(t, enums.UserRoleAdmin), nil); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp := h.do(http.MethodDelete, "/products/"+uuid.NewString(), "", h.token(t, enums.UserRoleAdmin), nil); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestCartAddIsIdempotentWithKey(t *testing.T) {
	h := newHarness(t)
	token := h.token(t, enums.UserRoleUser)
	body := `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":1}]}`
	headers := map[string]string{"Idempotency-Key": "add-1"}

	first := h.do(http.MethodPost, "/cart/add", body, token, headers)
	second := h.do(http.MethodPost, "/cart/add", body, token, headers)

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("unexpected statuses %d %d", first.Code, second.Code)
	}
	if h.cart.adds != 1 {
		t.Fatalf("expected one add, got %d", h.cart.adds)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replay header")
	}

	h.do(http.MethodPost, "/cart/add", body, token, nil)
	if h.cart.adds != 2 {
		t.Fatalf("requests without a key must run, got %d adds", h.cart.adds)
	}
}

func TestLoginRateLimited(t *testing.T) {
	h := newHarness(t)
	body := `{"email":"ada@example.com","password":"hunter22"}`
	var last int
	for i := 0; i < 3; i++ {
		last = h.do(http.MethodPost, "/login", body, "", nil).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit, got %d", last)
	}
}

func TestMetricsExposeRoutePatterns(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodGet, "/products/"+uuid.NewString(), "", h.token(t, enums.UserRoleAdmin), nil)

	resp := h.do(http.MethodGet, "/metrics", "", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	out := resp.Body.String()
	if !strings.Contains(out, `route="/products/{id}"`) {
		t.Fatalf("expected route pattern label in metrics output")
	}
}
