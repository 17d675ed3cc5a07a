package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/shopcart-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/shopcart-backend/api/controllers/cart"
	"github.com/angelmondragon/shopcart-backend/api/middleware"
	"github.com/angelmondragon/shopcart-backend/internal/auth"
	"github.com/angelmondragon/shopcart-backend/internal/cart"
	"github.com/angelmondragon/shopcart-backend/internal/products"
	"github.com/angelmondragon/shopcart-backend/pkg/auth/session"
	"github.com/angelmondragon/shopcart-backend/pkg/config"
	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/angelmondragon/shopcart-backend/pkg/metrics"
	"github.com/angelmondragon/shopcart-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessions session.AccessSessionChecker,
	authService auth.Service,
	productService products.Service,
	cartService cart.Service,
	httpMetrics *metrics.HTTPMetrics,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	requireAuth := middleware.Auth(cfg.JWT, sessions, logg)
	idempotent := middleware.Idempotency(redisClient, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.With(
		middleware.AuthRateLimit(registerPolicy, redisClient, logg),
		middleware.OptionalAuth(cfg.JWT, sessions, logg),
	).Post("/register", controllers.AuthRegister(authService, logg))
	r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(authService, logg))
	r.With(requireAuth).Post("/logout", controllers.AuthLogout(authService, logg))

	r.Route("/products", func(r chi.Router) {
		r.Use(requireAuth, middleware.RequireRole(enums.UserRoleAdmin, logg))
		r.Get("/", controllers.ProductsList(productService, logg))
		r.Post("/", controllers.ProductsCreate(productService, logg))
		r.Get("/{id}", controllers.ProductsShow(productService, logg))
		r.Put("/{id}", controllers.ProductsUpdate(productService, logg))
		r.Patch("/{id}", controllers.ProductsUpdate(productService, logg))
		r.Delete("/{id}", controllers.ProductsDelete(productService, logg))
	})

	r.Route("/cart", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", cartcontrollers.CartView(cartService, logg))
		r.With(idempotent).Post("/add", cartcontrollers.CartAdd(cartService, logg))
		r.Put("/update/{id}", cartcontrollers.CartUpdate(cartService, logg))
		r.Delete("/remove/{id}", cartcontrollers.CartRemove(cartService, logg))
		r.With(idempotent).Post("/checkout", cartcontrollers.CartCheckout(cartService, logg))
		r.Get("/checkout", cartcontrollers.CartCheckedOut(cartService, logg))
	})

	return r
}
