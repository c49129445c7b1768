// Package devserver is an in-memory REST backend for the blindbox API, used by
// integration tests and local runs of the bb client.
package devserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/blindbox/internal/limiter"
)

// Config holds server settings. Zero TTLs fall back to defaults.
type Config struct {
	JWTKey     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Limiter throttles logins; nil means an in-memory limiter with the default policy.
	Limiter limiter.Limiter
	// Now overrides the clock used for token issue and expiry.
	Now func() time.Time
}

// Server wires in-memory state into gin handlers.
type Server struct {
	log        *zap.Logger
	mem        *memory
	tokens     *tokenIssuer
	refreshTTL time.Duration
	lim        limiter.Limiter
	now        func() time.Time
	reg        *prometheus.Registry
	engine     *gin.Engine
}

// New builds a server with the seeded catalog and demo account.
func New(cfg Config, log *zap.Logger) (*Server, error) {
	if len(cfg.JWTKey) == 0 {
		return nil, errors.New("missing jwt signing key")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Limiter == nil {
		cfg.Limiter = limiter.NewMemory(limiter.DefaultPolicy())
	}

	s := &Server{
		log:        log,
		mem:        newMemory(),
		tokens:     &tokenIssuer{signKey: cfg.JWTKey, accessTTL: cfg.AccessTTL, now: cfg.Now},
		refreshTTL: cfg.RefreshTTL,
		lim:        cfg.Limiter,
		now:        cfg.Now,
		reg:        prometheus.NewRegistry(),
	}
	if _, err := s.mem.addAccount(DemoEmail, DemoPassword, DemoName); err != nil {
		return nil, err
	}
	s.engine = s.routes()
	return s, nil
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler { return s.engine }

// AddAccount registers an extra account, used by tests.
func (s *Server) AddAccount(email, password, name string) (uuid.UUID, error) {
	return s.mem.addAccount(email, password, name)
}

func (s *Server) routes() *gin.Engine {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blindbox",
		Subsystem: "devserver",
		Name:      "requests_total",
		Help:      "Requests by method, route and status code.",
	}, []string{"method", "route", "code"})
	s.reg.MustRegister(requests)

	r := gin.New()
	r.Use(recoverPanics(s.log), accessLog(s.log), countRequests(requests))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})))

	acc := r.Group("/accounts")
	acc.POST("/login", s.login)
	acc.POST("/refresh-token", s.refreshToken)
	acc.POST("/logout", s.logout)
	acc.GET("/me", s.requireAuth(), s.me)
	acc.PATCH("/me", s.requireAuth(), s.updateMe)

	products := r.Group("/products/blind-boxes")
	products.GET("", s.listBlindBoxes)
	products.GET("/:slug", s.getBlindBox)

	cart := r.Group("/cart", s.requireAuth())
	cart.GET("", s.getCart)
	cart.POST("", s.addToCart)
	cart.POST("/clear-all", s.clearCart)
	cart.PUT("/:productId", s.setQuantity)
	cart.DELETE("/:productId", s.removeFromCart)

	r.NoRoute(func(c *gin.Context) { abortMessage(c, http.StatusNotFound, "no such route") })
	return r
}
