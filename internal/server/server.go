// Package server exposes a Moderator over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ineyio/imgguard"
)

// Moderator is the part of *imgguard.Moderator the HTTP layer needs.
type Moderator interface {
	Check(ctx context.Context, req imgguard.ModerationRequest) (imgguard.Verdict, error)
	Usage(ctx context.Context) ([]imgguard.ProviderUsage, error)
	ResetUsage(ctx context.Context, provider, monthKey string) error
}

// Config configures the HTTP server.
type Config struct {
	Addr      string   `yaml:"addr"`
	APIKeys   []string `yaml:"api_keys"`
	AdminKey  string   `yaml:"admin_key"`
	RateLimit float64  `yaml:"rate_limit"` // requests per second per client, 0 disables
	RateBurst int      `yaml:"rate_burst"`
}

// Server routes HTTP requests to a Moderator.
type Server struct {
	cfg      Config
	mod      Moderator
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	engine   *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer exposes the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New creates a Server and registers its routes.
func New(cfg Config, mod Moderator, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		mod:    mod,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.logger))

	v1 := engine.Group("/v1")

	images := v1.Group("/images", requireAPIKey(cfg.APIKeys))
	check := []gin.HandlerFunc{}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		check = append(check, rateLimit(newClientLimiter(rate.Limit(cfg.RateLimit), burst)))
	}
	check = append(check, s.checkImage)
	images.POST("/check", check...)
	images.GET("/usage", s.usage)

	admin := v1.Group("/admin", requireAdminKey(cfg.AdminKey))
	admin.POST("/reset-usage", s.resetUsage)

	if s.gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	s.engine = engine
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }
