package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/zhejian/shorty/internal/api"
	"github.com/zhejian/shorty/internal/config"
	"github.com/zhejian/shorty/internal/middleware"
	"github.com/zhejian/shorty/internal/repository"
	"github.com/zhejian/shorty/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Dependencies are the process-wide resources the router is built on.
type Dependencies struct {
	Store          repository.Store
	Metrics        service.Metrics // optional
	MetricsHandler http.Handler    // optional, serves /metrics
	Logger         *slog.Logger
}

// NewRouter wires the service layer onto a Gin engine. The returned tracker
// owns the detached click tracking goroutines; callers wait on it at shutdown.
func NewRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, *service.ClickTracker) {
	clock := service.RealClock{}

	urlService := service.NewURLService(
		deps.Store,
		service.Config{
			BaseURL:     cfg.App.BaseURL,
			MaxAttempts: cfg.App.MaxAttempts,
			Reserved:    api.ReservedCodes,
		},
		service.NewShortCodeGenerator(cfg.App.ShortCodeLen),
		clock,
		deps.Logger,
		deps.Metrics,
	)
	tracker := service.NewClickTracker(deps.Store, clock, cfg.App.TrackTimeout, deps.Logger, deps.Metrics)

	handler := api.NewHandler(
		urlService,
		tracker,
		map[string]api.Pinger{string(deps.Store.Namespace()) + "_store": deps.Store},
		deps.MetricsHandler,
		deps.Logger,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		otelgin.Middleware(cfg.Observability.ServiceName),
		middleware.Logging(deps.Logger),
		gin.Recovery(),
		cors.New(cors.Config{
			AllowOrigins:     cfg.Server.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "traceparent"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}),
	)
	handler.RegisterRoutes(r)

	return r, tracker
}

// NewServer returns the configured HTTP server together with its tracker.
func NewServer(cfg *config.Config, deps Dependencies) (*http.Server, *service.ClickTracker) {
	router, tracker := NewRouter(cfg, deps)

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, tracker
}
