package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/zhejian/shorty/internal/model"
	"github.com/zhejian/shorty/internal/service"
	"golang.org/x/sync/errgroup"
)

// Handler holds HTTP handlers and dependencies.
// It receives interfaces rather than concrete implementations for testability.
type Handler struct {
	urlService   service.URLServiceInterface   // Allocation and resolution
	tracker      service.ClickTrackerInterface // Detached click tracking
	dependencies map[string]Pinger             // Backends reported by /health
	metrics      http.Handler                  // Prometheus exposition, optional
	logger       *slog.Logger
}

// Pinger is anything the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHandler creates a new handler instance with the provided dependencies.
// metrics may be nil, in which case /metrics is not registered.
func NewHandler(
	urlService service.URLServiceInterface,
	tracker service.ClickTrackerInterface,
	dependencies map[string]Pinger,
	metrics http.Handler,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		urlService:   urlService,
		tracker:      tracker,
		dependencies: dependencies,
		metrics:      metrics,
		logger:       logger,
	}
}

// ReservedCodes are the static top-level path segments. A short code equal
// to one of them would be shadowed by its route and could never redirect.
var ReservedCodes = []string{"health", "metrics", "api"}

// RegisterRoutes registers all route definitions on the given Gin engine.
// The caller is responsible for creating the engine and adding middleware
// before calling this method, so middleware runs in the correct order.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.healthCheck)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/shorten", h.createShortURL)      // Create short URL
		v1.GET("/urls/:code", h.getURL)            // Get URL metadata
		v1.GET("/urls/:code/stats", h.getURLStats) // Click statistics
	}

	// Redirect route (public) - must be last to avoid conflicts
	r.GET("/:code", h.redirect)
}

// healthCheck handles GET /health
// Probes every dependency concurrently.
// Response codes:
//   - 200 OK: All dependencies are healthy
//   - 503 Service Unavailable: One or more dependencies are down
func (h *Handler) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		mu      sync.Mutex
		deps    = gin.H{}
		healthy = true
	)

	var g errgroup.Group
	for name, dep := range h.dependencies {
		g.Go(func() error {
			state := "up"
			if err := dep.Ping(ctx); err != nil {
				h.logger.WarnContext(ctx, "dependency health check failed",
					slog.String("dependency", name),
					slog.String("error", err.Error()))
				state = "down"
			}

			mu.Lock()
			defer mu.Unlock()
			deps[name] = state
			if state == "down" {
				healthy = false
			}
			return nil
		})
	}
	_ = g.Wait()

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{"status": status, "dependencies": deps})
}

// createShortURL handles POST /api/v1/shorten
// Request body: CreateURLRequest (JSON)
// Response codes:
//   - 201 Created: Short URL successfully created
//   - 400 Bad Request: Invalid request body or URL
//   - 500 Internal Server Error: No free code found, or unexpected error
//   - 503 Service Unavailable: Storage backend unreachable
func (h *Handler) createShortURL(c *gin.Context) {
	ctx := c.Request.Context()
	var req model.CreateURLRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body",
			slog.String("error", err.Error()),
			slog.String("path", c.Request.URL.Path))
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.urlService.CreateShortURL(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidURL):
			h.errorResponse(c, http.StatusBadRequest, "URL must start with http:// or https://")
		case errors.Is(err, service.ErrAllocationExhausted):
			h.errorResponse(c, http.StatusInternalServerError, "Could not generate a unique short code, please try again")
		case errors.Is(err, service.ErrBackendUnavailable):
			h.logger.ErrorContext(ctx, "storage unavailable creating short URL",
				slog.String("error", err.Error()))
			h.errorResponse(c, http.StatusServiceUnavailable, "Storage temporarily unavailable")
		default:
			h.logger.ErrorContext(ctx, "unexpected error creating short URL",
				slog.String("error", err.Error()))
			h.errorResponse(c, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// getURL handles GET /api/v1/urls/:code
// Retrieves metadata for a short URL without recording a click.
// Response codes:
//   - 200 OK: URL metadata retrieved successfully
//   - 404 Not Found: Short code does not exist
//   - 503 Service Unavailable: Storage backend unreachable
func (h *Handler) getURL(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	resp, err := h.urlService.GetURL(ctx, code)
	if err != nil {
		h.lookupError(c, err, code, "fetching URL")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// getURLStats handles GET /api/v1/urls/:code/stats
// Response codes:
//   - 200 OK: Statistics retrieved
//   - 404 Not Found: Short code does not exist
//   - 501 Not Implemented: The local namespace keeps no statistics
//   - 503 Service Unavailable: Storage backend unreachable
func (h *Handler) getURLStats(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	resp, err := h.urlService.GetStats(ctx, code)
	if err != nil {
		if errors.Is(err, service.ErrStatsUnavailable) {
			h.errorResponse(c, http.StatusNotImplemented, "Statistics are only recorded by the remote store")
			return
		}
		h.lookupError(c, err, code, "fetching URL stats")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// redirect handles GET /:code
// Redirects to the original URL and records the click in the background.
// The redirect never waits for tracking.
// Response codes:
//   - 302 Found: Redirects to original URL
//   - 404 Not Found: Short code does not exist
//   - 503 Service Unavailable: Storage backend unreachable
func (h *Handler) redirect(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Param("code")

	url, err := h.urlService.Redirect(ctx, code)
	if err != nil {
		h.lookupError(c, err, code, "during redirect")
		return
	}

	h.tracker.TrackAsync(ctx, code)

	c.Redirect(http.StatusFound, url)
}

// lookupError maps resolution errors to HTTP status codes
func (h *Handler) lookupError(c *gin.Context, err error, code, action string) {
	ctx := c.Request.Context()

	switch {
	case errors.Is(err, service.ErrURLNotFound):
		h.errorResponse(c, http.StatusNotFound, "URL not found")
	case errors.Is(err, service.ErrBackendUnavailable):
		h.logger.ErrorContext(ctx, "storage unavailable "+action,
			slog.String("error", err.Error()),
			slog.String("code", code))
		h.errorResponse(c, http.StatusServiceUnavailable, "Storage temporarily unavailable")
	default:
		h.logger.ErrorContext(ctx, "unexpected error "+action,
			slog.String("error", err.Error()),
			slog.String("code", code))
		h.errorResponse(c, http.StatusInternalServerError, "Internal server error")
	}
}

// errorResponse sends a standardized JSON error response.
func (h *Handler) errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, model.ErrorResponse{
		Error:   http.StatusText(status), // e.g., "Bad Request", "Not Found"
		Message: message,
	})
}
