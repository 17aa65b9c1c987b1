package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/zhejian/shorty/internal/model"
	"github.com/zhejian/shorty/internal/repository"
)

// DefaultMaxAttempts bounds the allocation loop.
const DefaultMaxAttempts = 10

// Config holds the fixed allocation parameters.
type Config struct {
	BaseURL     string
	MaxAttempts int
	// Reserved codes are never handed out, e.g. paths served by static routes.
	Reserved []string
}

// URLService handles business logic for URL operations
type URLService struct {
	store       repository.Store
	generator   CodeGenerator
	clock       Clock
	logger      *slog.Logger
	metrics     Metrics
	baseURL     string
	maxAttempts int
	reserved    map[string]struct{}
}

// URLServiceInterface defines the contract for URL shortening operations
type URLServiceInterface interface {
	CreateShortURL(ctx context.Context, req *model.CreateURLRequest) (*model.CreateURLResponse, error)
	GetURL(ctx context.Context, code string) (*model.URLResponse, error)
	GetStats(ctx context.Context, code string) (*model.URLStatsResponse, error)
	Redirect(ctx context.Context, code string) (string, error)
}

// NewURLService creates a new URL service. A nil metrics disables counting.
func NewURLService(store repository.Store, cfg Config, generator CodeGenerator, clock Clock, logger *slog.Logger, metrics Metrics) *URLService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	reserved := make(map[string]struct{}, len(cfg.Reserved))
	for _, code := range cfg.Reserved {
		reserved[code] = struct{}{}
	}
	return &URLService{
		store:       store,
		generator:   generator,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
		baseURL:     cfg.BaseURL,
		maxAttempts: cfg.MaxAttempts,
		reserved:    reserved,
	}
}

// IsLocal reports whether the service runs against the ephemeral namespace.
func (s *URLService) IsLocal() bool {
	return s.store.Namespace() == model.NamespaceLocal
}

// CreateShortURL validates the URL and allocates a new short code for it
func (s *URLService) CreateShortURL(ctx context.Context, req *model.CreateURLRequest) (*model.CreateURLResponse, error) {
	if !IsValidURL(req.URL) {
		s.metrics.AllocationCompleted(ctx, "invalid")
		return nil, NewValidationError("url", "URL must start with http:// or https://")
	}

	code, err := s.allocate(ctx, req.URL)
	if err != nil {
		switch {
		case errors.Is(err, ErrAllocationExhausted):
			s.metrics.AllocationCompleted(ctx, "exhausted")
			s.logger.WarnContext(ctx, "short code space exhausted",
				slog.Int("attempts", s.maxAttempts),
				slog.String("namespace", string(s.store.Namespace())))
		default:
			s.metrics.AllocationCompleted(ctx, "backend_error")
		}
		return nil, err
	}

	s.metrics.AllocationCompleted(ctx, "success")
	return &model.CreateURLResponse{
		ShortCode: code,
		ShortURL:  s.shortURL(code),
		IsLocal:   s.IsLocal(),
	}, nil
}

// allocate draws candidates until one is free in the store, for at most
// maxAttempts draws. A candidate that loses the race between the probe and
// the insert uses up its attempt like any other collision.
func (s *URLService) allocate(ctx context.Context, targetURL string) (string, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		candidate := s.generator.Generate()
		if _, ok := s.reserved[candidate]; ok {
			s.metrics.AllocationCollision(ctx)
			s.logger.DebugContext(ctx, "short code reserved",
				slog.String("code", candidate),
				slog.Int("attempt", attempt))
			continue
		}

		taken, err := s.store.Exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("%w: check short code: %w", ErrBackendUnavailable, err)
		}
		if taken {
			s.metrics.AllocationCollision(ctx)
			s.logger.DebugContext(ctx, "short code collision",
				slog.String("code", candidate),
				slog.Int("attempt", attempt))
			continue
		}

		link := &model.ShortLink{
			ID:         uuid.New(),
			Code:       candidate,
			TargetURL:  targetURL,
			CreatedAt:  s.clock.Now(),
			ClickCount: 0,
		}
		if err := s.store.Insert(ctx, link); err != nil {
			if errors.Is(err, repository.ErrCodeConflict) {
				s.metrics.AllocationCollision(ctx)
				s.logger.DebugContext(ctx, "short code taken by concurrent writer",
					slog.String("code", candidate),
					slog.Int("attempt", attempt))
				continue
			}
			return "", fmt.Errorf("%w: save short link: %w", ErrBackendUnavailable, err)
		}
		return candidate, nil
	}

	return "", ErrAllocationExhausted
}

// GetURL retrieves URL metadata by short code
func (s *URLService) GetURL(ctx context.Context, code string) (*model.URLResponse, error) {
	link, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	return &model.URLResponse{
		ShortCode:   link.Code,
		OriginalURL: link.TargetURL,
		ShortURL:    s.shortURL(link.Code),
		IsLocal:     s.IsLocal(),
	}, nil
}

// Redirect retrieves the original URL for redirection. The URL is returned
// exactly as stored.
func (s *URLService) Redirect(ctx context.Context, code string) (string, error) {
	link, err := s.lookup(ctx, code)
	if err != nil {
		return "", err
	}

	return link.TargetURL, nil
}

// GetStats returns click statistics. Only the remote namespace records them.
func (s *URLService) GetStats(ctx context.Context, code string) (*model.URLStatsResponse, error) {
	if s.IsLocal() {
		return nil, ErrStatsUnavailable
	}

	link, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	var lastAccessed string
	if link.LastAccessedAt != nil {
		lastAccessed = link.LastAccessedAt.Format(time.RFC3339)
	}

	return &model.URLStatsResponse{
		ShortCode:    link.Code,
		OriginalURL:  link.TargetURL,
		CreatedAt:    link.CreatedAt.Format(time.RFC3339),
		ClickCount:   link.ClickCount,
		LastAccessed: lastAccessed,
	}, nil
}

// lookup is a helper that fetches a link and maps repository errors
func (s *URLService) lookup(ctx context.Context, code string) (*model.ShortLink, error) {
	link, err := s.store.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.ResolutionCompleted(ctx, "not_found")
			return nil, ErrURLNotFound
		}
		s.metrics.ResolutionCompleted(ctx, "backend_error")
		return nil, fmt.Errorf("%w: load short link: %w", ErrBackendUnavailable, err)
	}

	s.metrics.ResolutionCompleted(ctx, "found")
	return link, nil
}

func (s *URLService) shortURL(code string) string {
	return s.baseURL + "/" + code
}

// Ensure URLService implements URLServiceInterface at compile time
var _ URLServiceInterface = (*URLService)(nil)
