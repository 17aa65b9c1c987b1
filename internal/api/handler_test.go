package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zhejian/shorty/internal/api"
	"github.com/zhejian/shorty/internal/model"
	"github.com/zhejian/shorty/internal/service"
)

// MockURLService mocks the service layer
type MockURLService struct {
	mock.Mock
}

func (m *MockURLService) CreateShortURL(ctx context.Context, req *model.CreateURLRequest) (*model.CreateURLResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CreateURLResponse), args.Error(1)
}

func (m *MockURLService) GetURL(ctx context.Context, code string) (*model.URLResponse, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.URLResponse), args.Error(1)
}

func (m *MockURLService) GetStats(ctx context.Context, code string) (*model.URLStatsResponse, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.URLStatsResponse), args.Error(1)
}

func (m *MockURLService) Redirect(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

// MockTracker records TrackAsync calls
type MockTracker struct {
	mock.Mock
}

func (m *MockTracker) TrackAsync(ctx context.Context, code string) {
	m.Called(ctx, code)
}

// MockStore for health check
type MockStore struct {
	shouldFail bool
}

func (m *MockStore) Ping(ctx context.Context) error {
	if m.shouldFail {
		return assert.AnError
	}
	return nil
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(svc service.URLServiceInterface, tracker service.ClickTrackerInterface, deps map[string]api.Pinger, metrics http.Handler) *gin.Engine {
	if deps == nil {
		deps = map[string]api.Pinger{"store": &MockStore{}}
	}
	r := gin.New()
	api.NewHandler(svc, tracker, deps, metrics, testLogger).RegisterRoutes(r)
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var response model.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		deps       map[string]api.Pinger
		wantCode   int
		wantStatus string
		wantDeps   map[string]interface{}
	}{
		{
			name:       "returns ok when the store is healthy",
			deps:       map[string]api.Pinger{"store": &MockStore{}},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantDeps:   map[string]interface{}{"store": "up"},
		},
		{
			name:       "returns degraded when the store is down",
			deps:       map[string]api.Pinger{"store": &MockStore{shouldFail: true}},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
			wantDeps:   map[string]interface{}{"store": "down"},
		},
		{
			name: "reports each dependency separately",
			deps: map[string]api.Pinger{
				"store":  &MockStore{},
				"tracer": &MockStore{shouldFail: true},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
			wantDeps:   map[string]interface{}{"store": "up", "tracer": "down"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(new(MockURLService), new(MockTracker), tt.deps, nil)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			var response map[string]interface{}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.wantStatus, response["status"])
			assert.Equal(t, tt.wantDeps, response["dependencies"])
		})
	}
}

func TestHandler_CreateShortURL(t *testing.T) {
	t.Run("returns 201 when URL is successfully created", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("CreateShortURL", mock.Anything, &model.CreateURLRequest{URL: "https://example.com"}).Return(
			&model.CreateURLResponse{
				ShortCode: "abc123",
				ShortURL:  "http://localhost:8080/abc123",
				IsLocal:   true,
			},
			nil,
		)
		router := newRouter(mockService, new(MockTracker), nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/shorten", bytes.NewBufferString(`{"url": "https://example.com"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var response model.CreateURLResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "abc123", response.ShortCode)
		assert.Equal(t, "http://localhost:8080/abc123", response.ShortURL)
		assert.True(t, response.IsLocal)

		mockService.AssertExpectations(t)
	})

	t.Run("returns 400 when request body is invalid", func(t *testing.T) {
		for _, body := range []string{`{invalid json}`, `{}`} {
			mockService := new(MockURLService)
			router := newRouter(mockService, new(MockTracker), nil, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/shorten", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code, "body %s", body)
			assert.Equal(t, "Bad Request", decodeError(t, w).Error)
			mockService.AssertNotCalled(t, "CreateShortURL", mock.Anything, mock.Anything)
		}
	})

	errorCases := []struct {
		name        string
		err         error
		wantCode    int
		wantMessage string
	}{
		{
			name:        "invalid URL",
			err:         service.NewValidationError("url", "URL must start with http:// or https://"),
			wantCode:    http.StatusBadRequest,
			wantMessage: "URL must start with http:// or https://",
		},
		{
			name:        "allocation exhausted",
			err:         service.ErrAllocationExhausted,
			wantCode:    http.StatusInternalServerError,
			wantMessage: "Could not generate a unique short code, please try again",
		},
		{
			name:        "backend unavailable",
			err:         fmt.Errorf("%w: dial tcp: connection refused", service.ErrBackendUnavailable),
			wantCode:    http.StatusServiceUnavailable,
			wantMessage: "Storage temporarily unavailable",
		},
		{
			name:        "unexpected error",
			err:         assert.AnError,
			wantCode:    http.StatusInternalServerError,
			wantMessage: "Internal server error",
		},
	}

	for _, tc := range errorCases {
		t.Run("maps "+tc.name, func(t *testing.T) {
			mockService := new(MockURLService)
			mockService.On("CreateShortURL", mock.Anything, mock.Anything).Return(nil, tc.err)
			router := newRouter(mockService, new(MockTracker), nil, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/shorten", bytes.NewBufferString(`{"url": "ftp://x"}`))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.wantCode, w.Code)
			response := decodeError(t, w)
			assert.Equal(t, http.StatusText(tc.wantCode), response.Error)
			assert.Equal(t, tc.wantMessage, response.Message)
		})
	}
}

func TestHandler_GetURL(t *testing.T) {
	t.Run("returns 200 with URL metadata when code exists", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("GetURL", mock.Anything, "abc123").Return(
			&model.URLResponse{
				ShortCode:   "abc123",
				OriginalURL: "https://example.com",
				ShortURL:    "http://localhost:8080/abc123",
			},
			nil,
		)
		mockTracker := new(MockTracker)
		router := newRouter(mockService, mockTracker, nil, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/urls/abc123", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var response model.URLResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "https://example.com", response.OriginalURL)
		assert.False(t, response.IsLocal)

		mockTracker.AssertNotCalled(t, "TrackAsync", mock.Anything, mock.Anything)
	})

	t.Run("returns 404 when URL not found", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("GetURL", mock.Anything, "notfound").Return(nil, service.ErrURLNotFound)
		router := newRouter(mockService, new(MockTracker), nil, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/urls/notfound", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		response := decodeError(t, w)
		assert.Equal(t, "Not Found", response.Error)
		assert.Equal(t, "URL not found", response.Message)
	})

	t.Run("returns 503 when the backend is down", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("GetURL", mock.Anything, "abc123").Return(nil, service.ErrBackendUnavailable)
		router := newRouter(mockService, new(MockTracker), nil, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/urls/abc123", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestHandler_GetURLStats(t *testing.T) {
	t.Run("returns 200 with statistics", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("GetStats", mock.Anything, "abc123").Return(
			&model.URLStatsResponse{
				ShortCode:    "abc123",
				OriginalURL:  "https://example.com",
				CreatedAt:    "2025-01-20T10:00:00Z",
				ClickCount:   5,
				LastAccessed: "2025-01-21T10:00:00Z",
			},
			nil,
		)
		router := newRouter(mockService, new(MockTracker), nil, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/urls/abc123/stats", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var response model.URLStatsResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, int64(5), response.ClickCount)
		assert.Equal(t, "2025-01-21T10:00:00Z", response.LastAccessed)
	})

	t.Run("returns 501 on the local namespace", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("GetStats", mock.Anything, "abc123").Return(nil, service.ErrStatsUnavailable)
		router := newRouter(mockService, new(MockTracker), nil, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/urls/abc123/stats", nil))

		assert.Equal(t, http.StatusNotImplemented, w.Code)
		assert.Equal(t, "Not Implemented", decodeError(t, w).Error)
	})

	t.Run("returns 404 when URL not found", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("GetStats", mock.Anything, "zzzzzz").Return(nil, service.ErrURLNotFound)
		router := newRouter(mockService, new(MockTracker), nil, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/urls/zzzzzz/stats", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandler_Redirect(t *testing.T) {
	t.Run("returns 302 and tracks the click", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Redirect", mock.Anything, "abc123").Return("https://example.com/Path?q=1", nil)
		mockTracker := new(MockTracker)
		mockTracker.On("TrackAsync", mock.Anything, "abc123").Return().Once()
		router := newRouter(mockService, mockTracker, nil, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/abc123", nil))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://example.com/Path?q=1", w.Header().Get("Location"))
		mockTracker.AssertExpectations(t)
	})

	t.Run("returns 404 and does not track unknown codes", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Redirect", mock.Anything, "zzzzzz").Return("", service.ErrURLNotFound)
		mockTracker := new(MockTracker)
		router := newRouter(mockService, mockTracker, nil, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/zzzzzz", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		mockTracker.AssertNotCalled(t, "TrackAsync", mock.Anything, mock.Anything)
	})

	t.Run("returns 503 when the backend is down", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Redirect", mock.Anything, "abc123").Return("", service.ErrBackendUnavailable)
		router := newRouter(mockService, new(MockTracker), nil, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/abc123", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestHandler_Metrics(t *testing.T) {
	t.Run("served when a metrics handler is given", func(t *testing.T) {
		metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "shorty_allocations_total 1\n")
		})
		router := newRouter(new(MockURLService), new(MockTracker), nil, metrics)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "shorty_allocations_total")
	})

	t.Run("falls through to redirect lookup otherwise", func(t *testing.T) {
		mockService := new(MockURLService)
		mockService.On("Redirect", mock.Anything, "metrics").Return("", service.ErrURLNotFound)
		router := newRouter(mockService, new(MockTracker), nil, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestReservedCodes_CoverStaticRoutes(t *testing.T) {
	metrics := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	router := newRouter(new(MockURLService), new(MockTracker), nil, metrics)

	for _, route := range router.Routes() {
		segment := strings.SplitN(strings.TrimPrefix(route.Path, "/"), "/", 2)[0]
		if segment == "" || strings.HasPrefix(segment, ":") {
			continue
		}
		assert.Contains(t, api.ReservedCodes, segment, "route %s shadows short code %q", route.Path, segment)
	}
}
