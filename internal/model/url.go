package model

import (
	"time"

	"github.com/google/uuid"
)

// Namespace identifies the scope within which short codes are unique.
type Namespace string

const (
	// NamespaceRemote is the durable namespace shared by every process
	// pointed at the same remote store.
	NamespaceRemote Namespace = "remote"
	// NamespaceLocal is the ephemeral namespace owned by a single process.
	NamespaceLocal Namespace = "local"
)

// CodeLength is the fixed length of every short code. The urls table
// stores codes in a VARCHAR(6) column.
const CodeLength = 6

// ShortLink represents a shortened URL entity
type ShortLink struct {
	ID             uuid.UUID  `json:"id"`
	Code           string     `json:"short_code"`
	TargetURL      string     `json:"original_url"`
	CreatedAt      time.Time  `json:"created_at"`
	ClickCount     int64      `json:"click_count"`
	LastAccessedAt *time.Time `json:"last_accessed,omitempty"`
}

// CreateURLRequest represents the request body for creating a short URL
type CreateURLRequest struct {
	URL string `json:"url" binding:"required"`
}

// CreateURLResponse represents the response for a created short URL
type CreateURLResponse struct {
	ShortCode string `json:"short_code"`
	ShortURL  string `json:"short_url"`
	IsLocal   bool   `json:"is_local"`
}

// URLResponse represents the URL metadata response
type URLResponse struct {
	ShortCode   string `json:"short_code"`
	OriginalURL string `json:"original_url"`
	ShortURL    string `json:"short_url"`
	IsLocal     bool   `json:"is_local"`
}

// URLStatsResponse is the debug view of a remote short link.
type URLStatsResponse struct {
	ShortCode    string `json:"short_code"`
	OriginalURL  string `json:"original_url"`
	CreatedAt    string `json:"created_at"`
	ClickCount   int64  `json:"click_count"`
	LastAccessed string `json:"last_accessed,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
