package catalog

import (
	"errors"
	"time"
)

// DisplayHeight is the fixed render height of catalog images in pixels.
const DisplayHeight = 50

// Severity classifies a message for the recipient's UI.
type Severity string

const (
	SeverityInformation Severity = "information"
	SeverityWarning     Severity = "warning"
	SeverityError       Severity = "error"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInformation, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// Identity is the cached profile of an authenticated principal. The key is
// issued by the identity provider and never changes for a given principal.
type Identity struct {
	Key         string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Groups      []string  `json:"groups"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Service is a published link gated by group membership.
type Service struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Target        string    `json:"target"`
	Groups        []string  `json:"groups"`
	ImageKey      string    `json:"image,omitempty"`
	ImageWidth    int       `json:"image_width,omitempty"`
	ImageHeight   int       `json:"image_height,omitempty"`
	DisplayWidth  int       `json:"display_width,omitempty"`
	DisplayHeight int       `json:"display_height,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Message is an admin-authored notice addressed to exactly one recipient.
// Fan-out to several recipients creates one record per recipient.
type Message struct {
	ID        string    `json:"id"`
	Recipient string    `json:"user_id"`
	Severity  Severity  `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Dismissed bool      `json:"dismissed"`
	CreatedAt time.Time `json:"created_at"`
}

// Favorite is a user-private saved link. The pair (Owner, URL) is unique.
type Favorite struct {
	Owner     string    `json:"-"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrNotFound      = errors.New("catalog: not found")
	ErrAlreadyExists = errors.New("catalog: already exists")
	ErrInvalidInput  = errors.New("catalog: invalid input")
)
