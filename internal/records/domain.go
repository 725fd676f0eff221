// Package records stores schemaless application records. Each record belongs
// to an app scope and a collection and carries an arbitrary JSON payload.
package records

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates an unknown or deleted record.
	ErrNotFound = errors.New("records: not found")
	// ErrUnavailable indicates the record store could not be reached.
	ErrUnavailable = errors.New("records: store unavailable")
)

// Record is one schemaless document.
type Record struct {
	ID             uuid.UUID       `json:"id"`
	AppIdentifier  string          `json:"app_identifier"`
	CollectionType string          `json:"collection_type"`
	OwnerID        *uuid.UUID      `json:"owner_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Title          string          `json:"title,omitempty"`
	Description    string          `json:"description,omitempty"`
	IsPublished    bool            `json:"is_published"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Filter narrows record listings. AppIdentifier is required, the rest is
// optional.
type Filter struct {
	AppIdentifier  string
	CollectionType string
	OwnerID        *uuid.UUID
	Limit          int
	Offset         int
}

// Page is a record listing with the total match count for pagination.
type Page struct {
	Items []Record `json:"items"`
	Total int      `json:"total"`
}
