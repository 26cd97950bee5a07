// internal/models/models.go
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record states of an image field attachment.
const (
	StatusUnbound    = "unbound"    // no image assigned
	StatusUnrendered = "unrendered" // original stored, variations pending
	StatusRendered   = "rendered"   // every declared variation exists
)

// Image is one persisted record owning an image field identified by Route
// (app.model.field).
type Image struct {
	ID        uuid.UUID `db:"id"`
	Route     string    `db:"route"`
	Title     string    `db:"title"`
	Key       string    `db:"image_key"` // storage key of the original
	Width     int       `db:"width"`
	Height    int       `db:"height"`
	Status    string    `db:"status"` // unbound, unrendered, rendered
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ModelName returns the model component of the record's route.
func (img *Image) ModelName() string {
	parts := strings.Split(img.Route, ".")
	if len(parts) < 2 {
		return img.Route
	}
	return parts[len(parts)-2]
}

// FieldValue exposes record attributes to upload-path strategies.
func (img *Image) FieldValue(name string) string {
	switch name {
	case "id":
		return img.ID.String()
	case "title", "name":
		return img.Title
	case "route":
		return img.Route
	}
	return ""
}
