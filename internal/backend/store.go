package backend

import (
	"time"

	"github.com/gpxity/gpxity/internal/activity"
)

// Store is the driver behind a Backend. It knows how to list, read and write
// activities in one physical place. Stores do not keep a collection
// themselves and are never called concurrently by a Backend.
type Store interface {
	// Kind returns the registered kind, e.g. "directory".
	Kind() string

	// Location returns where the store lives: a path, a DSN without
	// password, or a URL.
	Location() string

	// Capabilities returns the operations the store supports.
	Capabilities() activity.Capabilities

	// List returns the ids of all stored activities.
	List() ([]string, error)

	// NewID returns an unused id for a. hint is a proposal that stores
	// may honour.
	NewID(a *activity.Activity, hint string) (string, error)

	// Load fills the stub a, typically through a.Parse or a.LoadWith.
	Load(a *activity.Activity) error

	// Write stores a completely under a.ID().
	Write(a *activity.Activity) error

	// Remove deletes the activity with the given id.
	Remove(id string) error

	// Time returns the current time of the storage endpoint.
	Time() (time.Time, error)

	// Destroy removes the physical container if the store created it.
	Destroy() error

	// Close releases connections and handles.
	Close() error
}

// Attribute names a single field that can be written without a full
// rewrite.
type Attribute string

const (
	AttrTitle         Attribute = "title"
	AttrDescription   Attribute = "description"
	AttrWhat          Attribute = "what"
	AttrPublic        Attribute = "public"
	AttrAddKeyword    Attribute = "keyword-add"
	AttrRemoveKeyword Attribute = "keyword-remove"
)

// AttributeWriter is implemented by stores that update single fields in
// place. value is the keyword for AttrAddKeyword and AttrRemoveKeyword and
// empty otherwise; the new field value is read from a.
type AttributeWriter interface {
	WriteAttribute(a *activity.Activity, attr Attribute, value string) error
}
