package activity

// Backend is the part of a backend collection an Activity talks to. It is
// implemented by *backend.Backend; tests use small fakes.
//
// The Change* and keyword methods are only called while write-through is
// active, after the activity checked the matching capability.
type Backend interface {
	// Capabilities returns what the backend can physically store.
	Capabilities() Capabilities

	// Register adds a freshly constructed activity to the collection
	// without writing it.
	Register(a *Activity)

	// Save writes a and returns the activity now held by the backend,
	// which differs from a when a was bound elsewhere.
	Save(a *Activity) (*Activity, error)

	// LoadFull fills a stub activity with its stored content.
	LoadFull(a *Activity) error

	ChangeTitle(a *Activity) error
	ChangeDescription(a *Activity) error
	ChangeWhat(a *Activity) error
	ChangePublic(a *Activity) error
	AddKeyword(a *Activity, value string) error
	RemoveKeyword(a *Activity, value string) error
}
