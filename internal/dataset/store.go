package dataset

// Store defines the interface for the purchase entry log
type Store interface {
	// Append prepends an entry and prunes the log to MaxEntries
	Append(entry Entry) error

	// All returns every entry, newest first
	All() ([]Entry, error)

	// Clear removes every entry
	Clear() error
}

// KV defines the interface for small last-write-wins JSON caches
type KV interface {
	// Put stores v as JSON under key
	Put(key string, v any) error

	// Get decodes the value under key into v and reports whether it existed
	Get(key string, v any) (bool, error)

	// Delete removes key
	Delete(key string) error
}

// Cache keys
const (
	ProfileKey   = "user_profile"
	AISummaryKey = "ai_summary"
)
