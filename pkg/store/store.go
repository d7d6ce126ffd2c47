package store

// Store defines the interface for task document storage.
// This is implemented by BoltDB-backed storage.
type Store interface {
	// Insert adds doc to collection and returns its document id. A valid
	// id already present under the "id" key is kept; otherwise a fresh one
	// is generated and written into the document.
	Insert(collection string, doc map[string]any) (string, error)

	// Find returns every document in collection matching q.
	Find(collection string, q Query) ([]map[string]any, error)

	// FindOne returns a single document matching q, or nil when none does.
	FindOne(collection string, q Query) (map[string]any, error)

	// Next returns the matching document with the smallest value of sortBy,
	// or nil when none matches. Ties go to the lowest document key.
	Next(collection string, q Query, sortBy string) (map[string]any, error)

	// UpdateOne merges the fields of doc into the document stored under id.
	UpdateOne(collection, id string, doc map[string]any) error

	// Remove deletes every document matching q and reports how many went.
	Remove(collection string, q Query) (int, error)

	// Close releases the underlying database.
	Close() error
}
