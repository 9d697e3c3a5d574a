package docstore

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a record path does not resolve to a stored record
var ErrNotFound = errors.New("record not found")

// Record is a single document in a collection. Data holds arbitrary top-level fields; the text field
// and moderation metadata field are looked up by name from configuration.
type Record struct {
	Path string
	ID   string
	Data map[string]any
}

// Store is the persistent document store the moderation pipeline reads from and writes to.
type Store interface {
	Get(ctx context.Context, path string) (*Record, error)
	// List returns up to limit records of the collection ordered by record ID, starting strictly after
	// the record ID of startAfter. An empty startAfter starts from the beginning.
	List(ctx context.Context, collection, startAfter string, limit int) ([]*Record, error)
	// Merge sets the given top-level fields on an existing record, replacing any prior values.
	Merge(ctx context.Context, path string, fields map[string]any) error
	Delete(ctx context.Context, path string) error
}

// Joins a collection path and record ID in to a record path.
func JoinPath(collection, id string) string {
	return strings.TrimSuffix(collection, "/") + "/" + id
}

// Splits a record path in to collection path and record ID. Returns false if the path has no
// collection component.
func SplitPath(path string) (string, string, bool) {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 || idx == len(path)-1 {
		return "", "", false
	}
	return path[:idx], path[idx+1:], true
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
