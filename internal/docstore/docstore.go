// Package docstore provides the document store abstraction the services are
// written against: schemaless JSON documents grouped into collections, with
// point reads, filtered scans, and atomic per-document field updates. There
// are no multi-document transactions; cross-document consistency is the
// callers' problem.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection names used across the application.
const (
	CollectionProfiles  = "profiles"
	CollectionPosts     = "posts"
	CollectionChats     = "chats"
	CollectionMessages  = "messages"
	CollectionAccounts  = "accounts"
	CollectionUsernames = "usernames"
	CollectionEmails    = "emails"
)

var (
	// ErrNotFound is returned by point reads and updates against a missing
	// document.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrExists is returned by Create when the document id is already taken.
	ErrExists = errors.New("docstore: document already exists")
)

// Document is a decoded JSON document.
type Document map[string]any

// Update is a set of field-level changes applied atomically to one
// document. Values may be plain values (field set) or the operation
// sentinels returned by Increment, ArrayUnion, ArrayRemove,
// ArrayRemoveByKey and ArrayLen.
type Update map[string]any

type incrementOp struct{ by int64 }

type arrayUnionOp struct{ values []any }

type arrayRemoveOp struct{ values []any }

type arrayRemoveByKeyOp struct {
	key   string
	value any
}

type arrayLenOp struct{ of string }

// Increment returns an operation that atomically adds by to a numeric field.
func Increment(by int64) any { return incrementOp{by: by} }

// ArrayUnion returns an operation that appends each value not already
// present in the array field. Presence is decided by canonical JSON
// equality, so struct values may be passed directly.
func ArrayUnion(values ...any) any { return arrayUnionOp{values: values} }

// ArrayRemove returns an operation that removes every array element equal
// to one of the given values.
func ArrayRemove(values ...any) any { return arrayRemoveOp{values: values} }

// ArrayRemoveByKey returns an operation that removes every object element
// whose key sub-field equals value. Unlike ArrayRemove it matches on
// identity rather than the whole value, so an element is still removed
// when its other fields were rewritten after the caller read it.
func ArrayRemoveByKey(key string, value any) any {
	return arrayRemoveByKeyOp{key: key, value: value}
}

// ArrayLen returns an operation that sets the field to the length of the
// array field named by of. Length projections are evaluated after all other
// operations in the same Update, so a counter can be derived from a list
// mutated by the very same call.
func ArrayLen(of string) any { return arrayLenOp{of: of} }

// Filter is a single query predicate.
type Filter struct {
	Path  string
	Op    string // "==" or "array-contains"
	Value any
}

// Where builds an equality filter.
func Where(path string, op string, value any) Filter {
	return Filter{Path: path, Op: op, Value: value}
}

// Store is the document store collaborator contract. Every operation is
// atomic with respect to a single document; nothing spans documents.
type Store interface {
	// Get performs a point read. Returns ErrNotFound for a missing id.
	Get(ctx context.Context, collection, id string) (Document, error)
	// List returns every document in the collection, in no particular order.
	List(ctx context.Context, collection string) ([]Document, error)
	// Query returns the documents matching all filters.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	// Set stores the document under id, overwriting any previous value.
	Set(ctx context.Context, collection, id string, doc Document) error
	// Create stores the document only if the id is free; ErrExists otherwise.
	// This is the insert-if-absent primitive used for atomic reservations.
	Create(ctx context.Context, collection, id string, doc Document) error
	// Apply atomically applies the field update to an existing document.
	// Returns ErrNotFound if the document is absent.
	Apply(ctx context.Context, collection, id string, update Update) error
	// Delete removes the document; missing ids are not an error.
	Delete(ctx context.Context, collection, id string) error
}

// Encode converts a typed value into a Document via its JSON form.
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	return doc, nil
}

// Decode populates a typed value from a Document via its JSON form.
func Decode(doc Document, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}
	return nil
}

// MustEncode is Encode for values known to marshal cleanly (our own models).
func MustEncode(v any) Document {
	doc, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return doc
}

// canonical returns the canonical JSON bytes of a value, used for equality
// between stored array elements and caller-supplied values.
func canonical(v any) []byte {
	raw, err := json.Marshal(normalize(v))
	if err != nil {
		return nil
	}
	return raw
}

func jsonEqual(a, b any) bool {
	return bytes.Equal(canonical(a), canonical(b))
}

// normalize round-trips a value through JSON so stored documents contain
// only plain maps, slices, strings, floats, bools and nils.
func normalize(v any) any {
	switch v.(type) {
	case nil, string, bool, float64:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func asArray(v any) []any {
	if arr, ok := v.([]any); ok {
		return arr
	}
	return nil
}

// applyUpdate mutates doc in place according to update. Both backends call
// this inside their per-document critical section, which is what makes
// Apply atomic.
func applyUpdate(doc Document, update Update) {
	var lens []struct{ field, of string }
	for field, value := range update {
		switch op := value.(type) {
		case incrementOp:
			doc[field] = float64(asInt64(doc[field]) + op.by)
		case arrayUnionOp:
			arr := asArray(doc[field])
			for _, candidate := range op.values {
				found := false
				for _, existing := range arr {
					if jsonEqual(existing, candidate) {
						found = true
						break
					}
				}
				if !found {
					arr = append(arr, normalize(candidate))
				}
			}
			doc[field] = arr
		case arrayRemoveOp:
			arr := asArray(doc[field])
			kept := make([]any, 0, len(arr))
			for _, existing := range arr {
				removed := false
				for _, candidate := range op.values {
					if jsonEqual(existing, candidate) {
						removed = true
						break
					}
				}
				if !removed {
					kept = append(kept, existing)
				}
			}
			doc[field] = kept
		case arrayRemoveByKeyOp:
			arr := asArray(doc[field])
			kept := make([]any, 0, len(arr))
			for _, existing := range arr {
				if m, ok := existing.(map[string]any); ok && jsonEqual(m[op.key], op.value) {
					continue
				}
				kept = append(kept, existing)
			}
			doc[field] = kept
		case arrayLenOp:
			lens = append(lens, struct{ field, of string }{field, op.of})
		default:
			doc[field] = normalize(value)
		}
	}
	for _, l := range lens {
		doc[l.field] = float64(len(asArray(doc[l.of])))
	}
}

// matches reports whether doc satisfies every filter.
func matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		switch f.Op {
		case "array-contains":
			arr := asArray(doc[f.Path])
			found := false
			for _, v := range arr {
				if jsonEqual(v, f.Value) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default: // "=="
			if !jsonEqual(doc[f.Path], f.Value) {
				return false
			}
		}
	}
	return true
}
