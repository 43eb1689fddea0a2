// Package resourcectx keeps a resource loaded by a previous middleware in the request
// context, so ownership guards can check it without knowing its type.
package resourcectx

import (
	"context"
	"fmt"
	"strings"
)

// JSON-like view of a resource: nested maps, field names as in API payloads
type Resource map[string]any

type ctxKey string

const resourceKey ctxKey = "resource"

func New(ctx context.Context, r Resource) context.Context {
	return context.WithValue(ctx, resourceKey, r)
}

func FromContext(ctx context.Context) (Resource, bool) {
	r, ok := ctx.Value(resourceKey).(Resource)
	return r, ok
}

// Lookup value by dotted path, like "user.id"
// Values are returned as strings; fmt.Stringer (uuid.UUID) is respected
func (r Resource) Lookup(path string) (string, bool) {
	var current any = map[string]any(r)

	for _, part := range strings.Split(path, ".") {
		var m map[string]any
		switch v := current.(type) {
		case map[string]any:
			m = v
		case Resource:
			m = v
		default:
			return "", false
		}

		next, ok := m[part]
		if !ok || next == nil {
			return "", false
		}
		current = next
	}

	switch v := current.(type) {
	case string:
		return v, v != ""
	case fmt.Stringer:
		return v.String(), true
	case map[string]any, Resource:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}
