package resourcectx

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestResource_Lookup(t *testing.T) {
	id := uuid.New()
	r := Resource{
		"id":    id,
		"title": "Weekly cup",
		"slots": 16,
		"user": map[string]any{
			"id":       id.String(),
			"username": "nk",
		},
		"owner": Resource{"id": "nested-resource"},
		"empty": "",
	}

	tests := []struct {
		path  string
		want  string
		found bool
	}{
		{path: "id", want: id.String(), found: true},
		{path: "user.id", want: id.String(), found: true},
		{path: "owner.id", want: "nested-resource", found: true},
		{path: "slots", want: "16", found: true},
		{path: "user", found: false},
		{path: "user.missing", found: false},
		{path: "title.id", found: false},
		{path: "empty", found: false},
		{path: "", found: false},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got, ok := r.Lookup(tc.path)

			require.Equal(t, tc.found, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResource_Context(t *testing.T) {
	_, ok := FromContext(t.Context())
	require.False(t, ok, "no resource in empty context")

	ctx := New(t.Context(), Resource{"id": "1"})
	r, ok := FromContext(ctx)

	require.True(t, ok)
	require.Equal(t, Resource{"id": "1"}, r)
}
