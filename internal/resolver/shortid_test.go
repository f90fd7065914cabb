package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dyluth/collab/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	objects map[string]bus.ObjectType
	err     error
}

func (f fakeLister) Objects(context.Context) (map[string]bus.ObjectType, error) {
	return f.objects, f.err
}

func TestResolveObjectID(t *testing.T) {
	lister := fakeLister{objects: map[string]bus.ObjectType{
		"a1b2c3d4-0000-0000-0000-000000000001": "Coordinator",
		"a1b2ffff-0000-0000-0000-000000000002": "Participant",
		"abc":                                  "Participant",
	}}
	ctx := context.Background()

	tests := []struct {
		name     string
		shortID  string
		wantID   string
		wantType bus.ObjectType
		check    func(error) bool
	}{
		{name: "unique prefix", shortID: "a1b2c3", wantID: "a1b2c3d4-0000-0000-0000-000000000001", wantType: "Coordinator"},
		{name: "exact short id", shortID: "abc", wantID: "abc", wantType: "Participant"},
		{name: "ambiguous", shortID: "a1b2", check: IsAmbiguousError},
		{name: "not found", shortID: "ffff00", check: IsNotFoundError},
		{name: "too short", shortID: "a1", check: func(err error) bool { return err != nil && !IsNotFoundError(err) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, typ, err := ResolveObjectID(ctx, lister, tt.shortID)
			if tt.check != nil {
				assert.True(t, tt.check(err), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantType, typ)
		})
	}
}

func TestResolveObjectID_ListError(t *testing.T) {
	_, _, err := ResolveObjectID(context.Background(), fakeLister{err: errors.New("down")}, "abcdef")
	assert.ErrorContains(t, err, "failed to list objects")
}

func TestFormatAmbiguousError(t *testing.T) {
	matches := make([]string, 12)
	for i := range matches {
		matches[i] = fmt.Sprintf("id-%02d", i)
	}
	msg := FormatAmbiguousError(&AmbiguousError{ShortID: "id-", Matches: matches})
	assert.Contains(t, msg, "matches 12 objects")
	assert.Contains(t, msg, "  id-09\n")
	assert.NotContains(t, msg, "id-10")
	assert.Contains(t, msg, "...and 2 more")
	assert.Contains(t, msg, "longer prefix")
}
