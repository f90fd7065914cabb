// Package resolver expands short object ID prefixes, as printed by
// 'collab watch', to full bus object IDs.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dyluth/collab/pkg/bus"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 4

// ObjectLister lists the objects registered on a session bus.
type ObjectLister interface {
	Objects(ctx context.Context) (map[string]bus.ObjectType, error)
}

// ResolveObjectID resolves a short ID prefix to a full object ID and its
// type. An exact match always wins; otherwise the prefix must match exactly
// one registered object.
func ResolveObjectID(ctx context.Context, lister ObjectLister, shortID string) (string, bus.ObjectType, error) {
	objects, err := lister.Objects(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to list objects: %w", err)
	}

	if typ, ok := objects[shortID]; ok {
		return shortID, typ, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	var matches []string
	for id := range objects {
		if strings.HasPrefix(id, shortID) {
			matches = append(matches, id)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], objects[matches[0]], nil
	default:
		return "", "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no objects matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no objects found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple objects matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d objects", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists the matching IDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous short ID '%s' matches %d objects:\n", err.ShortID, len(err.Matches))

	displayCount := min(len(err.Matches), 10)
	for _, id := range err.Matches[:displayCount] {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the object.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
