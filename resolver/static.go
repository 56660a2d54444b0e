// Package resolver provides IdentityResolver implementations.
package resolver

import (
	"context"
	"fmt"
	"maps"

	"github.com/rbaliyan/forum"
)

// Static is a map-based IdentityResolver for testing and simple deployments.
// It resolves member IDs from an in-memory map. Safe for concurrent use (read-only after creation).
type Static struct {
	identities map[int64]*forum.Identity
}

// NewStatic creates a Static resolver from a map of member ID to Identity.
// The map is copied to prevent external mutation.
func NewStatic(identities map[int64]*forum.Identity) *Static {
	return &Static{identities: maps.Clone(identities)}
}

// Resolve returns identity information for a single member.
func (s *Static) Resolve(_ context.Context, memberID int64) (*forum.Identity, error) {
	id, ok := s.identities[memberID]
	if !ok || id == nil {
		return nil, fmt.Errorf("member %d: %w", memberID, forum.ErrIdentityNotFound)
	}
	return id, nil
}

// ResolveBatch returns identity information for multiple members.
// Unknown IDs have nil entries in the returned slice.
func (s *Static) ResolveBatch(_ context.Context, memberIDs []int64) ([]*forum.Identity, error) {
	result := make([]*forum.Identity, len(memberIDs))
	for i, id := range memberIDs {
		result[i] = s.identities[id]
	}
	return result, nil
}
