package forum

import (
	"slices"
	"strconv"
	"strings"
)

// Membership groups with fixed meaning.
const (
	// GroupAny in a board's allowed set grants access to everyone.
	GroupAny             = -1
	GroupGuest           = 0
	GroupAdministrator   = 1
	GroupGlobalModerator = 2
	GroupModerator       = 3
	GroupNewbie          = 4
)

var (
	// PublicGroups is the allowed set of a board with no group restriction.
	PublicGroups = NewGroupSet(GroupAny, GroupGuest, GroupAdministrator, GroupGlobalModerator, GroupModerator, GroupNewbie)

	// ModeratorGroups may list and close reports, move topics and edit any post.
	ModeratorGroups = NewGroupSet(GroupAdministrator, GroupGlobalModerator, GroupModerator)
)

// GroupSet is an immutable set of group ids.
// The zero value is the empty set.
type GroupSet struct {
	ids []int // sorted, unique
}

// NewGroupSet builds a set from ids. Duplicates are dropped.
func NewGroupSet(ids ...int) GroupSet {
	s := slices.Clone(ids)
	slices.Sort(s)
	return GroupSet{ids: slices.Compact(s)}
}

// ParseGroupSet parses a comma-separated list of group ids.
// Blank and non-numeric tokens are discarded.
func ParseGroupSet(spec string) GroupSet {
	var ids []int
	for _, tok := range strings.Split(spec, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return NewGroupSet(ids...)
}

// ParseBoardGroups parses a board's allowed-group specification.
// An empty, blank or "0" specification, or one without a single valid id,
// means the board is public.
func ParseBoardGroups(spec string) GroupSet {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "0" {
		return PublicGroups
	}
	set := ParseGroupSet(spec)
	if set.Len() == 0 {
		return PublicGroups
	}
	return set
}

// Len returns the number of groups in the set.
func (s GroupSet) Len() int {
	return len(s.ids)
}

// Contains reports whether id is in the set.
func (s GroupSet) Contains(id int) bool {
	_, ok := slices.BinarySearch(s.ids, id)
	return ok
}

// Intersects reports whether the sets share at least one group.
func (s GroupSet) Intersects(other GroupSet) bool {
	i, j := 0, 0
	for i < len(s.ids) && j < len(other.ids) {
		switch {
		case s.ids[i] == other.ids[j]:
			return true
		case s.ids[i] < other.ids[j]:
			i++
		default:
			j++
		}
	}
	return false
}

// Union returns a set holding the groups of both sets.
func (s GroupSet) Union(other GroupSet) GroupSet {
	return NewGroupSet(append(slices.Clone(s.ids), other.ids...)...)
}

// Slice returns the group ids in ascending order.
func (s GroupSet) Slice() []int {
	return slices.Clone(s.ids)
}

// String serializes the set in the comma-separated storage format.
func (s GroupSet) String() string {
	parts := make([]string, len(s.ids))
	for i, id := range s.ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}

// Allows reports whether a viewer with the given groups may enter a board
// whose allowed set is s.
func (s GroupSet) Allows(groups GroupSet) bool {
	return s.Contains(GroupAny) || s.Intersects(groups)
}
