package forum

import (
	"context"
	"log/slog"

	"github.com/rbaliyan/forum/store"
)

// ErrorMode decides access when a group or board lookup fails.
type ErrorMode int

const (
	// AllowOnError grants access when the lookup fails.
	AllowOnError ErrorMode = iota
	// DenyOnError refuses access when the lookup fails.
	DenyOnError
)

// MissingMemberMode decides the groups of an authenticated member that has
// no row in the membership store.
type MissingMemberMode int

const (
	// DefaultGroupOnMissingMember assigns AccessPolicy.FallbackGroup.
	DefaultGroupOnMissingMember MissingMemberMode = iota
	// GuestOnMissingMember treats the member as a guest.
	GuestOnMissingMember
	// DenyOnMissingMember assigns no groups; only boards open to GroupAny remain visible.
	DenyOnMissingMember
)

// AccessPolicy controls the fallbacks of the access-control engine.
type AccessPolicy struct {
	OnError       ErrorMode
	MissingMember MissingMemberMode
	FallbackGroup int
}

// DefaultAccessPolicy fails open: lookup errors allow access and members
// missing from the store are treated as administrators.
func DefaultAccessPolicy() AccessPolicy {
	return AccessPolicy{
		OnError:       AllowOnError,
		MissingMember: DefaultGroupOnMissingMember,
		FallbackGroup: GroupAdministrator,
	}
}

// StrictAccessPolicy fails closed: lookup errors deny access and members
// missing from the store are treated as guests.
func StrictAccessPolicy() AccessPolicy {
	return AccessPolicy{
		OnError:       DenyOnError,
		MissingMember: GuestOnMissingMember,
		FallbackGroup: GroupGuest,
	}
}

// viewer is the resolved identity of the caller for one request.
type viewer struct {
	memberID int64
	groups   GroupSet
	allowAll bool // lookup failed under AllowOnError
}

func (v viewer) guest() bool {
	return v.memberID == 0
}

func (v viewer) isModerator() bool {
	return v.groups.Intersects(ModeratorGroups)
}

// canSee reports whether the viewer may enter the board.
func (v viewer) canSee(b *store.Board) bool {
	return v.allowAll || ParseBoardGroups(b.MemberGroups).Allows(v.groups)
}

// accessControl resolves effective groups and board visibility.
type accessControl struct {
	reader store.BoardReader
	policy AccessPolicy
	logger *slog.Logger
}

// effectiveGroups returns the member's groups. A zero member is a guest.
// Store failures are returned to the caller; a missing member is resolved
// by the policy.
func (a *accessControl) effectiveGroups(ctx context.Context, memberID int64) (GroupSet, error) {
	if memberID == 0 {
		return NewGroupSet(GroupGuest), nil
	}
	m, err := a.reader.GetMember(ctx, memberID)
	if store.IsNotFound(err) {
		switch a.policy.MissingMember {
		case GuestOnMissingMember:
			return NewGroupSet(GroupGuest), nil
		case DenyOnMissingMember:
			return GroupSet{}, nil
		default:
			return NewGroupSet(a.policy.FallbackGroup), nil
		}
	}
	if err != nil {
		return GroupSet{}, err
	}

	ids := []int{m.PrimaryGroup}
	if m.PostGroup != m.PrimaryGroup {
		ids = append(ids, m.PostGroup)
	}
	return NewGroupSet(ids...).Union(ParseGroupSet(m.AdditionalGroups)), nil
}

// resolve builds the viewer for a request. It never fails: lookup errors are
// logged and resolved by the policy.
func (a *accessControl) resolve(ctx context.Context, memberID int64) viewer {
	groups, err := a.effectiveGroups(ctx, memberID)
	if err == nil {
		return viewer{memberID: memberID, groups: groups}
	}
	a.logger.Warn("group lookup failed, applying access policy",
		"error", err, "member_id", memberID, "allow", a.policy.OnError == AllowOnError)
	if a.policy.OnError == AllowOnError {
		return viewer{memberID: memberID, allowAll: true}
	}
	return viewer{memberID: memberID}
}

// canAccess reports whether the member may enter the board. A board that does
// not exist is never accessible; other lookup errors follow the policy.
func (a *accessControl) canAccess(ctx context.Context, boardID, memberID int64) bool {
	b, err := a.reader.GetBoard(ctx, boardID)
	if store.IsNotFound(err) {
		return false
	}
	if err != nil {
		a.logger.Warn("board lookup failed, applying access policy",
			"error", err, "board_id", boardID, "member_id", memberID)
		return a.policy.OnError == AllowOnError
	}
	return a.resolve(ctx, memberID).canSee(b)
}

// moderator resolves the viewer's groups for a permission check. Unlike board
// visibility, store failures here are returned rather than resolved by policy.
func (a *accessControl) moderator(ctx context.Context, memberID int64) (bool, error) {
	if memberID == 0 {
		return false, nil
	}
	groups, err := a.effectiveGroups(ctx, memberID)
	if err != nil {
		return false, err
	}
	return groups.Intersects(ModeratorGroups), nil
}
