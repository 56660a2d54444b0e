package forum

import (
	"context"
	"errors"
	"testing"

	"github.com/rbaliyan/forum/store"
	"github.com/rbaliyan/forum/store/memory"
)

func TestParseBoardGroups(t *testing.T) {
	tests := []struct {
		spec string
		want string
	}{
		{"", PublicGroups.String()},
		{"   ", PublicGroups.String()},
		{"0", PublicGroups.String()},
		{"x,y", PublicGroups.String()},
		{"1,2", "1,2"},
		{" 3 , 1,3,", "1,3"},
		{"-1", "-1"},
		{"2,abc,4", "2,4"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			if got := ParseBoardGroups(tt.spec).String(); got != tt.want {
				t.Errorf("ParseBoardGroups(%q) = %q, want %q", tt.spec, got, tt.want)
			}
		})
	}
}

func TestGroupSet(t *testing.T) {
	t.Run("zero value is empty", func(t *testing.T) {
		var s GroupSet
		if s.Len() != 0 || s.Contains(0) || s.String() != "" {
			t.Errorf("unexpected zero set: %v", s.Slice())
		}
	})

	t.Run("intersects", func(t *testing.T) {
		a := NewGroupSet(1, 5, 9)
		if !a.Intersects(NewGroupSet(2, 9)) {
			t.Error("expected intersection on 9")
		}
		if a.Intersects(NewGroupSet(2, 3, 4)) {
			t.Error("expected no intersection")
		}
	})

	t.Run("union", func(t *testing.T) {
		got := NewGroupSet(3, 1).Union(NewGroupSet(2, 3))
		if got.String() != "1,2,3" {
			t.Errorf("expected 1,2,3, got %s", got)
		}
	})

	t.Run("allows", func(t *testing.T) {
		if !NewGroupSet(GroupAny).Allows(GroupSet{}) {
			t.Error("GroupAny should admit a viewer with no groups")
		}
		if NewGroupSet(1, 2).Allows(NewGroupSet(3)) {
			t.Error("disjoint sets should not admit")
		}
	})
}

// TestAccessSymmetry checks that an empty, blank or "0" specification
// behaves exactly like the explicit public list for every group.
func TestAccessSymmetry(t *testing.T) {
	explicit := ParseBoardGroups("-1,0,1,2,3,4")
	for _, spec := range []string{"", " ", "0"} {
		implicit := ParseBoardGroups(spec)
		for g := -1; g <= 10; g++ {
			viewerGroups := NewGroupSet(g)
			if implicit.Allows(viewerGroups) != explicit.Allows(viewerGroups) {
				t.Errorf("spec %q disagrees with explicit public list for group %d", spec, g)
			}
		}
	}
}

func TestCanAccess(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	fx := seedForum(t, svc)

	t.Run("guest on board with empty groups", func(t *testing.T) {
		b, err := svc.CreateBoard(ctx, store.Board{CategoryID: fx.category.ID, Name: "Open", MemberGroups: ""})
		if err != nil {
			t.Fatalf("create board: %v", err)
		}
		if !svc.Client(0).CanAccess(ctx, b.ID) {
			t.Error("guest should access a board with no group restriction")
		}
	})

	t.Run("membership change grants access", func(t *testing.T) {
		b, err := svc.CreateBoard(ctx, store.Board{CategoryID: fx.category.ID, Name: "Mods", MemberGroups: "1,2"})
		if err != nil {
			t.Fatalf("create board: %v", err)
		}
		const memberID = 50
		if err := svc.SyncMember(ctx, store.Member{ID: memberID, PrimaryGroup: 3, PostGroup: 3}); err != nil {
			t.Fatalf("sync member: %v", err)
		}
		fm := svc.Client(memberID)
		if fm.CanAccess(ctx, b.ID) {
			t.Error("group 3 should not access a 1,2 board")
		}
		if err := svc.SyncMember(ctx, store.Member{ID: memberID, PrimaryGroup: 3, PostGroup: 3, AdditionalGroups: "2"}); err != nil {
			t.Fatalf("sync member: %v", err)
		}
		if !fm.CanAccess(ctx, b.ID) {
			t.Error("member added to group 2 should access a 1,2 board")
		}
	})

	t.Run("additional groups count", func(t *testing.T) {
		if !svc.Client(bobID).CanAccess(ctx, fx.staff.ID) {
			t.Error("bob is in group 7 and should see the staff board")
		}
		if svc.Client(aliceID).CanAccess(ctx, fx.staff.ID) {
			t.Error("alice should not see the staff board")
		}
	})

	t.Run("missing board", func(t *testing.T) {
		if svc.Client(adminID).CanAccess(ctx, 9999) {
			t.Error("a missing board is never accessible")
		}
	})

	t.Run("denied board read", func(t *testing.T) {
		_, err := svc.Client(aliceID).Board(ctx, fx.staff.ID, 1, 20)
		if !errors.Is(err, ErrAccessDenied) {
			t.Errorf("expected ErrAccessDenied, got %v", err)
		}
		if !IsForbidden(err) {
			t.Error("expected forbidden classification")
		}
	})
}

func TestAccessPolicyMissingMember(t *testing.T) {
	ctx := context.Background()

	t.Run("default policy treats missing members as administrators", func(t *testing.T) {
		svc := setupTestService(t)
		fx := seedForum(t, svc)
		if !svc.Client(missingUser).CanAccess(ctx, fx.staff.ID) {
			t.Error("missing member should fall back to the administrator group")
		}
	})

	t.Run("strict policy treats missing members as guests", func(t *testing.T) {
		svc := setupTestService(t, WithAccessPolicy(StrictAccessPolicy()))
		fx := seedForum(t, svc)
		fm := svc.Client(missingUser)
		if fm.CanAccess(ctx, fx.staff.ID) {
			t.Error("missing member should not see the staff board under the strict policy")
		}
		if !fm.CanAccess(ctx, fx.public.ID) {
			t.Error("missing member should still see public boards")
		}
	})

	t.Run("deny mode leaves only open boards", func(t *testing.T) {
		svc := setupTestService(t, WithAccessPolicy(AccessPolicy{OnError: DenyOnError, MissingMember: DenyOnMissingMember}))
		fx := seedForum(t, svc)
		b, err := svc.CreateBoard(ctx, store.Board{CategoryID: fx.category.ID, Name: "Newbies", MemberGroups: "4"})
		if err != nil {
			t.Fatalf("create board: %v", err)
		}
		fm := svc.Client(missingUser)
		if fm.CanAccess(ctx, b.ID) {
			t.Error("member without groups should not see a restricted board")
		}
		if !fm.CanAccess(ctx, fx.public.ID) {
			t.Error("GroupAny boards stay open")
		}
	})
}

// failingReader fails every member lookup.
type failingReader struct {
	store.BoardReader
}

func (failingReader) GetMember(context.Context, int64) (*store.Member, error) {
	return nil, store.ErrTransactionFailed
}

func TestAccessPolicyLookupFailure(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	if err := st.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	restricted := &store.Board{ID: 1, MemberGroups: "1"}

	t.Run("allow on error", func(t *testing.T) {
		ac := &accessControl{reader: failingReader{st}, policy: DefaultAccessPolicy(), logger: discardLogger()}
		v := ac.resolve(ctx, aliceID)
		if !v.canSee(restricted) {
			t.Error("fail-open viewer should see every board")
		}
		if v.isModerator() {
			t.Error("fail-open viewer must not gain moderator rights")
		}
		if _, err := ac.moderator(ctx, aliceID); err == nil {
			t.Error("moderator check should surface the lookup failure")
		}
	})

	t.Run("deny on error", func(t *testing.T) {
		ac := &accessControl{reader: failingReader{st}, policy: StrictAccessPolicy(), logger: discardLogger()}
		if ac.resolve(ctx, aliceID).canSee(restricted) {
			t.Error("fail-closed viewer should not see a restricted board")
		}
		if !ac.resolve(ctx, aliceID).canSee(&store.Board{MemberGroups: "-1"}) {
			t.Error("GroupAny boards stay open even when failing closed")
		}
	})
}
