package forum

import (
	"context"
	"math"
	"testing"

	"github.com/rbaliyan/forum/store"
)

func TestReadResolver(t *testing.T) {
	p := store.TopicPointer{TopicID: 1, BoardID: 10, LastMessageID: 50}

	tests := []struct {
		name  string
		logs  map[int64]int64
		marks map[int64]int64
		want  ReadState
	}{
		{"no records", nil, nil, ReadStateUnread},
		{"log covers last message", map[int64]int64{1: 50}, nil, ReadStateRead},
		{"log behind last message", map[int64]int64{1: 49}, nil, ReadStateUnread},
		{"mark covers last message", nil, map[int64]int64{10: 60}, ReadStateRead},
		{"mark behind last message", nil, map[int64]int64{10: 40}, ReadStateUnread},
		{"stale log beats covering mark", map[int64]int64{1: 30}, map[int64]int64{10: 60}, ReadStateUnread},
		{"log on another topic", map[int64]int64{2: 99}, nil, ReadStateUnread},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewReadResolver(tt.logs, tt.marks).Resolve(p); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
			if IsUnread(p, tt.logs, tt.marks) != (tt.want == ReadStateUnread) {
				t.Error("IsUnread disagrees with the resolver")
			}
		})
	}
}

func TestUnreadMonotonicity(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	fx := seedForum(t, svc)
	alice := svc.Client(aliceID)
	bob := svc.Client(bobID)

	topic := mustTopic(t, bob, fx.public.ID, "news")
	mustReply(t, bob, topic.ID, "more news")

	if n, err := alice.UnreadCount(ctx); err != nil || n != 1 {
		t.Fatalf("expected 1 unread topic, got %d (err %v)", n, err)
	}

	if err := alice.MarkTopicRead(ctx, topic.ID); err != nil {
		t.Fatalf("mark topic read: %v", err)
	}
	if n, _ := alice.UnreadCount(ctx); n != 0 {
		t.Fatalf("expected 0 unread after marking, got %d", n)
	}

	reply := mustReply(t, bob, topic.ID, "breaking")
	if n, _ := alice.UnreadCount(ctx); n != 1 {
		t.Fatalf("expected topic unread after a new reply, got %d", n)
	}

	page, err := alice.Topic(ctx, topic.ID, TopicQuery{})
	if err != nil {
		t.Fatalf("view topic: %v", err)
	}
	last := page.Messages[len(page.Messages)-1].Message
	if last.ID != reply.ID {
		t.Fatalf("expected the page to end with reply %d, got %d", reply.ID, last.ID)
	}
	if n, _ := alice.UnreadCount(ctx); n != 0 {
		t.Errorf("expected topic read after viewing the page with the reply, got %d unread", n)
	}
}

func TestTopicViewMarksShownPageOnly(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	fx := seedForum(t, svc)
	alice := svc.Client(aliceID)
	bob := svc.Client(bobID)

	topic := mustTopic(t, bob, fx.public.ID, "long thread")
	for range 3 {
		mustReply(t, bob, topic.ID, "reply")
	}

	// The first page of two messages does not reach the last message.
	if _, err := alice.Topic(ctx, topic.ID, TopicQuery{Page: 1, PageSize: 2}); err != nil {
		t.Fatalf("view topic: %v", err)
	}
	if n, _ := alice.UnreadCount(ctx); n != 1 {
		t.Errorf("expected topic still unread, got %d", n)
	}

	// Newest first puts the last message on the first page.
	if _, err := alice.Topic(ctx, topic.ID, TopicQuery{Page: 1, PageSize: 2, Order: SortDesc}); err != nil {
		t.Fatalf("view topic: %v", err)
	}
	if n, _ := alice.UnreadCount(ctx); n != 0 {
		t.Errorf("expected topic read, got %d unread", n)
	}

	// Going back to an earlier page never moves the log backwards.
	if _, err := alice.Topic(ctx, topic.ID, TopicQuery{Page: 1, PageSize: 2}); err != nil {
		t.Fatalf("view topic: %v", err)
	}
	if n, _ := alice.UnreadCount(ctx); n != 0 {
		t.Errorf("expected topic to stay read, got %d unread", n)
	}
}

func TestPosterReadsOwnPost(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	fx := seedForum(t, svc)
	alice := svc.Client(aliceID)

	topic := mustTopic(t, alice, fx.public.ID, "mine")
	mustReply(t, alice, topic.ID, "still mine")
	if n, _ := alice.UnreadCount(ctx); n != 0 {
		t.Errorf("own posts should not be unread, got %d", n)
	}
}

func TestMarkBoardRead(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	fx := seedForum(t, svc)
	alice := svc.Client(aliceID)
	bob := svc.Client(bobID)

	t1 := mustTopic(t, bob, fx.public.ID, "one")
	mustTopic(t, bob, fx.public.ID, "two")
	mustTopic(t, bob, fx.child.ID, "elsewhere")

	if err := alice.MarkTopicRead(ctx, t1.ID); err != nil {
		t.Fatalf("mark topic read: %v", err)
	}
	if err := alice.MarkBoardRead(ctx, fx.public.ID); err != nil {
		t.Fatalf("mark board read: %v", err)
	}
	if n, _ := alice.UnreadCount(ctx); n != 1 {
		t.Fatalf("expected only the child board topic unread, got %d", n)
	}

	// A reply after the mark makes its topic unread again.
	mustReply(t, bob, t1.ID, "after the mark")
	list, err := alice.UnreadTopics(ctx, 1, 10)
	if err != nil {
		t.Fatalf("unread topics: %v", err)
	}
	if list.Total != 2 {
		t.Fatalf("expected 2 unread topics, got %d", list.Total)
	}
	if list.Topics[0].Topic.ID != t1.ID {
		t.Errorf("expected the most recently active topic first, got %d", list.Topics[0].Topic.ID)
	}
	for _, s := range list.Topics {
		if !s.Unread {
			t.Errorf("topic %d listed as unread but flagged read", s.Topic.ID)
		}
	}

	t.Run("redirect board", func(t *testing.T) {
		if err := alice.MarkBoardRead(ctx, fx.link.ID); !IsInvalid(err) {
			t.Errorf("expected invalid for a redirect board, got %v", err)
		}
	})

	t.Run("inaccessible board", func(t *testing.T) {
		if err := alice.MarkBoardRead(ctx, fx.staff.ID); !IsForbidden(err) {
			t.Errorf("expected forbidden, got %v", err)
		}
	})
}

func TestMarkAllReadConvergence(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	fx := seedForum(t, svc)
	bob := svc.Client(bobID)

	for _, b := range []int64{fx.public.ID, fx.child.ID, fx.staff.ID} {
		topic := mustTopic(t, bob, b, "topic")
		mustReply(t, bob, topic.ID, "reply")
	}

	for _, id := range []int64{aliceID, modID, outsiderID} {
		fm := svc.Client(id)
		if err := fm.MarkAllRead(ctx); err != nil {
			t.Fatalf("member %d: mark all read: %v", id, err)
		}
		n, err := fm.UnreadCount(ctx)
		if err != nil {
			t.Fatalf("member %d: unread count: %v", id, err)
		}
		if n != 0 {
			t.Errorf("member %d: expected 0 unread after mark all, got %d", id, n)
		}
	}
}

func TestUnreadForGuests(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	fx := seedForum(t, svc)
	mustTopic(t, svc.Client(bobID), fx.public.ID, "hello")

	guest := svc.Client(0)
	if n, err := guest.UnreadCount(ctx); err != nil || n != 0 {
		t.Errorf("guest unread count: got %d, %v", n, err)
	}
	list, err := guest.UnreadTopics(ctx, 1, 10)
	if err != nil {
		t.Fatalf("guest unread topics: %v", err)
	}
	if list.Total != 0 || len(list.Topics) != 0 {
		t.Errorf("guests have no unread topics, got %d", list.Total)
	}
}

func TestUnreadTopicsPaging(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	fx := seedForum(t, svc)
	bob := svc.Client(bobID)
	for range 5 {
		mustTopic(t, bob, fx.public.ID, "paged")
	}

	alice := svc.Client(aliceID)
	list, err := alice.UnreadTopics(ctx, 3, 2)
	if err != nil {
		t.Fatalf("unread topics: %v", err)
	}
	if list.Total != 5 || len(list.Topics) != 1 {
		t.Errorf("expected 1 topic on page 3 of 5, got %d of %d", len(list.Topics), list.Total)
	}
	beyond, err := alice.UnreadTopics(ctx, 9, 2)
	if err != nil {
		t.Fatalf("unread topics: %v", err)
	}
	if len(beyond.Topics) != 0 {
		t.Errorf("expected an empty page past the end, got %d", len(beyond.Topics))
	}

	huge, err := alice.UnreadTopics(ctx, math.MaxInt64/2+2, 2)
	if err != nil {
		t.Fatalf("unread topics on a huge page: %v", err)
	}
	if len(huge.Topics) != 0 || huge.Total != 5 {
		t.Errorf("expected an empty page of 5, got %d of %d", len(huge.Topics), huge.Total)
	}
}
