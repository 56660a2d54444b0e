package forum

import (
	"context"
	"errors"
	"testing"

	"github.com/rbaliyan/forum/store"
)

// checkBoardConsistency verifies a board's counters and pointer against its rows.
func checkBoardConsistency(t *testing.T, svc Service, boardID int64) {
	t.Helper()
	ctx := context.Background()
	st := svc.(*service).store

	b, err := st.GetBoard(ctx, boardID)
	if err != nil {
		t.Fatalf("get board %d: %v", boardID, err)
	}
	totals, err := st.BoardTotals(ctx, boardID)
	if err != nil {
		t.Fatalf("board totals %d: %v", boardID, err)
	}
	if b.NumTopics != totals.Topics || b.NumPosts != totals.Posts {
		t.Errorf("board %d counts %d/%d, rows %d/%d", boardID, b.NumTopics, b.NumPosts, totals.Topics, totals.Posts)
	}
	if b.LastMessageID != totals.LastMessageID {
		t.Errorf("board %d last message %d, expected %d", boardID, b.LastMessageID, totals.LastMessageID)
	}
	if b.LastMessageID != 0 {
		m, err := st.GetMessage(ctx, b.LastMessageID)
		if err != nil {
			t.Fatalf("board %d last message: %v", boardID, err)
		}
		if m.BoardID != boardID {
			t.Errorf("board %d last message %d belongs to board %d", boardID, m.ID, m.BoardID)
		}
	}
}

// checkTopicConsistency verifies a topic's reply count and pointers.
func checkTopicConsistency(t *testing.T, svc Service, topicID int64) {
	t.Helper()
	ctx := context.Background()
	st := svc.(*service).store

	topic, err := st.GetTopic(ctx, topicID)
	if err != nil {
		t.Fatalf("get topic %d: %v", topicID, err)
	}
	totals, err := st.TopicTotals(ctx, topicID)
	if err != nil {
		t.Fatalf("topic totals %d: %v", topicID, err)
	}
	if topic.NumReplies != totals.Messages-1 {
		t.Errorf("topic %d replies %d, expected %d", topicID, topic.NumReplies, totals.Messages-1)
	}
	if topic.FirstMessageID != totals.FirstMessageID || topic.LastMessageID != totals.LastMessageID {
		t.Errorf("topic %d pointers %d/%d, expected %d/%d", topicID,
			topic.FirstMessageID, topic.LastMessageID, totals.FirstMessageID, totals.LastMessageID)
	}
	m, err := st.GetMessage(ctx, topic.LastMessageID)
	if err != nil {
		t.Fatalf("topic %d last message: %v", topicID, err)
	}
	if m.TopicID != topicID {
		t.Errorf("topic %d last message belongs to topic %d", topicID, m.TopicID)
	}
}

func TestCounterConsistency(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	fx := seedForum(t, svc)
	alice := svc.Client(aliceID)
	mod := svc.Client(modID)

	t1 := mustTopic(t, alice, fx.public.ID, "first")
	r1 := mustReply(t, alice, t1.ID, "a")
	mustReply(t, alice, t1.ID, "b")
	t2 := mustTopic(t, alice, fx.public.ID, "second")
	mustReply(t, alice, t2.ID, "c")
	t3 := mustTopic(t, alice, fx.child.ID, "third")

	if err := alice.DeletePost(ctx, r1.ID); err != nil {
		t.Fatalf("delete reply: %v", err)
	}
	if err := mod.MoveTopic(ctx, t2.ID, fx.child.ID); err != nil {
		t.Fatalf("move topic: %v", err)
	}
	if err := alice.DeletePost(ctx, t3.FirstMessageID); err != nil {
		t.Fatalf("delete topic: %v", err)
	}

	checkBoardConsistency(t, svc, fx.public.ID)
	checkBoardConsistency(t, svc, fx.child.ID)
	checkTopicConsistency(t, svc, t1.ID)
	checkTopicConsistency(t, svc, t2.ID)

	st := svc.(*service).store
	public, _ := st.GetBoard(ctx, fx.public.ID)
	if public.NumTopics != 1 || public.NumPosts != 2 {
		t.Errorf("public board: expected 1 topic and 2 posts, got %d/%d", public.NumTopics, public.NumPosts)
	}
	child, _ := st.GetBoard(ctx, fx.child.ID)
	if child.NumTopics != 1 || child.NumPosts != 2 {
		t.Errorf("child board: expected 1 topic and 2 posts, got %d/%d", child.NumTopics, child.NumPosts)
	}
	if _, err := st.GetTopic(ctx, t3.ID); !store.IsNotFound(err) {
		t.Errorf("deleted topic should be gone, got %v", err)
	}

	member, err := st.GetMember(ctx, aliceID)
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	if member.Posts != 4 {
		t.Errorf("expected alice to have 4 posts left, got %d", member.Posts)
	}
}

func TestDeleteLastMessageRecomputesPointers(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	fx := seedForum(t, svc)
	alice := svc.Client(aliceID)

	topic := mustTopic(t, alice, fx.public.ID, "five messages")
	var msgs []*store.Message
	for range 4 {
		msgs = append(msgs, mustReply(t, alice, topic.ID, "reply"))
	}
	last := msgs[len(msgs)-1]
	prev := msgs[len(msgs)-2]

	st := svc.(*service).store
	before, _ := st.GetBoard(ctx, fx.public.ID)
	if before.LastMessageID != last.ID {
		t.Fatalf("setup: board last message %d, expected %d", before.LastMessageID, last.ID)
	}

	if err := alice.DeletePost(ctx, last.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	gotTopic, _ := st.GetTopic(ctx, topic.ID)
	if gotTopic.LastMessageID != prev.ID {
		t.Errorf("topic last message: expected %d, got %d", prev.ID, gotTopic.LastMessageID)
	}
	if gotTopic.NumReplies != 3 {
		t.Errorf("expected 3 replies, got %d", gotTopic.NumReplies)
	}
	gotBoard, _ := st.GetBoard(ctx, fx.public.ID)
	if gotBoard.LastMessageID != prev.ID {
		t.Errorf("board last message: expected %d, got %d", prev.ID, gotBoard.LastMessageID)
	}
}

func TestRepairPointers(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	fx := seedForum(t, svc)
	alice := svc.Client(aliceID)

	inPublic := mustTopic(t, alice, fx.public.ID, "public")
	mustReply(t, alice, inPublic.ID, "reply")
	inChild := mustTopic(t, alice, fx.child.ID, "child")

	st := svc.(*service).store
	// Point the public board at a message in another board and skew a topic.
	err := st.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.SetBoardLastMessage(ctx, fx.public.ID, inChild.FirstMessageID, svc.(*service).now()); err != nil {
			return err
		}
		return tx.SetTopicReplies(ctx, inPublic.ID, 7)
	})
	if err != nil {
		t.Fatalf("inject drift: %v", err)
	}

	result, err := svc.RepairPointers(ctx)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}

	count := func(ids []int64, id int64) int {
		n := 0
		for _, v := range ids {
			if v == id {
				n++
			}
		}
		return n
	}
	if n := count(result.FixedBoards, fx.public.ID); n != 1 {
		t.Errorf("expected board %d fixed exactly once, got %d", fx.public.ID, n)
	}
	if n := count(result.FixedTopics, inPublic.ID); n != 1 {
		t.Errorf("expected topic %d fixed exactly once, got %d", inPublic.ID, n)
	}
	if count(result.FixedBoards, fx.child.ID) != 0 {
		t.Error("consistent board should not be reported")
	}
	checkBoardConsistency(t, svc, fx.public.ID)
	checkTopicConsistency(t, svc, inPublic.ID)

	again, err := svc.RepairPointers(ctx)
	if err != nil {
		t.Fatalf("second repair: %v", err)
	}
	if len(again.FixedBoards) != 0 || len(again.FixedTopics) != 0 {
		t.Errorf("second repair should find nothing, got %+v", again)
	}
}

func TestCompactIDs(t *testing.T) {
	got := compactIDs([]int64{5, 1, 5, 3, 1})
	want := []int64{1, 3, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestFixedOrSkipped(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		fixed   bool
		wantErr bool
	}{
		{"fixed", nil, true, false},
		{"no drift", errNoDrift, false, false},
		{"vanished", store.ErrNotFound, false, false},
		{"failure", errors.New("boom"), false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixed, err := fixedOrSkipped(tt.err)
			if fixed != tt.fixed || (err != nil) != tt.wantErr {
				t.Errorf("got (%v, %v)", fixed, err)
			}
		})
	}
}
