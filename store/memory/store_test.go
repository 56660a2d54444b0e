package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/rbaliyan/forum/store"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return s
}

func seedTopic(t *testing.T, s *Store) (board *store.Board, topic *store.Topic, first *store.Message) {
	t.Helper()
	ctx := context.Background()
	err := s.Atomic(ctx, func(tx store.Tx) error {
		var err error
		board, err = tx.InsertBoard(ctx, &store.Board{Name: "general"})
		if err != nil {
			return err
		}
		topic, err = tx.InsertTopic(ctx, &store.Topic{BoardID: board.ID, StarterID: 7})
		if err != nil {
			return err
		}
		first, err = tx.InsertMessage(ctx, &store.Message{TopicID: topic.ID, BoardID: board.ID, PosterID: 7, Approved: true})
		if err != nil {
			return err
		}
		if err := tx.SetTopicFirstMessage(ctx, topic.ID, first.ID); err != nil {
			return err
		}
		if err := tx.SetTopicLastMessage(ctx, topic.ID, first.ID); err != nil {
			return err
		}
		if err := tx.AdjustBoardCounts(ctx, board.ID, 1, 1); err != nil {
			return err
		}
		return tx.SetBoardLastMessage(ctx, board.ID, first.ID, first.PostedAt)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return board, topic, first
}

func TestConnectLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.ListBoards(ctx); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := s.Connect(ctx); !errors.Is(err, store.ErrAlreadyConnected) {
		t.Errorf("expected ErrAlreadyConnected, got %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	err := s.Atomic(ctx, func(store.Tx) error { return nil })
	if !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestAtomicRollback(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	board, topic, _ := seedTopic(t, s)

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx store.Tx) error {
		if _, err := tx.InsertMessage(ctx, &store.Message{TopicID: topic.ID, BoardID: board.ID, Approved: true}); err != nil {
			return err
		}
		if err := tx.AdjustBoardCounts(ctx, board.ID, 0, 1); err != nil {
			return err
		}
		// The transaction sees its own writes.
		b, err := tx.GetBoard(ctx, board.ID)
		if err != nil {
			return err
		}
		if b.NumPosts != 2 {
			t.Errorf("expected 2 posts inside tx, got %d", b.NumPosts)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	b, err := s.GetBoard(ctx, board.ID)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if b.NumPosts != 1 {
		t.Errorf("expected rollback to keep 1 post, got %d", b.NumPosts)
	}
	_, total, err := s.ListMessages(ctx, topic.ID, store.ListOptions{}, store.SortAsc)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if total != 1 {
		t.Errorf("expected 1 message after rollback, got %d", total)
	}
}

func TestReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	board, _, _ := seedTopic(t, s)

	b, err := s.GetBoard(ctx, board.ID)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	b.NumPosts = 99

	again, err := s.GetBoard(ctx, board.ID)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if again.NumPosts != 1 {
		t.Errorf("caller mutation leaked into store: %d", again.NumPosts)
	}
}

func TestReadLogMonotonic(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	_, topic, _ := seedTopic(t, s)

	for _, id := range []int64{10, 5, 12, 3} {
		err := s.Atomic(ctx, func(tx store.Tx) error {
			return tx.UpsertReadLog(ctx, 1, topic.ID, id)
		})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	logs, err := s.ReadLogs(ctx, 1, []int64{topic.ID})
	if err != nil {
		t.Fatalf("read logs: %v", err)
	}
	if logs[topic.ID] != 12 {
		t.Errorf("expected 12, got %d", logs[topic.ID])
	}
}

func TestDeleteReadLogsScopedToBoard(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	_, topicA, _ := seedTopic(t, s)
	boardB, topicB, _ := seedTopic(t, s)

	err := s.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.UpsertReadLog(ctx, 1, topicA.ID, 1); err != nil {
			return err
		}
		return tx.UpsertReadLog(ctx, 1, topicB.ID, 2)
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var removed int64
	err = s.Atomic(ctx, func(tx store.Tx) error {
		var err error
		removed, err = tx.DeleteReadLogs(ctx, 1, boardB.ID, 2)
		return err
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed, got %d", removed)
	}

	logs, err := s.ReadLogs(ctx, 1, nil)
	if err != nil {
		t.Fatalf("read logs: %v", err)
	}
	if _, ok := logs[topicA.ID]; !ok {
		t.Error("log in another board should survive")
	}
	if _, ok := logs[topicB.ID]; ok {
		t.Error("log in marked board should be removed")
	}
}

func TestListTopicsStickyFirst(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	board, first, _ := seedTopic(t, s)

	var second *store.Topic
	err := s.Atomic(ctx, func(tx store.Tx) error {
		var err error
		second, err = tx.InsertTopic(ctx, &store.Topic{BoardID: board.ID, LastMessageID: 100})
		if err != nil {
			return err
		}
		sticky := true
		return tx.SetTopicFlags(ctx, first.ID, store.TopicFlags{Sticky: &sticky})
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	topics, total, err := s.ListTopics(ctx, board.ID, store.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("list topics: %v", err)
	}
	if total != 2 || len(topics) != 2 {
		t.Fatalf("expected 2 topics, got %d/%d", len(topics), total)
	}
	if topics[0].ID != first.ID || topics[1].ID != second.ID {
		t.Errorf("expected sticky topic first, got %d then %d", topics[0].ID, topics[1].ID)
	}
}

func TestPollVotes(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	_, topic, _ := seedTopic(t, s)

	var poll *store.Poll
	err := s.Atomic(ctx, func(tx store.Tx) error {
		var err error
		poll, err = tx.InsertPoll(ctx, &store.Poll{TopicID: topic.ID, Question: "?", MaxVotes: 2}, []string{"a", "b", "c"})
		if err != nil {
			return err
		}
		if err := tx.InsertVotes(ctx, poll.ID, 1, []int{0, 2}); err != nil {
			return err
		}
		return tx.AdjustChoiceVotes(ctx, poll.ID, []int{0, 2}, 1)
	})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}

	votes, err := s.MemberVotes(ctx, poll.ID, 1)
	if err != nil {
		t.Fatalf("member votes: %v", err)
	}
	if len(votes) != 2 || votes[0] != 0 || votes[1] != 2 {
		t.Errorf("unexpected votes: %v", votes)
	}

	err = s.Atomic(ctx, func(tx store.Tx) error {
		removed, err := tx.DeleteMemberVotes(ctx, poll.ID, 1)
		if err != nil {
			return err
		}
		if len(removed) != 2 {
			t.Errorf("expected 2 removed, got %d", len(removed))
		}
		return tx.AdjustChoiceVotes(ctx, poll.ID, removed, -1)
	})
	if err != nil {
		t.Fatalf("delete votes: %v", err)
	}

	n, err := s.CountPollVotes(ctx, poll.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 votes, got %d", n)
	}
	choices, err := s.PollChoices(ctx, poll.ID)
	if err != nil {
		t.Fatalf("choices: %v", err)
	}
	for _, c := range choices {
		if c.Votes != 0 {
			t.Errorf("choice %d: expected 0 votes, got %d", c.ChoiceID, c.Votes)
		}
	}
}

func TestReportDuplicates(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	_, _, msg := seedTopic(t, s)

	var first *store.Report
	err := s.Atomic(ctx, func(tx store.Tx) error {
		var err error
		first, err = tx.InsertReport(ctx, &store.Report{MessageID: msg.ID, ReporterID: 3})
		return err
	})
	if err != nil {
		t.Fatalf("insert report: %v", err)
	}

	err = s.Atomic(ctx, func(tx store.Tx) error {
		_, err := tx.InsertReport(ctx, &store.Report{MessageID: msg.ID, ReporterID: 3})
		return err
	})
	if !errors.Is(err, store.ErrDuplicateEntry) {
		t.Fatalf("expected ErrDuplicateEntry, got %v", err)
	}

	err = s.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.CloseReport(ctx, first.ID, 1, msg.PostedAt); err != nil {
			return err
		}
		_, err := tx.InsertReport(ctx, &store.Report{MessageID: msg.ID, ReporterID: 3})
		return err
	})
	if err != nil {
		t.Fatalf("report after close: %v", err)
	}

	err = s.Atomic(ctx, func(tx store.Tx) error {
		return tx.CloseReport(ctx, first.ID, 1, msg.PostedAt)
	})
	if !errors.Is(err, store.ErrAlreadyClosed) {
		t.Errorf("expected ErrAlreadyClosed, got %v", err)
	}

	open, total, err := s.ListReports(ctx, store.ReportStatusOpen, store.ListOptions{})
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if total != 1 || len(open) != 1 || open[0].Closed {
		t.Errorf("expected one open report, got %d", total)
	}
}

func TestDriftDetection(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	boardA, topicA, _ := seedTopic(t, s)
	_, _, msgB := seedTopic(t, s)

	if ids, _ := s.FindBoardDrift(ctx); len(ids) != 0 {
		t.Fatalf("expected no drift, got %v", ids)
	}

	err := s.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.SetBoardLastMessage(ctx, boardA.ID, msgB.ID, msgB.PostedAt); err != nil {
			return err
		}
		return tx.AdjustTopicReplies(ctx, topicA.ID, 3)
	})
	if err != nil {
		t.Fatalf("simulate drift: %v", err)
	}

	boards, err := s.FindBoardDrift(ctx)
	if err != nil {
		t.Fatalf("board drift: %v", err)
	}
	if len(boards) != 1 || boards[0] != boardA.ID {
		t.Errorf("expected board %d, got %v", boardA.ID, boards)
	}
	topics, err := s.FindTopicDrift(ctx)
	if err != nil {
		t.Fatalf("topic drift: %v", err)
	}
	if len(topics) != 1 || topics[0] != topicA.ID {
		t.Errorf("expected topic %d, got %v", topicA.ID, topics)
	}
}

func TestDeleteTopicCascades(t *testing.T) {
	ctx := context.Background()
	s := setupStore(t)
	_, topic, _ := seedTopic(t, s)

	var poll *store.Poll
	err := s.Atomic(ctx, func(tx store.Tx) error {
		var err error
		poll, err = tx.InsertPoll(ctx, &store.Poll{TopicID: topic.ID, MaxVotes: 1}, []string{"a", "b"})
		if err != nil {
			return err
		}
		if err := tx.SetTopicPoll(ctx, topic.ID, poll.ID); err != nil {
			return err
		}
		return tx.UpsertReadLog(ctx, 1, topic.ID, 1)
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	err = s.Atomic(ctx, func(tx store.Tx) error {
		if _, err := tx.DeleteTopicMessages(ctx, topic.ID); err != nil {
			return err
		}
		return tx.DeleteTopic(ctx, topic.ID)
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.GetTopic(ctx, topic.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected topic gone, got %v", err)
	}
	if _, err := s.GetPoll(ctx, poll.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected poll gone, got %v", err)
	}
	logs, _ := s.ReadLogs(ctx, 1, nil)
	if len(logs) != 0 {
		t.Errorf("expected read logs gone, got %v", logs)
	}
}
