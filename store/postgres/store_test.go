package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rbaliyan/forum/store"
)

// setupStore connects to the database named by FORUM_TEST_POSTGRES_DSN using a
// per-test table prefix. Tests are skipped when the variable is unset.
func setupStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("FORUM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FORUM_TEST_POSTGRES_DSN not set")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	prefix := fmt.Sprintf("forumtest_%d_", time.Now().UnixNano())
	s := New(db, WithTablePrefix(prefix))
	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}

	t.Cleanup(func() {
		tb := s.queries.t
		for _, table := range []string{
			tb.categories, tb.boards, tb.members, tb.topics, tb.messages, tb.readLogs,
			tb.boardMarks, tb.polls, tb.choices, tb.votes, tb.reports, tb.activity,
		} {
			_, _ = db.Exec("DROP TABLE IF EXISTS " + table)
		}
		_ = s.Close(ctx)
		_ = db.Close()
	})
	return s
}

func seedTopic(t *testing.T, s *Store) (*store.Board, *store.Topic, *store.Message) {
	t.Helper()
	ctx := context.Background()
	var (
		board *store.Board
		topic *store.Topic
		msg   *store.Message
	)
	err := s.Atomic(ctx, func(tx store.Tx) error {
		var err error
		if board, err = tx.InsertBoard(ctx, &store.Board{Name: "general"}); err != nil {
			return err
		}
		if topic, err = tx.InsertTopic(ctx, &store.Topic{BoardID: board.ID, StarterID: 7}); err != nil {
			return err
		}
		msg, err = tx.InsertMessage(ctx, &store.Message{
			TopicID: topic.ID, BoardID: board.ID, PosterID: 7, Subject: "hello", Approved: true,
		})
		if err != nil {
			return err
		}
		if err := tx.SetTopicFirstMessage(ctx, topic.ID, msg.ID); err != nil {
			return err
		}
		if err := tx.SetTopicLastMessage(ctx, topic.ID, msg.ID); err != nil {
			return err
		}
		if err := tx.AdjustBoardCounts(ctx, board.ID, 1, 1); err != nil {
			return err
		}
		return tx.SetBoardLastMessage(ctx, board.ID, msg.ID, msg.PostedAt)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return board, topic, msg
}

func TestNotConnected(t *testing.T) {
	s := New(nil)
	if _, err := s.GetBoard(context.Background(), 1); !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	err := s.Atomic(context.Background(), func(store.Tx) error { return nil })
	if !errors.Is(err, store.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectRequiresDB(t *testing.T) {
	s := New(nil)
	if err := s.Connect(context.Background()); err == nil {
		t.Error("expected error for nil db")
	}
	// A failed connect must leave the store reusable.
	if err := s.Connect(context.Background()); errors.Is(err, store.ErrAlreadyConnected) {
		t.Error("failed connect should reset connected state")
	}
}

func TestTopicRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	board, topic, msg := seedTopic(t, s)

	got, err := s.GetTopic(ctx, topic.ID)
	if err != nil {
		t.Fatalf("get topic: %v", err)
	}
	if got.BoardID != board.ID || got.FirstMessageID != msg.ID || got.LastMessageID != msg.ID {
		t.Errorf("unexpected topic: %+v", got)
	}

	topics, total, err := s.ListTopics(ctx, board.ID, store.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("list topics: %v", err)
	}
	if total != 1 || len(topics) != 1 {
		t.Errorf("expected 1 topic, got %d/%d", len(topics), total)
	}

	if _, err := s.GetTopic(ctx, topic.ID+1000); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAtomicRollback(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	board, _, _ := seedTopic(t, s)

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.AdjustBoardCounts(ctx, board.ID, 5, 5); err != nil {
			return err
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
	if b.NumTopics != 1 || b.NumPosts != 1 {
		t.Errorf("expected rollback, got topics=%d posts=%d", b.NumTopics, b.NumPosts)
	}
}

func TestReadLogsMonotonic(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	_, topic, _ := seedTopic(t, s)

	err := s.Atomic(ctx, func(tx store.Tx) error {
		if err := tx.UpsertReadLog(ctx, 1, topic.ID, 10); err != nil {
			return err
		}
		if err := tx.UpsertReadLog(ctx, 1, topic.ID, 4); err != nil {
			return err
		}
		return tx.UpsertReadLogs(ctx, 1, []store.ReadLog{
			{TopicID: topic.ID, MessageID: 3},
			{TopicID: topic.ID, MessageID: 8},
		})
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	logs, err := s.ReadLogs(ctx, 1, []int64{topic.ID})
	if err != nil {
		t.Fatalf("read logs: %v", err)
	}
	if logs[topic.ID] != 10 {
		t.Errorf("expected 10, got %d", logs[topic.ID])
	}
}

func TestDuplicateOpenReport(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	_, _, msg := seedTopic(t, s)

	insert := func() error {
		return s.Atomic(ctx, func(tx store.Tx) error {
			_, err := tx.InsertReport(ctx, &store.Report{MessageID: msg.ID, ReporterID: 2})
			return err
		})
	}
	if err := insert(); err != nil {
		t.Fatalf("first report: %v", err)
	}
	if err := insert(); !errors.Is(err, store.ErrDuplicateEntry) {
		t.Errorf("expected ErrDuplicateEntry, got %v", err)
	}
}

func TestBoardDrift(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	boardA, _, _ := seedTopic(t, s)
	_, _, msgB := seedTopic(t, s)

	err := s.Atomic(ctx, func(tx store.Tx) error {
		return tx.SetBoardLastMessage(ctx, boardA.ID, msgB.ID, time.Now())
	})
	if err != nil {
		t.Fatalf("simulate drift: %v", err)
	}

	ids, err := s.FindBoardDrift(ctx)
	if err != nil {
		t.Fatalf("find drift: %v", err)
	}
	if len(ids) != 1 || ids[0] != boardA.ID {
		t.Errorf("expected [%d], got %v", boardA.ID, ids)
	}

	totals, err := s.BoardTotals(ctx, boardA.ID)
	if err != nil {
		t.Fatalf("board totals: %v", err)
	}
	if totals.Topics != 1 || totals.Posts != 1 || totals.LastMessageID == msgB.ID {
		t.Errorf("unexpected totals: %+v", totals)
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, store.ErrNotFound},
		{"unique violation", &pq.Error{Code: codeUniqueViolation}, store.ErrDuplicateEntry},
		{"serialization failure", &pq.Error{Code: codeSerializationFailure}, store.ErrTransactionFailed},
		{"deadlock", &pq.Error{Code: codeDeadlockDetected}, store.ErrTransactionFailed},
		{"wrapped", fmt.Errorf("insert: %w", &pq.Error{Code: codeUniqueViolation}), store.ErrDuplicateEntry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mapError(tt.err); !errors.Is(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if mapError(nil) != nil {
		t.Error("expected nil for nil error")
	}
}
