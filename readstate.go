package forum

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/rbaliyan/forum/store"
	"golang.org/x/sync/errgroup"
)

// ReadState is the verdict of a read-state source for one topic.
type ReadState int

const (
	// ReadStateUnknown means the source has no opinion.
	ReadStateUnknown ReadState = iota
	ReadStateRead
	ReadStateUnread
)

func (s ReadState) String() string {
	switch s {
	case ReadStateRead:
		return "read"
	case ReadStateUnread:
		return "unread"
	default:
		return "unknown"
	}
}

// ReadStateSource decides the read state of a topic from one kind of record.
type ReadStateSource interface {
	Resolve(p store.TopicPointer) ReadState
}

// TopicLogSource resolves read state from per-topic read logs
// (topic id -> last read message id). A log entry is authoritative for its
// topic: an older entry is Unread even if a board mark would cover the topic.
type TopicLogSource map[int64]int64

func (s TopicLogSource) Resolve(p store.TopicPointer) ReadState {
	read, ok := s[p.TopicID]
	if !ok {
		return ReadStateUnknown
	}
	if p.LastMessageID <= read {
		return ReadStateRead
	}
	return ReadStateUnread
}

// BoardMarkSource resolves read state from board marks
// (board id -> marked message id).
type BoardMarkSource map[int64]int64

func (s BoardMarkSource) Resolve(p store.TopicPointer) ReadState {
	if mark, ok := s[p.BoardID]; ok && p.LastMessageID <= mark {
		return ReadStateRead
	}
	return ReadStateUnknown
}

// ReadResolver combines sources in precedence order. The first source with an
// opinion wins; a topic no source knows about is unread.
type ReadResolver []ReadStateSource

// NewReadResolver returns the standard resolver: topic logs, then board marks.
func NewReadResolver(topicLogs, boardMarks map[int64]int64) ReadResolver {
	return ReadResolver{TopicLogSource(topicLogs), BoardMarkSource(boardMarks)}
}

func (r ReadResolver) Resolve(p store.TopicPointer) ReadState {
	for _, src := range r {
		if st := src.Resolve(p); st != ReadStateUnknown {
			return st
		}
	}
	return ReadStateUnread
}

// IsUnread reports whether the topic is unread given the member's read logs
// and board marks.
func IsUnread(p store.TopicPointer, topicLogs, boardMarks map[int64]int64) bool {
	return NewReadResolver(topicLogs, boardMarks).Resolve(p) == ReadStateUnread
}

type atomicFunc func(ctx context.Context, fn func(tx store.Tx) error) error

// readTracker computes unread state and applies mark-read operations.
type readTracker struct {
	reader store.Reader
	atomic atomicFunc
	logger *slog.Logger
}

// resolver loads the member's read records for the given topics (nil = all).
func (r *readTracker) resolver(ctx context.Context, memberID int64, topicIDs []int64) (ReadResolver, error) {
	var logs, marks map[int64]int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		logs, err = r.reader.ReadLogs(gctx, memberID, topicIDs)
		return err
	})
	g.Go(func() error {
		var err error
		marks, err = r.reader.BoardMarks(gctx, memberID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewReadResolver(logs, marks), nil
}

// unread returns the member's unread topics in the boards, newest first.
func (r *readTracker) unread(ctx context.Context, memberID int64, boardIDs []int64) ([]store.TopicPointer, error) {
	if memberID == 0 || len(boardIDs) == 0 {
		return nil, nil
	}

	var pointers []store.TopicPointer
	var res ReadResolver
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pointers, err = r.reader.TopicPointers(gctx, boardIDs)
		return err
	})
	g.Go(func() error {
		var err error
		res, err = r.resolver(gctx, memberID, nil)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []store.TopicPointer
	for _, p := range pointers {
		if res.Resolve(p) == ReadStateUnread {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b store.TopicPointer) int {
		return cmp.Compare(b.LastMessageID, a.LastMessageID)
	})
	return out, nil
}

// markTopicRead records messageID as read. The log never moves backwards.
func (r *readTracker) markTopicRead(ctx context.Context, memberID, topicID, messageID int64) error {
	return r.atomic(ctx, func(tx store.Tx) error {
		return tx.UpsertReadLog(ctx, memberID, topicID, messageID)
	})
}

// markBoardRead records a board mark at the board's last message and drops
// the topic logs the mark now covers, so the mark decides those topics.
func (r *readTracker) markBoardRead(ctx context.Context, memberID, boardID int64) error {
	return r.atomic(ctx, func(tx store.Tx) error {
		b, err := tx.GetBoard(ctx, boardID)
		if err != nil {
			return notFound(err, ErrBoardNotFound)
		}
		if err := tx.UpsertBoardMark(ctx, memberID, boardID, b.LastMessageID); err != nil {
			return err
		}
		n, err := tx.DeleteReadLogs(ctx, memberID, boardID, b.LastMessageID)
		if err != nil {
			return err
		}
		r.logger.Debug("board marked read",
			"member_id", memberID, "board_id", boardID, "message_id", b.LastMessageID, "logs_removed", n)
		return nil
	})
}

// markAllRead writes a read log at the current last message of every topic in
// the boards.
func (r *readTracker) markAllRead(ctx context.Context, memberID int64, boardIDs []int64) error {
	if len(boardIDs) == 0 {
		return nil
	}
	return r.atomic(ctx, func(tx store.Tx) error {
		pointers, err := tx.TopicPointers(ctx, boardIDs)
		if err != nil {
			return err
		}
		logs := make([]store.ReadLog, 0, len(pointers))
		for _, p := range pointers {
			logs = append(logs, store.ReadLog{MemberID: memberID, TopicID: p.TopicID, MessageID: p.LastMessageID})
		}
		return tx.UpsertReadLogs(ctx, memberID, logs)
	})
}
