// Package store provides interfaces and types for forum storage.
// Implementations are in the store/memory and store/postgres subpackages.
//
// # Architectural Principle: No Distributed Locks
//
// This package is designed to avoid distributed and in-process locks in the
// layers above it. All concurrency concerns are handled through:
//
//  1. Atomic Column Updates: counters are adjusted with a single statement
//     (UPDATE boards SET num_posts = num_posts + $1), never read-modify-write
//     in application code.
//
//  2. Idempotency via Unique Constraints: read logs, board marks and open
//     reports are keyed by unique indexes. Upserts use INSERT ON CONFLICT and
//     duplicate open reports surface ErrDuplicateEntry.
//
//  3. Transactional Batches: every multi-row mutation (create post, delete
//     post, move topic, vote) runs inside Atomic. Serialization failures
//     surface ErrTransactionFailed so callers can retry the whole unit.
//
//  4. Convergence: denormalized counters and last-message pointers are derived
//     state. FindTopicDrift and FindBoardDrift detect entities whose stored
//     values disagree with the authoritative message rows so they can be
//     recomputed in narrow transactions.
//
// Example - Reply:
//
//	err := s.Atomic(ctx, func(tx store.Tx) error {
//	    msg, err := tx.InsertMessage(ctx, m)
//	    if err != nil {
//	        return err
//	    }
//	    if err := tx.AdjustTopicReplies(ctx, msg.TopicID, 1); err != nil {
//	        return err
//	    }
//	    return tx.SetTopicLastMessage(ctx, msg.TopicID, msg.ID)
//	})
//
// Reads outside Atomic are not transactional and may observe counters that
// lag a concurrent writer's commit.
package store

import (
	"context"
	"time"
)

// Store is the storage interface for the forum.
//
// All operations must be safe for concurrent use. Implementations must use
// database-level atomicity (transactions, atomic updates) rather than
// external locking mechanisms. See package documentation for details.
type Store interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close(ctx context.Context) error

	Reader

	// Atomic runs fn inside a single transaction. If fn returns an error
	// nothing it wrote is kept. Implementations return ErrTransactionFailed
	// (wrapped) when the transaction could not commit for reasons that may
	// succeed on retry.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of the store inside Atomic.
type Tx interface {
	Reader
	Writer
}

// Reader provides read operations.
type Reader interface {
	BoardReader
	TopicReader
	ReadStateReader
	PollReader
	ReportReader
	MaintenanceReader
}

// BoardReader reads categories, boards and members.
type BoardReader interface {
	// ListCategories returns all categories ordered by their ordering key.
	ListCategories(ctx context.Context) ([]*Category, error)

	// ListBoards returns all boards ordered by category, ordering key and id.
	ListBoards(ctx context.Context) ([]*Board, error)

	// GetBoard retrieves a board by ID.
	// Returns ErrNotFound if the board doesn't exist.
	GetBoard(ctx context.Context, id int64) (*Board, error)

	// GetMember retrieves a member by ID.
	// Returns ErrNotFound if the member doesn't exist.
	GetMember(ctx context.Context, id int64) (*Member, error)
}

// TopicReader reads topics and messages.
type TopicReader interface {
	// GetTopic retrieves a topic by ID.
	// Returns ErrNotFound if the topic doesn't exist.
	GetTopic(ctx context.Context, id int64) (*Topic, error)

	// ListTopics returns a page of topics in a board, sticky topics first and
	// then by last message descending, together with the board's topic total.
	ListTopics(ctx context.Context, boardID int64, opts ListOptions) ([]*Topic, int64, error)

	// GetMessage retrieves a message by ID.
	// Returns ErrNotFound if the message doesn't exist.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// GetMessages retrieves the messages with the given ids. Missing ids are skipped.
	GetMessages(ctx context.Context, ids []int64) ([]*Message, error)

	// ListMessages returns a page of a topic's messages ordered by id, together
	// with the topic's message total.
	ListMessages(ctx context.Context, topicID int64, opts ListOptions, order SortOrder) ([]*Message, int64, error)

	// LatestMessages returns the newest approved messages across the given boards.
	LatestMessages(ctx context.Context, boardIDs []int64, opts ListOptions) ([]*Message, error)

	// TopicAuthors returns the number of messages each poster has in a topic.
	TopicAuthors(ctx context.Context, topicID int64) (map[int64]int64, error)
}

// ReadStateReader reads per-member read state.
type ReadStateReader interface {
	// TopicPointers returns the read-state projection of every topic in the boards.
	TopicPointers(ctx context.Context, boardIDs []int64) ([]TopicPointer, error)

	// ReadLogs returns topic id -> last read message id for a member.
	// A nil topicIDs slice returns every log the member has.
	ReadLogs(ctx context.Context, memberID int64, topicIDs []int64) (map[int64]int64, error)

	// BoardMarks returns board id -> marked message id for a member.
	BoardMarks(ctx context.Context, memberID int64) (map[int64]int64, error)
}

// PollReader reads polls and votes.
type PollReader interface {
	// GetPoll retrieves a poll by ID.
	// Returns ErrNotFound if the poll doesn't exist.
	GetPoll(ctx context.Context, id int64) (*Poll, error)

	// PollChoices returns the poll's choices ordered by choice id.
	PollChoices(ctx context.Context, pollID int64) ([]*PollChoice, error)

	// MemberVotes returns the choice ids a member voted for.
	MemberVotes(ctx context.Context, pollID, memberID int64) ([]int, error)

	// CountPollVotes returns the number of vote log rows for a poll.
	CountPollVotes(ctx context.Context, pollID int64) (int64, error)
}

// ReportReader reads moderation reports.
type ReportReader interface {
	// GetReport retrieves a report by ID.
	// Returns ErrNotFound if the report doesn't exist.
	GetReport(ctx context.Context, id int64) (*Report, error)

	// FindOpenReport returns the open report a member filed on a message.
	// Returns ErrNotFound if there is none.
	FindOpenReport(ctx context.Context, messageID, reporterID int64) (*Report, error)

	// ListReports returns reports newest first, together with the matching total.
	ListReports(ctx context.Context, status ReportStatus, opts ListOptions) ([]*Report, int64, error)
}

// MaintenanceReader provides the authoritative aggregates used to maintain and
// repair denormalized counters.
type MaintenanceReader interface {
	// TopicTotals counts a topic's messages and finds its newest approved message.
	TopicTotals(ctx context.Context, topicID int64) (TopicTotals, error)

	// BoardTotals counts a board's topics and messages and finds its newest approved message.
	BoardTotals(ctx context.Context, boardID int64) (BoardTotals, error)

	// FindTopicDrift returns ids of topics whose pointers or reply count
	// disagree with their messages.
	FindTopicDrift(ctx context.Context) ([]int64, error)

	// FindBoardDrift returns ids of boards whose pointer or counts disagree
	// with their topics and messages.
	FindBoardDrift(ctx context.Context) ([]int64, error)

	// ForumStats returns forum-wide counts.
	ForumStats(ctx context.Context) (ForumStats, error)
}

// Writer provides mutation operations. Writers are only reachable through
// Store.Atomic.
type Writer interface {
	BoardWriter
	TopicWriter
	CounterWriter
	ReadStateWriter
	PollWriter
	ReportWriter
}

// BoardWriter creates categories, boards and members.
type BoardWriter interface {
	// InsertCategory stores a category and assigns its ID.
	InsertCategory(ctx context.Context, c *Category) (*Category, error)

	// InsertBoard stores a board and assigns its ID. Counters start at zero.
	InsertBoard(ctx context.Context, b *Board) (*Board, error)

	// UpsertMember creates or replaces a member's group data.
	UpsertMember(ctx context.Context, m *Member) error

	// TouchActivity records the member's latest action (JSON-encoded).
	TouchActivity(ctx context.Context, memberID int64, action string, at time.Time) error
}

// TopicWriter creates, edits, moves and deletes topics and messages.
type TopicWriter interface {
	// InsertTopic stores a topic and assigns its ID.
	InsertTopic(ctx context.Context, t *Topic) (*Topic, error)

	// InsertMessage stores a message and assigns its ID. IDs increase monotonically.
	InsertMessage(ctx context.Context, m *Message) (*Message, error)

	// UpdateMessage replaces a message's subject and body.
	// Returns ErrNotFound if the message doesn't exist.
	UpdateMessage(ctx context.Context, id int64, u MessageUpdate, at time.Time) error

	// DeleteMessage removes a single message.
	// Returns ErrNotFound if the message doesn't exist.
	DeleteMessage(ctx context.Context, id int64) error

	// DeleteTopicMessages removes every message in a topic and returns how many were removed.
	DeleteTopicMessages(ctx context.Context, topicID int64) (int64, error)

	// DeleteTopic removes a topic row together with its read logs, poll and votes.
	// Returns ErrNotFound if the topic doesn't exist.
	DeleteTopic(ctx context.Context, topicID int64) error

	// MoveTopicMessages reassigns the board of every message in a topic and
	// returns how many were moved.
	MoveTopicMessages(ctx context.Context, topicID, boardID int64) (int64, error)

	// SetTopicBoard reassigns the topic row to a board.
	SetTopicBoard(ctx context.Context, topicID, boardID int64) error

	// SetTopicFlags updates the sticky and locked flags.
	SetTopicFlags(ctx context.Context, topicID int64, flags TopicFlags) error

	// IncrementTopicViews adds one to the topic's view counter.
	IncrementTopicViews(ctx context.Context, topicID int64) error
}

// CounterWriter maintains denormalized counters and pointers.
// Adjust methods are single atomic column updates.
type CounterWriter interface {
	SetTopicFirstMessage(ctx context.Context, topicID, messageID int64) error
	SetTopicLastMessage(ctx context.Context, topicID, messageID int64) error
	SetBoardLastMessage(ctx context.Context, boardID, messageID int64, at time.Time) error

	AdjustTopicReplies(ctx context.Context, topicID, delta int64) error
	AdjustBoardCounts(ctx context.Context, boardID, topics, posts int64) error
	AdjustMemberPosts(ctx context.Context, memberID, delta int64) error

	// Absolute setters used by repair.
	SetTopicReplies(ctx context.Context, topicID, replies int64) error
	SetBoardCounts(ctx context.Context, boardID, topics, posts int64) error
}

// ReadStateWriter maintains read logs and board marks.
type ReadStateWriter interface {
	// UpsertReadLog records messageID as read. The stored value never moves backwards.
	UpsertReadLog(ctx context.Context, memberID, topicID, messageID int64) error

	// UpsertReadLogs applies UpsertReadLog for each entry.
	UpsertReadLogs(ctx context.Context, memberID int64, logs []ReadLog) error

	// DeleteReadLogs removes the member's logs on topics in the board whose
	// message id is at most upTo, and returns how many were removed.
	DeleteReadLogs(ctx context.Context, memberID, boardID, upTo int64) (int64, error)

	// UpsertBoardMark records the board mark, replacing any previous mark.
	UpsertBoardMark(ctx context.Context, memberID, boardID, messageID int64) error
}

// PollWriter manages polls and votes.
type PollWriter interface {
	// InsertPoll stores a poll and its choices (choice ids start at 0) and assigns its ID.
	InsertPoll(ctx context.Context, p *Poll, choices []string) (*Poll, error)

	// SetTopicPoll attaches a poll to a topic.
	SetTopicPoll(ctx context.Context, topicID, pollID int64) error

	// SetPollLocked toggles the voting lock.
	SetPollLocked(ctx context.Context, pollID int64, locked bool) error

	// DeleteMemberVotes removes a member's vote log rows and returns the removed choice ids.
	DeleteMemberVotes(ctx context.Context, pollID, memberID int64) ([]int, error)

	// InsertVotes appends one vote log row per choice.
	InsertVotes(ctx context.Context, pollID, memberID int64, choiceIDs []int) error

	// AdjustChoiceVotes adds delta to the tally of each choice.
	AdjustChoiceVotes(ctx context.Context, pollID int64, choiceIDs []int, delta int64) error
}

// ReportWriter manages moderation reports.
type ReportWriter interface {
	// InsertReport stores an open report and assigns its ID.
	// Returns ErrDuplicateEntry if the reporter already has an open report on the message.
	InsertReport(ctx context.Context, r *Report) (*Report, error)

	// CloseReport closes an open report.
	// Returns ErrNotFound if the report doesn't exist and ErrAlreadyClosed if it is closed.
	CloseReport(ctx context.Context, id, closedBy int64, at time.Time) error
}
