package forum

import (
	"context"

	"github.com/rbaliyan/forum/store"
)

// Type aliases for commonly used store types.
// These allow users to work with the forum package without importing store directly.
type (
	SortOrder    = store.SortOrder
	ReportStatus = store.ReportStatus
)

// Re-exported constants.
const (
	SortAsc  = store.SortAsc
	SortDesc = store.SortDesc

	ReportStatusAny    = store.ReportStatusAny
	ReportStatusOpen   = store.ReportStatusOpen
	ReportStatusClosed = store.ReportStatusClosed
)

// Service manages the forum (server-side).
// It handles connections to storage and creates per-member clients.
type Service interface {
	// IsConnected returns true if the service is connected and ready.
	IsConnected() bool

	// Connect establishes connections to storage backends.
	Connect(ctx context.Context) error
	// Close waits for in-flight writes and closes all connections.
	Close(ctx context.Context) error
	// Client returns a forum client acting as the given member. Member 0 is a guest.
	// Connection state is checked lazily on each operation; if the service
	// is not connected, operations will return ErrNotConnected.
	Client(memberID int64) Forum
	// RepairPointers recomputes topic and board counters and last-message
	// pointers that disagree with the message rows. Safe to run repeatedly
	// and concurrently with normal traffic.
	RepairPointers(ctx context.Context) (*RepairResult, error)
	// Stats returns forum-wide counts, cached for the stats TTL.
	Stats(ctx context.Context) (*store.ForumStats, error)
	// Events returns per-service event instances for subscribing and publishing.
	Events() *ServiceEvents

	// CreateCategory adds a category to the index.
	CreateCategory(ctx context.Context, c store.Category) (*store.Category, error)
	// CreateBoard adds a board to a category, optionally under a parent board.
	CreateBoard(ctx context.Context, b store.Board) (*store.Board, error)
	// SyncMember stores the group membership of a member managed by the
	// identity collaborator.
	SyncMember(ctx context.Context, m store.Member) error
}

// BoardReader provides the board index and board pages.
type BoardReader interface {
	// Categories returns the board tree the member may see, with last-message
	// previews and, for members, unread flags.
	Categories(ctx context.Context) ([]*CategoryView, error)
	// Board returns a page of a board's topics, sticky topics first.
	Board(ctx context.Context, boardID int64, page, pageSize int) (*BoardPage, error)
	// CanAccess reports whether the member may enter the board.
	CanAccess(ctx context.Context, boardID int64) bool
	// LatestMessages returns the newest messages across the boards the member may see.
	LatestMessages(ctx context.Context, limit, offset int) ([]*MessagePreview, error)
}

// TopicReader provides topic pages.
type TopicReader interface {
	// Topic returns a page of a topic's messages and marks the last message
	// on the page as read for the member.
	Topic(ctx context.Context, topicID int64, q TopicQuery) (*TopicPage, error)
}

// PostWriter creates, edits and deletes posts.
type PostWriter interface {
	CreateTopic(ctx context.Context, boardID int64, in PostInput) (*store.Topic, error)
	CreatePost(ctx context.Context, topicID int64, in PostInput) (*store.Message, error)
	UpdatePost(ctx context.Context, messageID int64, in PostInput) (*store.Message, error)
	// DeletePost removes a message. Deleting a topic's first message deletes the topic.
	DeletePost(ctx context.Context, messageID int64) error
}

// TopicModerator changes where a topic lives and how it behaves.
type TopicModerator interface {
	MoveTopic(ctx context.Context, topicID, boardID int64) error
	LockTopic(ctx context.Context, topicID int64, locked bool) error
	StickyTopic(ctx context.Context, topicID int64, sticky bool) error
}

// PollClient provides poll operations.
type PollClient interface {
	Poll(ctx context.Context, pollID int64) (*PollView, error)
	Vote(ctx context.Context, pollID int64, choiceIDs []int) (*PollView, error)
	CreatePoll(ctx context.Context, spec PollSpec) (int64, error)
	LockVoting(ctx context.Context, pollID int64, locked bool) error
}

// ReportClient provides message reporting and the moderation queue.
type ReportClient interface {
	Report(ctx context.Context, messageID int64, comment string) (*store.Report, error)
	ListReports(ctx context.Context, q ReportQuery) (*ReportList, error)
	CloseReport(ctx context.Context, reportID int64) error
}

// ReadStateClient provides read tracking.
type ReadStateClient interface {
	MarkTopicRead(ctx context.Context, topicID int64) error
	MarkBoardRead(ctx context.Context, boardID int64) error
	MarkAllRead(ctx context.Context) error
	UnreadTopics(ctx context.Context, page, pageSize int) (*TopicList, error)
	UnreadCount(ctx context.Context) (int, error)
}

// Forum is the forum as seen by one member (or a guest).
//
// Composed of focused client interfaces:
//   - BoardReader: Board index, board pages, latest activity
//   - TopicReader: Topic pages
//   - PostWriter: Create, edit and delete posts
//   - TopicModerator: Move, lock and stick topics
//   - PollClient: Polls and voting
//   - ReportClient: Reporting and the moderation queue
//   - ReadStateClient: Mark-read and unread tracking
//
// For applications needing only a subset of functionality, use the focused
// interfaces directly.
type Forum interface {
	MemberID() int64
	BoardReader
	TopicReader
	PostWriter
	TopicModerator
	PollClient
	ReportClient
	ReadStateClient
}
