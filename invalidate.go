package forum

import "context"

// CacheEventKind names a mutation that invalidates cached views.
type CacheEventKind int

const (
	CachePostCreated CacheEventKind = iota + 1
	CachePostChanged
	CacheTopicDeleted
	CachePostMoved
	CacheReadStateChanged
)

// CacheEvent describes a mutation for invalidation purposes.
type CacheEvent struct {
	Kind     CacheEventKind
	TopicID  int64
	BoardID  int64
	TargetID int64   // destination board of a move
	MemberID int64   // member whose read state changed
	Boards   []int64 // boards whose read state changed
}

// PostCreated is raised when a topic or reply is created.
func PostCreated(topicID, boardID int64) CacheEvent {
	return CacheEvent{Kind: CachePostCreated, TopicID: topicID, BoardID: boardID}
}

// PostChanged is raised when a post is edited or deleted, or a topic's flags
// or poll change.
func PostChanged(topicID, boardID int64) CacheEvent {
	return CacheEvent{Kind: CachePostChanged, TopicID: topicID, BoardID: boardID}
}

// TopicDeleted is raised when a whole topic is removed.
func TopicDeleted(topicID, boardID int64) CacheEvent {
	return CacheEvent{Kind: CacheTopicDeleted, TopicID: topicID, BoardID: boardID}
}

// PostMoved is raised when a topic moves from srcBoardID to dstBoardID.
func PostMoved(topicID, srcBoardID, dstBoardID int64) CacheEvent {
	return CacheEvent{Kind: CachePostMoved, TopicID: topicID, BoardID: srcBoardID, TargetID: dstBoardID}
}

// ReadStateChanged is raised when a member's read state changes in the given
// boards. With no boards only the member's category listing is dropped.
func ReadStateChanged(memberID int64, boardIDs ...int64) CacheEvent {
	return CacheEvent{Kind: CacheReadStateChanged, MemberID: memberID, Boards: boardIDs}
}

// cacheInvalidator maps mutations to the exact keys they make stale.
type cacheInvalidator struct {
	keys keySpace
}

// Keys returns the keys to drop for an event performed by actorID.
// Shared entries are dropped for content mutations; read-state changes only
// touch the member's own entries.
func (inv cacheInvalidator) Keys(ev CacheEvent, actorID int64) []string {
	if ev.Kind == CacheReadStateChanged {
		if ev.MemberID == 0 {
			return nil
		}
		keys := []string{categoriesKey(ev.MemberID)}
		for _, b := range ev.Boards {
			keys = append(keys, inv.keys.boardPages(b, ev.MemberID)...)
		}
		return keys
	}

	keys := []string{keyCategoriesPublic}
	boards := []int64{ev.BoardID}
	if ev.Kind == CachePostMoved {
		boards = append(boards, ev.TargetID)
	}
	for _, b := range boards {
		keys = append(keys, inv.keys.boardPages(b, 0)...)
		if actorID != 0 {
			keys = append(keys, inv.keys.boardPages(b, actorID)...)
		}
	}
	if actorID != 0 {
		keys = append(keys, categoriesKey(actorID))
	}
	keys = append(keys, inv.keys.topicPages(ev.TopicID)...)
	return append(keys, inv.keys.latest()...)
}

// invalidate drops the keys of each event. Failures are logged by the cache layer.
func (s *service) invalidate(ctx context.Context, actorID int64, events ...CacheEvent) {
	if s.cache == nil {
		return
	}
	var keys []string
	for _, ev := range events {
		keys = append(keys, s.invalidator.Keys(ev, actorID)...)
	}
	s.cache.delete(ctx, keys...)
}
