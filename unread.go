package forum

import (
	"context"

	"github.com/rbaliyan/forum/store"
)

// MarkTopicRead marks every current message of the topic as read.
func (f *memberForum) MarkTopicRead(ctx context.Context, topicID int64) (err error) {
	if err := f.checkMember(); err != nil {
		return err
	}
	ctx, done := f.svc.track(ctx, "forum.mark_topic_read", f.attrs(topicAttr(topicID))...)
	defer func() { done(err) }()

	topic, err := f.loadTopic(ctx, topicID, f.viewer(ctx))
	if err != nil {
		return f.svc.fail("mark_topic_read", err, "topic_id", topicID)
	}
	if err := f.svc.tracker.markTopicRead(ctx, f.memberID, topic.ID, topic.LastMessageID); err != nil {
		return f.svc.fail("mark_topic_read", err, "topic_id", topicID, "member_id", f.memberID)
	}
	f.svc.invalidate(ctx, f.memberID, ReadStateChanged(f.memberID, topic.BoardID))
	return nil
}

// MarkBoardRead marks every topic in the board as read up to the board's
// current last message.
func (f *memberForum) MarkBoardRead(ctx context.Context, boardID int64) (err error) {
	if err := f.checkMember(); err != nil {
		return err
	}
	ctx, done := f.svc.track(ctx, "forum.mark_board_read", f.attrs(boardAttr(boardID))...)
	defer func() { done(err) }()

	if _, err := f.postableBoard(ctx, boardID, f.viewer(ctx)); err != nil {
		return f.svc.fail("mark_board_read", err, "board_id", boardID)
	}
	if err := f.svc.tracker.markBoardRead(ctx, f.memberID, boardID); err != nil {
		return f.svc.fail("mark_board_read", err, "board_id", boardID, "member_id", f.memberID)
	}
	f.svc.invalidate(ctx, f.memberID, ReadStateChanged(f.memberID, boardID))
	return nil
}

// MarkAllRead marks every topic the member can see as read.
func (f *memberForum) MarkAllRead(ctx context.Context) (err error) {
	if err := f.checkMember(); err != nil {
		return err
	}
	ctx, done := f.svc.track(ctx, "forum.mark_all_read", f.attrs()...)
	defer func() { done(err) }()

	boards, err := f.visibleBoards(ctx, f.viewer(ctx))
	if err != nil {
		return f.svc.fail("mark_all_read", err, "member_id", f.memberID)
	}
	ids := postableBoardIDs(boards)
	if err := f.svc.tracker.markAllRead(ctx, f.memberID, ids); err != nil {
		return f.svc.fail("mark_all_read", err, "member_id", f.memberID)
	}
	f.svc.invalidate(ctx, f.memberID, ReadStateChanged(f.memberID, ids...))
	return nil
}

// unreadPointers returns the member's unread topics in visible boards,
// newest first.
func (f *memberForum) unreadPointers(ctx context.Context) ([]store.TopicPointer, error) {
	boards, err := f.visibleBoards(ctx, f.viewer(ctx))
	if err != nil {
		return nil, err
	}
	return f.svc.tracker.unread(ctx, f.memberID, postableBoardIDs(boards))
}

// UnreadTopics returns a page of the member's unread topics, most recently
// active first. Guests have none.
func (f *memberForum) UnreadTopics(ctx context.Context, page, pageSize int) (_ *TopicList, err error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	ctx, done := f.svc.track(ctx, "forum.unread_topics", f.attrs()...)
	defer func() { done(err) }()

	page, pageSize = f.svc.opts.page(page, pageSize)
	list := &TopicList{Topics: []*TopicSummary{}, Page: page, PageSize: pageSize}
	if f.memberID == 0 {
		return list, nil
	}

	pointers, err := f.unreadPointers(ctx)
	if err != nil {
		return nil, f.svc.fail("unread_topics", err, "member_id", f.memberID)
	}
	list.Total = int64(len(pointers))

	start := min(pageOptions(page, pageSize).Offset, len(pointers))
	end := min(start+pageSize, len(pointers))
	topics := make([]*store.Topic, 0, end-start)
	for _, p := range pointers[start:end] {
		t, err := f.svc.store.GetTopic(ctx, p.TopicID)
		if store.IsNotFound(err) {
			// Deleted since the pointers were read.
			continue
		}
		if err != nil {
			return nil, f.svc.fail("unread_topics", err, "topic_id", p.TopicID)
		}
		topics = append(topics, t)
	}
	if list.Topics, err = f.summaries(ctx, topics); err != nil {
		return nil, f.svc.fail("unread_topics", err, "member_id", f.memberID)
	}
	return list, nil
}

// UnreadCount returns the number of unread topics. Guests have none.
func (f *memberForum) UnreadCount(ctx context.Context) (_ int, err error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	if f.memberID == 0 {
		return 0, nil
	}
	ctx, done := f.svc.track(ctx, "forum.unread_count", f.attrs()...)
	defer func() { done(err) }()

	pointers, err := f.unreadPointers(ctx)
	if err != nil {
		return 0, f.svc.fail("unread_count", err, "member_id", f.memberID)
	}
	return len(pointers), nil
}
