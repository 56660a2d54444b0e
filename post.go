package forum

import (
	"context"
	"strings"

	"github.com/rbaliyan/forum/store"
)

// replyPrefix is prepended to the topic subject when a reply has none.
const replyPrefix = "Re: "

// postableBoard loads a board the member may post to.
func (f *memberForum) postableBoard(ctx context.Context, boardID int64, v viewer) (*store.Board, error) {
	b, err := f.board(ctx, boardID, v)
	if err != nil {
		return nil, err
	}
	if b.IsRedirect() {
		return nil, ErrRedirectBoard
	}
	return b, nil
}

// CreateTopic starts a topic in a board. The first message is marked read
// for its poster.
func (f *memberForum) CreateTopic(ctx context.Context, boardID int64, in PostInput) (_ *store.Topic, err error) {
	if err := f.checkMember(); err != nil {
		return nil, err
	}
	if err := ValidatePost(in, f.svc.opts.limits(), true); err != nil {
		return nil, err
	}
	ctx, done := f.svc.track(ctx, "forum.create_topic", f.attrs(boardAttr(boardID))...)
	defer func() { done(err) }()

	release, err := f.svc.acquireWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	v := f.viewer(ctx)
	if _, err := f.postableBoard(ctx, boardID, v); err != nil {
		return nil, f.svc.fail("create_topic", err, "board_id", boardID)
	}

	now := f.svc.now()
	name := f.svc.posterName(ctx, f.memberID)
	var topic *store.Topic
	var msg *store.Message
	err = f.svc.atomic(ctx, func(tx store.Tx) error {
		var err error
		topic, err = tx.InsertTopic(ctx, &store.Topic{BoardID: boardID, StarterID: f.memberID})
		if err != nil {
			return err
		}
		msg, err = tx.InsertMessage(ctx, &store.Message{
			TopicID:    topic.ID,
			BoardID:    boardID,
			PosterID:   f.memberID,
			PosterName: name,
			Subject:    strings.TrimSpace(in.Subject),
			Body:       in.Body,
			PostedAt:   now,
			Approved:   true,
		})
		if err != nil {
			return err
		}
		if err := f.svc.counters.onTopicCreated(ctx, tx, topic, msg); err != nil {
			return err
		}
		return tx.UpsertReadLog(ctx, f.memberID, topic.ID, msg.ID)
	})
	if err != nil {
		return nil, f.svc.fail("create_topic", err, "board_id", boardID, "member_id", f.memberID)
	}
	topic.FirstMessageID = msg.ID
	topic.LastMessageID = msg.ID

	f.svc.invalidate(ctx, f.memberID, PostCreated(topic.ID, boardID))
	f.svc.recordActivity(ctx, f.memberID, ActivityDescriptor{Action: ActionPost, BoardID: boardID, TopicID: topic.ID})
	f.svc.logger.Debug("topic created", "topic_id", topic.ID, "board_id", boardID, "member_id", f.memberID)

	err = publish(ctx, f.svc, "TopicCreated", topic.ID, f.svc.events.TopicCreated, TopicCreatedEvent{
		EventID:   newEventID(),
		TopicID:   topic.ID,
		BoardID:   boardID,
		MessageID: msg.ID,
		MemberID:  f.memberID,
		Subject:   msg.Subject,
		CreatedAt: now,
	})
	return topic, err
}

// CreatePost replies to a topic. Locked topics accept replies from
// moderators only.
func (f *memberForum) CreatePost(ctx context.Context, topicID int64, in PostInput) (_ *store.Message, err error) {
	if err := f.checkMember(); err != nil {
		return nil, err
	}
	if err := ValidatePost(in, f.svc.opts.limits(), false); err != nil {
		return nil, err
	}
	ctx, done := f.svc.track(ctx, "forum.create_post", f.attrs(topicAttr(topicID))...)
	defer func() { done(err) }()

	release, err := f.svc.acquireWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	v := f.viewer(ctx)
	topic, err := f.loadTopic(ctx, topicID, v)
	if err != nil {
		return nil, f.svc.fail("create_post", err, "topic_id", topicID)
	}
	if topic.Locked && !v.isModerator() {
		return nil, ErrTopicLocked
	}

	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject, err = f.replySubject(ctx, topic)
		if err != nil {
			return nil, f.svc.fail("create_post", err, "topic_id", topicID)
		}
	}

	now := f.svc.now()
	name := f.svc.posterName(ctx, f.memberID)
	var msg *store.Message
	err = f.svc.atomic(ctx, func(tx store.Tx) error {
		// Re-read inside the transaction; the topic may have moved or been locked.
		t, err := tx.GetTopic(ctx, topicID)
		if err != nil {
			return notFound(err, ErrTopicNotFound)
		}
		if t.Locked && !v.isModerator() {
			return ErrTopicLocked
		}
		msg, err = tx.InsertMessage(ctx, &store.Message{
			TopicID:    t.ID,
			BoardID:    t.BoardID,
			PosterID:   f.memberID,
			PosterName: name,
			Subject:    subject,
			Body:       in.Body,
			PostedAt:   now,
			Approved:   true,
		})
		if err != nil {
			return err
		}
		if err := f.svc.counters.onMessageCreated(ctx, tx, msg); err != nil {
			return err
		}
		return tx.UpsertReadLog(ctx, f.memberID, t.ID, msg.ID)
	})
	if err != nil {
		return nil, f.svc.fail("create_post", err, "topic_id", topicID, "member_id", f.memberID)
	}

	f.svc.invalidate(ctx, f.memberID, PostCreated(msg.TopicID, msg.BoardID))
	f.svc.recordActivity(ctx, f.memberID, ActivityDescriptor{Action: ActionPost, BoardID: msg.BoardID, TopicID: msg.TopicID})

	err = publish(ctx, f.svc, "PostCreated", msg.ID, f.svc.events.PostCreated, PostCreatedEvent{
		EventID:   newEventID(),
		MessageID: msg.ID,
		TopicID:   msg.TopicID,
		BoardID:   msg.BoardID,
		MemberID:  f.memberID,
		PostedAt:  now,
	})
	return msg, err
}

// replySubject derives a reply subject from the topic's first message.
func (f *memberForum) replySubject(ctx context.Context, topic *store.Topic) (string, error) {
	first, err := f.svc.store.GetMessage(ctx, topic.FirstMessageID)
	if err != nil {
		return "", notFound(err, ErrTopicNotFound)
	}
	if strings.HasPrefix(first.Subject, replyPrefix) {
		return first.Subject, nil
	}
	subject := replyPrefix + first.Subject
	if r := []rune(subject); len(r) > f.svc.opts.maxSubjectLength {
		subject = string(r[:f.svc.opts.maxSubjectLength])
	}
	return subject, nil
}

// editableMessage loads a message the member may edit or delete: their own,
// or any message for a moderator. Locked topics are moderator only.
func (f *memberForum) editableMessage(ctx context.Context, messageID int64, v viewer) (*store.Message, *store.Topic, error) {
	msg, err := f.svc.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, nil, notFound(err, ErrMessageNotFound)
	}
	topic, err := f.loadTopic(ctx, msg.TopicID, v)
	if err != nil {
		return nil, nil, err
	}
	if msg.PosterID != f.memberID && !v.isModerator() {
		return nil, nil, ErrNotOwner
	}
	if topic.Locked && !v.isModerator() {
		return nil, nil, ErrTopicLocked
	}
	return msg, topic, nil
}

// UpdatePost edits a message's subject and body. An empty subject keeps the
// current one.
func (f *memberForum) UpdatePost(ctx context.Context, messageID int64, in PostInput) (_ *store.Message, err error) {
	if err := f.checkMember(); err != nil {
		return nil, err
	}
	if err := ValidatePost(in, f.svc.opts.limits(), false); err != nil {
		return nil, err
	}
	ctx, done := f.svc.track(ctx, "forum.update_post", f.attrs(messageAttr(messageID))...)
	defer func() { done(err) }()

	release, err := f.svc.acquireWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	v := f.viewer(ctx)
	msg, topic, err := f.editableMessage(ctx, messageID, v)
	if err != nil {
		return nil, f.svc.fail("update_post", err, "message_id", messageID)
	}

	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		subject = msg.Subject
	}
	now := f.svc.now()
	update := store.MessageUpdate{
		Subject:    subject,
		Body:       in.Body,
		ModifiedBy: f.svc.posterName(ctx, f.memberID),
	}
	err = f.svc.atomic(ctx, func(tx store.Tx) error {
		return notFound(tx.UpdateMessage(ctx, messageID, update, now), ErrMessageNotFound)
	})
	if err != nil {
		return nil, f.svc.fail("update_post", err, "message_id", messageID)
	}

	f.svc.invalidate(ctx, f.memberID, PostChanged(topic.ID, topic.BoardID))

	updated, err := f.svc.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, f.svc.fail("update_post", notFound(err, ErrMessageNotFound), "message_id", messageID)
	}
	err = publish(ctx, f.svc, "PostUpdated", messageID, f.svc.events.PostUpdated, PostUpdatedEvent{
		EventID:   newEventID(),
		MessageID: messageID,
		TopicID:   topic.ID,
		MemberID:  f.memberID,
		UpdatedAt: now,
	})
	return updated, err
}

// DeletePost removes a message. Deleting a topic's first message removes
// the whole topic.
func (f *memberForum) DeletePost(ctx context.Context, messageID int64) (err error) {
	if err := f.checkMember(); err != nil {
		return err
	}
	ctx, done := f.svc.track(ctx, "forum.delete_post", f.attrs(messageAttr(messageID))...)
	defer func() { done(err) }()

	release, err := f.svc.acquireWrite(ctx)
	if err != nil {
		return err
	}
	defer release()

	v := f.viewer(ctx)
	msg, topic, err := f.editableMessage(ctx, messageID, v)
	if err != nil {
		return f.svc.fail("delete_post", err, "message_id", messageID)
	}
	if msg.ID == topic.FirstMessageID {
		return f.deleteTopic(ctx, topic)
	}

	now := f.svc.now()
	err = f.svc.atomic(ctx, func(tx store.Tx) error {
		t, err := tx.GetTopic(ctx, msg.TopicID)
		if err != nil {
			return notFound(err, ErrTopicNotFound)
		}
		m, err := tx.GetMessage(ctx, messageID)
		if err != nil {
			return notFound(err, ErrMessageNotFound)
		}
		if err := tx.DeleteMessage(ctx, messageID); err != nil {
			return notFound(err, ErrMessageNotFound)
		}
		return f.svc.counters.onMessageDeleted(ctx, tx, t, m)
	})
	if err != nil {
		return f.svc.fail("delete_post", err, "message_id", messageID)
	}

	f.svc.invalidate(ctx, f.memberID, PostChanged(topic.ID, topic.BoardID))
	return publish(ctx, f.svc, "PostDeleted", messageID, f.svc.events.PostDeleted, PostDeletedEvent{
		EventID:   newEventID(),
		MessageID: messageID,
		TopicID:   topic.ID,
		BoardID:   topic.BoardID,
		MemberID:  f.memberID,
		DeletedAt: now,
	})
}

func (f *memberForum) deleteTopic(ctx context.Context, topic *store.Topic) error {
	now := f.svc.now()
	var removed int64
	var boardID int64
	err := f.svc.atomic(ctx, func(tx store.Tx) error {
		t, err := tx.GetTopic(ctx, topic.ID)
		if err != nil {
			return notFound(err, ErrTopicNotFound)
		}
		boardID = t.BoardID
		removed, err = f.svc.counters.onTopicDeleted(ctx, tx, t)
		return err
	})
	if err != nil {
		return f.svc.fail("delete_topic", err, "topic_id", topic.ID)
	}

	f.svc.invalidate(ctx, f.memberID, TopicDeleted(topic.ID, boardID))
	f.svc.logger.Info("topic deleted", "topic_id", topic.ID, "board_id", boardID, "messages", removed, "member_id", f.memberID)
	return publish(ctx, f.svc, "TopicDeleted", topic.ID, f.svc.events.TopicDeleted, TopicDeletedEvent{
		EventID:   newEventID(),
		TopicID:   topic.ID,
		BoardID:   boardID,
		Messages:  removed,
		MemberID:  f.memberID,
		DeletedAt: now,
	})
}

// MoveTopic moves a topic and its messages to another board. Moderators only.
func (f *memberForum) MoveTopic(ctx context.Context, topicID, boardID int64) (err error) {
	if err := f.checkMember(); err != nil {
		return err
	}
	ctx, done := f.svc.track(ctx, "forum.move_topic", f.attrs(topicAttr(topicID), boardAttr(boardID))...)
	defer func() { done(err) }()

	if err := f.requireModerator(ctx); err != nil {
		return err
	}
	release, err := f.svc.acquireWrite(ctx)
	if err != nil {
		return err
	}
	defer release()

	v := f.viewer(ctx)
	topic, err := f.loadTopic(ctx, topicID, v)
	if err != nil {
		return f.svc.fail("move_topic", err, "topic_id", topicID)
	}
	if _, err := f.postableBoard(ctx, boardID, v); err != nil {
		return f.svc.fail("move_topic", err, "board_id", boardID)
	}
	if topic.BoardID == boardID {
		return nil
	}

	now := f.svc.now()
	var from int64
	err = f.svc.atomic(ctx, func(tx store.Tx) error {
		t, err := tx.GetTopic(ctx, topicID)
		if err != nil {
			return notFound(err, ErrTopicNotFound)
		}
		from = t.BoardID
		if from == boardID {
			return nil
		}
		return f.svc.counters.onTopicMoved(ctx, tx, t, boardID)
	})
	if err != nil {
		return f.svc.fail("move_topic", err, "topic_id", topicID, "board_id", boardID)
	}
	if from == boardID {
		return nil
	}

	f.svc.invalidate(ctx, f.memberID, PostMoved(topicID, from, boardID))
	return publish(ctx, f.svc, "TopicMoved", topicID, f.svc.events.TopicMoved, TopicMovedEvent{
		EventID:     newEventID(),
		TopicID:     topicID,
		FromBoardID: from,
		ToBoardID:   boardID,
		MemberID:    f.memberID,
		MovedAt:     now,
	})
}

// LockTopic locks or unlocks a topic. Allowed for the starter and moderators.
func (f *memberForum) LockTopic(ctx context.Context, topicID int64, locked bool) (err error) {
	if err := f.checkMember(); err != nil {
		return err
	}
	ctx, done := f.svc.track(ctx, "forum.lock_topic", f.attrs(topicAttr(topicID))...)
	defer func() { done(err) }()

	v := f.viewer(ctx)
	topic, err := f.loadTopic(ctx, topicID, v)
	if err != nil {
		return f.svc.fail("lock_topic", err, "topic_id", topicID)
	}
	if topic.StarterID != f.memberID && !v.isModerator() {
		return ErrNotOwner
	}
	return f.setFlags(ctx, "lock_topic", topic, store.TopicFlags{Locked: &locked})
}

// StickyTopic pins or unpins a topic. Moderators only.
func (f *memberForum) StickyTopic(ctx context.Context, topicID int64, sticky bool) (err error) {
	if err := f.checkMember(); err != nil {
		return err
	}
	ctx, done := f.svc.track(ctx, "forum.sticky_topic", f.attrs(topicAttr(topicID))...)
	defer func() { done(err) }()

	if err := f.requireModerator(ctx); err != nil {
		return err
	}
	topic, err := f.loadTopic(ctx, topicID, f.viewer(ctx))
	if err != nil {
		return f.svc.fail("sticky_topic", err, "topic_id", topicID)
	}
	return f.setFlags(ctx, "sticky_topic", topic, store.TopicFlags{Sticky: &sticky})
}

func (f *memberForum) setFlags(ctx context.Context, op string, topic *store.Topic, flags store.TopicFlags) error {
	release, err := f.svc.acquireWrite(ctx)
	if err != nil {
		return err
	}
	defer release()

	var updated *store.Topic
	err = f.svc.atomic(ctx, func(tx store.Tx) error {
		if err := tx.SetTopicFlags(ctx, topic.ID, flags); err != nil {
			return notFound(err, ErrTopicNotFound)
		}
		var err error
		updated, err = tx.GetTopic(ctx, topic.ID)
		return err
	})
	if err != nil {
		return f.svc.fail(op, err, "topic_id", topic.ID)
	}

	f.svc.invalidate(ctx, f.memberID, PostChanged(updated.ID, updated.BoardID))
	return publish(ctx, f.svc, "TopicUpdated", updated.ID, f.svc.events.TopicUpdated, TopicUpdatedEvent{
		EventID:   newEventID(),
		TopicID:   updated.ID,
		Sticky:    updated.Sticky,
		Locked:    updated.Locked,
		MemberID:  f.memberID,
		UpdatedAt: f.svc.now(),
	})
}
