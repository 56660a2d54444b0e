package memory

import (
	"context"
	"time"

	"github.com/rbaliyan/forum/store"
)

// tx mutates a private working copy of the state.
type tx struct {
	reader
	st *state
}

// =============================================================================
// Boards and members
// =============================================================================

func (t *tx) InsertCategory(_ context.Context, c *store.Category) (*store.Category, error) {
	t.st.seq.category++
	cp := *c
	cp.ID = t.st.seq.category
	t.st.categories[cp.ID] = cp
	return &cp, nil
}

func (t *tx) InsertBoard(_ context.Context, b *store.Board) (*store.Board, error) {
	if b.CategoryID > 0 {
		if _, ok := t.st.categories[b.CategoryID]; !ok {
			return nil, store.ErrNotFound
		}
	}
	t.st.seq.board++
	cp := *b
	cp.ID = t.st.seq.board
	cp.NumTopics, cp.NumPosts, cp.LastMessageID = 0, 0, 0
	t.st.boards[cp.ID] = cp
	return &cp, nil
}

func (t *tx) UpsertMember(_ context.Context, m *store.Member) error {
	if m.ID <= 0 {
		return store.ErrInvalidID
	}
	cp := *m
	if existing, ok := t.st.members[m.ID]; ok {
		cp.Posts = existing.Posts
	}
	t.st.members[cp.ID] = cp
	return nil
}

func (t *tx) TouchActivity(_ context.Context, memberID int64, action string, at time.Time) error {
	t.st.activity[memberID] = activity{action: action, at: at}
	return nil
}

// =============================================================================
// Topics and messages
// =============================================================================

func (t *tx) InsertTopic(_ context.Context, tp *store.Topic) (*store.Topic, error) {
	if _, ok := t.st.boards[tp.BoardID]; !ok {
		return nil, store.ErrNotFound
	}
	t.st.seq.topic++
	cp := *tp
	cp.ID = t.st.seq.topic
	t.st.topics[cp.ID] = cp
	return &cp, nil
}

func (t *tx) InsertMessage(_ context.Context, m *store.Message) (*store.Message, error) {
	if _, ok := t.st.topics[m.TopicID]; !ok {
		return nil, store.ErrNotFound
	}
	t.st.seq.message++
	cp := *m
	cp.ID = t.st.seq.message
	if cp.PostedAt.IsZero() {
		cp.PostedAt = time.Now().UTC()
	}
	t.st.messages[cp.ID] = cp
	return &cp, nil
}

func (t *tx) UpdateMessage(_ context.Context, id int64, u store.MessageUpdate, at time.Time) error {
	m, ok := t.st.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Subject = u.Subject
	m.Body = u.Body
	m.ModifiedBy = u.ModifiedBy
	m.ModifiedAt = &at
	t.st.messages[id] = m
	return nil
}

func (t *tx) DeleteMessage(_ context.Context, id int64) error {
	if _, ok := t.st.messages[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.st.messages, id)
	return nil
}

func (t *tx) DeleteTopicMessages(_ context.Context, topicID int64) (int64, error) {
	var n int64
	for id, m := range t.st.messages {
		if m.TopicID == topicID {
			delete(t.st.messages, id)
			n++
		}
	}
	return n, nil
}

func (t *tx) DeleteTopic(_ context.Context, topicID int64) error {
	tp, ok := t.st.topics[topicID]
	if !ok {
		return store.ErrNotFound
	}
	delete(t.st.topics, topicID)
	for k := range t.st.readLogs {
		if k.id == topicID {
			delete(t.st.readLogs, k)
		}
	}
	if tp.PollID > 0 {
		t.deletePoll(tp.PollID)
	}
	return nil
}

func (t *tx) deletePoll(pollID int64) {
	delete(t.st.polls, pollID)
	for k := range t.st.choices {
		if k.poll == pollID {
			delete(t.st.choices, k)
		}
	}
	for k := range t.st.votes {
		if k.poll == pollID {
			delete(t.st.votes, k)
		}
	}
}

func (t *tx) MoveTopicMessages(_ context.Context, topicID, boardID int64) (int64, error) {
	var n int64
	for id, m := range t.st.messages {
		if m.TopicID == topicID {
			m.BoardID = boardID
			t.st.messages[id] = m
			n++
		}
	}
	return n, nil
}

func (t *tx) SetTopicBoard(_ context.Context, topicID, boardID int64) error {
	if _, ok := t.st.boards[boardID]; !ok {
		return store.ErrNotFound
	}
	return t.updateTopic(topicID, func(tp *store.Topic) { tp.BoardID = boardID })
}

func (t *tx) SetTopicFlags(_ context.Context, topicID int64, flags store.TopicFlags) error {
	return t.updateTopic(topicID, func(tp *store.Topic) {
		if flags.Sticky != nil {
			tp.Sticky = *flags.Sticky
		}
		if flags.Locked != nil {
			tp.Locked = *flags.Locked
		}
	})
}

func (t *tx) IncrementTopicViews(_ context.Context, topicID int64) error {
	return t.updateTopic(topicID, func(tp *store.Topic) { tp.NumViews++ })
}

// =============================================================================
// Counters
// =============================================================================

func (t *tx) updateTopic(id int64, fn func(*store.Topic)) error {
	tp, ok := t.st.topics[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&tp)
	t.st.topics[id] = tp
	return nil
}

func (t *tx) updateBoard(id int64, fn func(*store.Board)) error {
	b, ok := t.st.boards[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(&b)
	t.st.boards[id] = b
	return nil
}

func (t *tx) SetTopicFirstMessage(_ context.Context, topicID, messageID int64) error {
	return t.updateTopic(topicID, func(tp *store.Topic) { tp.FirstMessageID = messageID })
}

func (t *tx) SetTopicLastMessage(_ context.Context, topicID, messageID int64) error {
	return t.updateTopic(topicID, func(tp *store.Topic) { tp.LastMessageID = messageID })
}

func (t *tx) SetBoardLastMessage(_ context.Context, boardID, messageID int64, at time.Time) error {
	return t.updateBoard(boardID, func(b *store.Board) {
		b.LastMessageID = messageID
		b.LastUpdated = at
	})
}

func (t *tx) AdjustTopicReplies(_ context.Context, topicID, delta int64) error {
	return t.updateTopic(topicID, func(tp *store.Topic) { tp.NumReplies = max(tp.NumReplies+delta, 0) })
}

func (t *tx) AdjustBoardCounts(_ context.Context, boardID, topics, posts int64) error {
	return t.updateBoard(boardID, func(b *store.Board) {
		b.NumTopics = max(b.NumTopics+topics, 0)
		b.NumPosts = max(b.NumPosts+posts, 0)
	})
}

func (t *tx) AdjustMemberPosts(_ context.Context, memberID, delta int64) error {
	m, ok := t.st.members[memberID]
	if !ok {
		return store.ErrNotFound
	}
	m.Posts = max(m.Posts+delta, 0)
	t.st.members[memberID] = m
	return nil
}

func (t *tx) SetTopicReplies(_ context.Context, topicID, n int64) error {
	return t.updateTopic(topicID, func(tp *store.Topic) { tp.NumReplies = n })
}

func (t *tx) SetBoardCounts(_ context.Context, boardID, topics, posts int64) error {
	return t.updateBoard(boardID, func(b *store.Board) {
		b.NumTopics = topics
		b.NumPosts = posts
	})
}

// =============================================================================
// Read state
// =============================================================================

func (t *tx) UpsertReadLog(_ context.Context, memberID, topicID, messageID int64) error {
	k := readKey{member: memberID, id: topicID}
	if cur, ok := t.st.readLogs[k]; !ok || messageID > cur {
		t.st.readLogs[k] = messageID
	}
	return nil
}

func (t *tx) UpsertReadLogs(ctx context.Context, memberID int64, logs []store.ReadLog) error {
	for _, l := range logs {
		if err := t.UpsertReadLog(ctx, memberID, l.TopicID, l.MessageID); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) DeleteReadLogs(_ context.Context, memberID, boardID, upTo int64) (int64, error) {
	var n int64
	for k, v := range t.st.readLogs {
		if k.member != memberID || v > upTo {
			continue
		}
		if tp, ok := t.st.topics[k.id]; ok && tp.BoardID == boardID {
			delete(t.st.readLogs, k)
			n++
		}
	}
	return n, nil
}

func (t *tx) UpsertBoardMark(_ context.Context, memberID, boardID, messageID int64) error {
	t.st.boardMarks[readKey{member: memberID, id: boardID}] = messageID
	return nil
}

// =============================================================================
// Polls
// =============================================================================

func (t *tx) InsertPoll(_ context.Context, p *store.Poll, choices []string) (*store.Poll, error) {
	t.st.seq.poll++
	cp := *p
	cp.ID = t.st.seq.poll
	t.st.polls[cp.ID] = cp
	for i, label := range choices {
		t.st.choices[choiceKey{poll: cp.ID, choice: i}] = store.PollChoice{PollID: cp.ID, ChoiceID: i, Label: label}
	}
	return &cp, nil
}

func (t *tx) SetTopicPoll(_ context.Context, topicID, pollID int64) error {
	return t.updateTopic(topicID, func(tp *store.Topic) { tp.PollID = pollID })
}

func (t *tx) SetPollLocked(_ context.Context, pollID int64, locked bool) error {
	p, ok := t.st.polls[pollID]
	if !ok {
		return store.ErrNotFound
	}
	p.VotingLocked = locked
	t.st.polls[pollID] = p
	return nil
}

func (t *tx) DeleteMemberVotes(_ context.Context, pollID, memberID int64) ([]int, error) {
	var removed []int
	for k := range t.st.votes {
		if k.poll == pollID && k.member == memberID {
			delete(t.st.votes, k)
			removed = append(removed, k.choice)
		}
	}
	return removed, nil
}

func (t *tx) InsertVotes(_ context.Context, pollID, memberID int64, choiceIDs []int) error {
	for _, c := range choiceIDs {
		k := voteKey{poll: pollID, member: memberID, choice: c}
		if _, ok := t.st.votes[k]; ok {
			return store.ErrDuplicateEntry
		}
		t.st.votes[k] = struct{}{}
	}
	return nil
}

func (t *tx) AdjustChoiceVotes(_ context.Context, pollID int64, choiceIDs []int, delta int64) error {
	for _, id := range choiceIDs {
		k := choiceKey{poll: pollID, choice: id}
		c, ok := t.st.choices[k]
		if !ok {
			return store.ErrNotFound
		}
		c.Votes = max(c.Votes+delta, 0)
		t.st.choices[k] = c
	}
	return nil
}

// =============================================================================
// Reports
// =============================================================================

func (t *tx) InsertReport(_ context.Context, r *store.Report) (*store.Report, error) {
	for _, existing := range t.st.reports {
		if existing.MessageID == r.MessageID && existing.ReporterID == r.ReporterID && !existing.Closed {
			return nil, store.ErrDuplicateEntry
		}
	}
	t.st.seq.report++
	cp := *r
	cp.ID = t.st.seq.report
	cp.Closed = false
	cp.ClosedBy = 0
	cp.ClosedAt = nil
	t.st.reports[cp.ID] = cp
	return &cp, nil
}

func (t *tx) CloseReport(_ context.Context, id, closedBy int64, at time.Time) error {
	r, ok := t.st.reports[id]
	if !ok {
		return store.ErrNotFound
	}
	if r.Closed {
		return store.ErrAlreadyClosed
	}
	r.Closed = true
	r.ClosedBy = closedBy
	r.ClosedAt = &at
	r.UpdatedAt = at
	t.st.reports[id] = r
	return nil
}
