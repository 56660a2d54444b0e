package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/rbaliyan/forum/store"
)

// reader serves every read operation from a state snapshot.
// Store loads the committed state; tx loads its working copy.
type reader struct {
	load  func() *state
	check func() error
}

func (r reader) snapshot() (*state, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.load(), nil
}

// =============================================================================
// Boards
// =============================================================================

func (r reader) ListCategories(_ context.Context) ([]*store.Category, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]*store.Category, 0, len(st.categories))
	for _, c := range st.categories {
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *store.Category) int {
		return cmp.Or(cmp.Compare(a.Order, b.Order), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (r reader) ListBoards(_ context.Context) ([]*store.Board, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]*store.Board, 0, len(st.boards))
	for _, b := range st.boards {
		out = append(out, &b)
	}
	slices.SortFunc(out, func(a, b *store.Board) int {
		return cmp.Or(
			cmp.Compare(a.CategoryID, b.CategoryID),
			cmp.Compare(a.Order, b.Order),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out, nil
}

func (r reader) GetBoard(_ context.Context, id int64) (*store.Board, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, store.ErrInvalidID
	}
	b, ok := st.boards[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (r reader) GetMember(_ context.Context, id int64) (*store.Member, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, store.ErrInvalidID
	}
	m, ok := st.members[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

// =============================================================================
// Topics and messages
// =============================================================================

func (r reader) GetTopic(_ context.Context, id int64) (*store.Topic, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, store.ErrInvalidID
	}
	t, ok := st.topics[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (r reader) ListTopics(_ context.Context, boardID int64, opts store.ListOptions) ([]*store.Topic, int64, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, 0, err
	}
	var all []*store.Topic
	for _, t := range st.topics {
		if t.BoardID == boardID {
			all = append(all, &t)
		}
	}
	slices.SortFunc(all, func(a, b *store.Topic) int {
		if a.Sticky != b.Sticky {
			if a.Sticky {
				return -1
			}
			return 1
		}
		return cmp.Or(cmp.Compare(b.LastMessageID, a.LastMessageID), cmp.Compare(b.ID, a.ID))
	})
	return paginate(all, opts), int64(len(all)), nil
}

func (r reader) GetMessage(_ context.Context, id int64) (*store.Message, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, store.ErrInvalidID
	}
	m, ok := st.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (r reader) GetMessages(_ context.Context, ids []int64) ([]*store.Message, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]*store.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := st.messages[id]; ok {
			out = append(out, &m)
		}
	}
	return out, nil
}

func (r reader) ListMessages(_ context.Context, topicID int64, opts store.ListOptions, order store.SortOrder) ([]*store.Message, int64, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, 0, err
	}
	var all []*store.Message
	for _, m := range st.messages {
		if m.TopicID == topicID {
			all = append(all, &m)
		}
	}
	slices.SortFunc(all, func(a, b *store.Message) int {
		if order == store.SortDesc {
			return cmp.Compare(b.ID, a.ID)
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return paginate(all, opts), int64(len(all)), nil
}

func (r reader) LatestMessages(_ context.Context, boardIDs []int64, opts store.ListOptions) ([]*store.Message, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	boards := idSet(boardIDs)
	var all []*store.Message
	for _, m := range st.messages {
		if _, ok := boards[m.BoardID]; ok && m.Approved {
			all = append(all, &m)
		}
	}
	slices.SortFunc(all, func(a, b *store.Message) int { return cmp.Compare(b.ID, a.ID) })
	return paginate(all, opts), nil
}

func (r reader) TopicAuthors(_ context.Context, topicID int64) (map[int64]int64, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	authors := make(map[int64]int64)
	for _, m := range st.messages {
		if m.TopicID == topicID && m.PosterID > 0 {
			authors[m.PosterID]++
		}
	}
	return authors, nil
}

// =============================================================================
// Read state
// =============================================================================

func (r reader) TopicPointers(_ context.Context, boardIDs []int64) ([]store.TopicPointer, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	boards := idSet(boardIDs)
	var out []store.TopicPointer
	for _, t := range st.topics {
		if _, ok := boards[t.BoardID]; ok {
			out = append(out, t.Pointer())
		}
	}
	slices.SortFunc(out, func(a, b store.TopicPointer) int {
		return cmp.Or(cmp.Compare(b.LastMessageID, a.LastMessageID), cmp.Compare(b.TopicID, a.TopicID))
	})
	return out, nil
}

func (r reader) ReadLogs(_ context.Context, memberID int64, topicIDs []int64) (map[int64]int64, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	logs := make(map[int64]int64)
	if topicIDs == nil {
		for k, v := range st.readLogs {
			if k.member == memberID {
				logs[k.id] = v
			}
		}
		return logs, nil
	}
	for _, id := range topicIDs {
		if v, ok := st.readLogs[readKey{member: memberID, id: id}]; ok {
			logs[id] = v
		}
	}
	return logs, nil
}

func (r reader) BoardMarks(_ context.Context, memberID int64) (map[int64]int64, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	marks := make(map[int64]int64)
	for k, v := range st.boardMarks {
		if k.member == memberID {
			marks[k.id] = v
		}
	}
	return marks, nil
}

// =============================================================================
// Polls
// =============================================================================

func (r reader) GetPoll(_ context.Context, id int64) (*store.Poll, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, store.ErrInvalidID
	}
	p, ok := st.polls[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r reader) PollChoices(_ context.Context, pollID int64) ([]*store.PollChoice, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	var out []*store.PollChoice
	for k, c := range st.choices {
		if k.poll == pollID {
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *store.PollChoice) int { return cmp.Compare(a.ChoiceID, b.ChoiceID) })
	return out, nil
}

func (r reader) MemberVotes(_ context.Context, pollID, memberID int64) ([]int, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	var out []int
	for k := range st.votes {
		if k.poll == pollID && k.member == memberID {
			out = append(out, k.choice)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (r reader) CountPollVotes(_ context.Context, pollID int64) (int64, error) {
	st, err := r.snapshot()
	if err != nil {
		return 0, err
	}
	var n int64
	for k := range st.votes {
		if k.poll == pollID {
			n++
		}
	}
	return n, nil
}

// =============================================================================
// Reports
// =============================================================================

func (r reader) GetReport(_ context.Context, id int64) (*store.Report, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, store.ErrInvalidID
	}
	rep, ok := st.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rep, nil
}

func (r reader) FindOpenReport(_ context.Context, messageID, reporterID int64) (*store.Report, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	for _, rep := range st.reports {
		if rep.MessageID == messageID && rep.ReporterID == reporterID && !rep.Closed {
			return &rep, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r reader) ListReports(_ context.Context, status store.ReportStatus, opts store.ListOptions) ([]*store.Report, int64, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, 0, err
	}
	var all []*store.Report
	for _, rep := range st.reports {
		if status.Matches(rep.Closed) {
			all = append(all, &rep)
		}
	}
	slices.SortFunc(all, func(a, b *store.Report) int { return cmp.Compare(b.ID, a.ID) })
	return paginate(all, opts), int64(len(all)), nil
}
