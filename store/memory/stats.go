package memory

import (
	"context"
	"slices"

	"github.com/rbaliyan/forum/store"
)

func (r reader) TopicTotals(_ context.Context, topicID int64) (store.TopicTotals, error) {
	st, err := r.snapshot()
	if err != nil {
		return store.TopicTotals{}, err
	}
	return st.topicTotals(topicID), nil
}

func (r reader) BoardTotals(_ context.Context, boardID int64) (store.BoardTotals, error) {
	st, err := r.snapshot()
	if err != nil {
		return store.BoardTotals{}, err
	}
	return st.boardTotals(boardID), nil
}

func (r reader) FindTopicDrift(_ context.Context) ([]int64, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, t := range st.topics {
		totals := st.topicTotals(t.ID)
		if t.LastMessageID != totals.LastMessageID ||
			t.FirstMessageID != totals.FirstMessageID ||
			t.NumReplies != replies(totals.Messages) {
			ids = append(ids, t.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (r reader) FindBoardDrift(_ context.Context) ([]int64, error) {
	st, err := r.snapshot()
	if err != nil {
		return nil, err
	}
	var ids []int64
	for _, b := range st.boards {
		totals := st.boardTotals(b.ID)
		if b.LastMessageID != totals.LastMessageID ||
			b.NumTopics != totals.Topics ||
			b.NumPosts != totals.Posts {
			ids = append(ids, b.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (r reader) ForumStats(_ context.Context) (store.ForumStats, error) {
	st, err := r.snapshot()
	if err != nil {
		return store.ForumStats{}, err
	}
	return store.ForumStats{
		Categories: int64(len(st.categories)),
		Boards:     int64(len(st.boards)),
		Topics:     int64(len(st.topics)),
		Posts:      int64(len(st.messages)),
		Members:    int64(len(st.members)),
	}, nil
}
