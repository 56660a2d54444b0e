package memory

import "github.com/rbaliyan/forum/store"

// paginate applies offset and limit to an already sorted slice.
func paginate[T any](items []T, opts store.ListOptions) []T {
	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > len(items) {
		start = len(items)
	}
	end := len(items)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return items[start:end]
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// topicTotals computes a topic's authoritative totals.
func (st *state) topicTotals(topicID int64) store.TopicTotals {
	var totals store.TopicTotals
	for _, m := range st.messages {
		if m.TopicID != topicID {
			continue
		}
		totals.Messages++
		if totals.FirstMessageID == 0 || m.ID < totals.FirstMessageID {
			totals.FirstMessageID = m.ID
		}
		if m.Approved && m.ID > totals.LastMessageID {
			totals.LastMessageID = m.ID
		}
	}
	return totals
}

func (st *state) boardTotals(boardID int64) store.BoardTotals {
	var totals store.BoardTotals
	for _, t := range st.topics {
		if t.BoardID == boardID {
			totals.Topics++
		}
	}
	for _, m := range st.messages {
		if m.BoardID != boardID {
			continue
		}
		totals.Posts++
		if m.Approved && m.ID > totals.LastMessageID {
			totals.LastMessageID = m.ID
			totals.LastPostedAt = m.PostedAt
		}
	}
	return totals
}

func replies(messages int64) int64 {
	if messages == 0 {
		return 0
	}
	return messages - 1
}
