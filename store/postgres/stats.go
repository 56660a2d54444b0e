package postgres

import (
	"context"
	"fmt"

	"github.com/rbaliyan/forum/store"
)

// zeroTime is the timestamptz literal that scans back to the zero time.Time.
const zeroTime = `'0001-01-01 00:00:00+00'::timestamptz`

func (q queries) TopicTotals(ctx context.Context, topicID int64) (store.TopicTotals, error) {
	var totals store.TopicTotals
	query := fmt.Sprintf(`
		SELECT COUNT(*) AS messages,
		       COALESCE(MIN(id), 0) AS first_message_id,
		       COALESCE(MAX(id) FILTER (WHERE approved), 0) AS last_message_id
		FROM %s WHERE topic_id = $1
	`, q.t.messages)
	if err := q.get(ctx, &totals, query, topicID); err != nil {
		return store.TopicTotals{}, fmt.Errorf("topic totals: %w", err)
	}
	return totals, nil
}

func (q queries) BoardTotals(ctx context.Context, boardID int64) (store.BoardTotals, error) {
	var totals store.BoardTotals
	query := fmt.Sprintf(`
		SELECT
			(SELECT COUNT(*) FROM %[1]s WHERE board_id = $1) AS topics,
			(SELECT COUNT(*) FROM %[2]s WHERE board_id = $1) AS posts,
			COALESCE(last.id, 0) AS last_message_id,
			COALESCE(last.posted_at, %[3]s) AS last_posted_at
		FROM (SELECT 1) AS one
		LEFT JOIN LATERAL (
			SELECT id, posted_at FROM %[2]s
			WHERE board_id = $1 AND approved
			ORDER BY id DESC LIMIT 1
		) AS last ON TRUE
	`, q.t.topics, q.t.messages, zeroTime)
	if err := q.get(ctx, &totals, query, boardID); err != nil {
		return store.BoardTotals{}, fmt.Errorf("board totals: %w", err)
	}
	return totals, nil
}

func (q queries) FindTopicDrift(ctx context.Context) ([]int64, error) {
	var ids []int64
	query := fmt.Sprintf(`
		SELECT t.id FROM %s t
		LEFT JOIN (
			SELECT topic_id,
			       COUNT(*) AS n,
			       MIN(id) AS first_id,
			       COALESCE(MAX(id) FILTER (WHERE approved), 0) AS last_id
			FROM %s GROUP BY topic_id
		) m ON m.topic_id = t.id
		WHERE t.last_message_id <> COALESCE(m.last_id, 0)
		   OR t.first_message_id <> COALESCE(m.first_id, 0)
		   OR t.num_replies <> GREATEST(COALESCE(m.n, 0) - 1, 0)
		ORDER BY t.id
	`, q.t.topics, q.t.messages)
	if err := q.list(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("find topic drift: %w", err)
	}
	return ids, nil
}

func (q queries) FindBoardDrift(ctx context.Context) ([]int64, error) {
	var ids []int64
	query := fmt.Sprintf(`
		SELECT b.id FROM %s b
		LEFT JOIN (
			SELECT board_id, COUNT(*) AS n FROM %s GROUP BY board_id
		) t ON t.board_id = b.id
		LEFT JOIN (
			SELECT board_id,
			       COUNT(*) AS n,
			       COALESCE(MAX(id) FILTER (WHERE approved), 0) AS last_id
			FROM %s GROUP BY board_id
		) m ON m.board_id = b.id
		WHERE b.last_message_id <> COALESCE(m.last_id, 0)
		   OR b.num_topics <> COALESCE(t.n, 0)
		   OR b.num_posts <> COALESCE(m.n, 0)
		ORDER BY b.id
	`, q.t.boards, q.t.topics, q.t.messages)
	if err := q.list(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("find board drift: %w", err)
	}
	return ids, nil
}

func (q queries) ForumStats(ctx context.Context) (store.ForumStats, error) {
	var stats store.ForumStats
	query := fmt.Sprintf(`
		SELECT
			(SELECT COUNT(*) FROM %s) AS categories,
			(SELECT COUNT(*) FROM %s) AS boards,
			(SELECT COUNT(*) FROM %s) AS topics,
			(SELECT COUNT(*) FROM %s) AS posts,
			(SELECT COUNT(*) FROM %s) AS members
	`, q.t.categories, q.t.boards, q.t.topics, q.t.messages, q.t.members)
	if err := q.get(ctx, &stats, query); err != nil {
		return store.ForumStats{}, fmt.Errorf("forum stats: %w", err)
	}
	return stats, nil
}
