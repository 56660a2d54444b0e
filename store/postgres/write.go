package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rbaliyan/forum/store"
)

// tx implements store.Tx on top of an open sqlx transaction.
type tx struct {
	queries
}

// exec runs a statement and returns the number of affected rows.
func (t *tx) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := t.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return rows, nil
}

// execOne runs a statement that must touch at least one row.
func (t *tx) execOne(ctx context.Context, query string, args ...any) error {
	rows, err := t.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// insert runs an INSERT ... RETURNING id statement.
func (t *tx) insert(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := t.ext.QueryRowxContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, mapError(err)
	}
	return id, nil
}

func toInt64s(ids []int) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// =============================================================================
// Boards and members
// =============================================================================

func (t *tx) InsertCategory(ctx context.Context, c *store.Category) (*store.Category, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, cat_order, can_collapse)
		VALUES ($1, $2, $3) RETURNING id
	`, t.t.categories)
	id, err := t.insert(ctx, query, c.Name, c.Order, c.CanCollapse)
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	cp := *c
	cp.ID = id
	return &cp, nil
}

func (t *tx) InsertBoard(ctx context.Context, b *store.Board) (*store.Board, error) {
	cp := *b
	cp.NumTopics, cp.NumPosts, cp.LastMessageID = 0, 0, 0
	if cp.LastUpdated.IsZero() {
		cp.LastUpdated = time.Now().UTC()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (category_id, parent_id, name, description, board_order,
		                member_groups, redirect_url, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id
	`, t.t.boards)
	id, err := t.insert(ctx, query, cp.CategoryID, cp.ParentID, cp.Name, cp.Description,
		cp.Order, cp.MemberGroups, cp.RedirectURL, cp.LastUpdated)
	if err != nil {
		return nil, fmt.Errorf("insert board: %w", err)
	}
	cp.ID = id
	return &cp, nil
}

func (t *tx) UpsertMember(ctx context.Context, m *store.Member) error {
	if m.ID <= 0 {
		return store.ErrInvalidID
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, primary_group, post_group, additional_groups, posts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			primary_group = EXCLUDED.primary_group,
			post_group = EXCLUDED.post_group,
			additional_groups = EXCLUDED.additional_groups
	`, t.t.members)
	if _, err := t.exec(ctx, query, m.ID, m.Name, m.PrimaryGroup, m.PostGroup, m.AdditionalGroups, m.Posts); err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (t *tx) TouchActivity(ctx context.Context, memberID int64, action string, at time.Time) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (member_id, action, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (member_id) DO UPDATE SET
			action = EXCLUDED.action,
			updated_at = EXCLUDED.updated_at
	`, t.t.activity)
	if _, err := t.exec(ctx, query, memberID, action, at); err != nil {
		return fmt.Errorf("touch activity: %w", err)
	}
	return nil
}

// =============================================================================
// Topics and messages
// =============================================================================

func (t *tx) InsertTopic(ctx context.Context, tp *store.Topic) (*store.Topic, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (board_id, first_message_id, last_message_id, starter_id, poll_id,
		                is_sticky, is_locked, num_replies, num_views)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id
	`, t.t.topics)
	id, err := t.insert(ctx, query, tp.BoardID, tp.FirstMessageID, tp.LastMessageID, tp.StarterID,
		tp.PollID, tp.Sticky, tp.Locked, tp.NumReplies, tp.NumViews)
	if err != nil {
		return nil, fmt.Errorf("insert topic: %w", err)
	}
	cp := *tp
	cp.ID = id
	return &cp, nil
}

func (t *tx) InsertMessage(ctx context.Context, m *store.Message) (*store.Message, error) {
	cp := *m
	if cp.PostedAt.IsZero() {
		cp.PostedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (topic_id, board_id, poster_id, poster_name, poster_email,
		                subject, body, posted_at, approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id
	`, t.t.messages)
	id, err := t.insert(ctx, query, cp.TopicID, cp.BoardID, cp.PosterID, cp.PosterName,
		cp.PosterEmail, cp.Subject, cp.Body, cp.PostedAt, cp.Approved)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	cp.ID = id
	return &cp, nil
}

func (t *tx) UpdateMessage(ctx context.Context, id int64, u store.MessageUpdate, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET subject = $2, body = $3, modified_by = $4, modified_at = $5
		WHERE id = $1
	`, t.t.messages)
	return t.execOne(ctx, query, id, u.Subject, u.Body, u.ModifiedBy, at)
}

func (t *tx) DeleteMessage(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.t.messages)
	return t.execOne(ctx, query, id)
}

func (t *tx) DeleteTopicMessages(ctx context.Context, topicID int64) (int64, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE topic_id = $1`, t.t.messages)
	return t.exec(ctx, query, topicID)
}

func (t *tx) DeleteTopic(ctx context.Context, topicID int64) error {
	var pollID int64
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1 RETURNING poll_id`, t.t.topics)
	if err := t.ext.QueryRowxContext(ctx, query, topicID).Scan(&pollID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("delete topic: %w", mapError(err))
	}

	logs := fmt.Sprintf(`DELETE FROM %s WHERE topic_id = $1`, t.t.readLogs)
	if _, err := t.exec(ctx, logs, topicID); err != nil {
		return fmt.Errorf("delete read logs: %w", err)
	}

	if pollID == 0 {
		return nil
	}
	for _, table := range []string{t.t.votes, t.t.choices} {
		stmt := fmt.Sprintf(`DELETE FROM %s WHERE poll_id = $1`, table)
		if _, err := t.exec(ctx, stmt, pollID); err != nil {
			return fmt.Errorf("delete poll rows: %w", err)
		}
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.t.polls)
	if _, err := t.exec(ctx, stmt, pollID); err != nil {
		return fmt.Errorf("delete poll: %w", err)
	}
	return nil
}

func (t *tx) MoveTopicMessages(ctx context.Context, topicID, boardID int64) (int64, error) {
	query := fmt.Sprintf(`UPDATE %s SET board_id = $2 WHERE topic_id = $1`, t.t.messages)
	return t.exec(ctx, query, topicID, boardID)
}

func (t *tx) SetTopicBoard(ctx context.Context, topicID, boardID int64) error {
	query := fmt.Sprintf(`UPDATE %s SET board_id = $2 WHERE id = $1`, t.t.topics)
	return t.execOne(ctx, query, topicID, boardID)
}

func (t *tx) SetTopicFlags(ctx context.Context, topicID int64, flags store.TopicFlags) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			is_sticky = COALESCE($2, is_sticky),
			is_locked = COALESCE($3, is_locked)
		WHERE id = $1
	`, t.t.topics)
	return t.execOne(ctx, query, topicID, flags.Sticky, flags.Locked)
}

func (t *tx) IncrementTopicViews(ctx context.Context, topicID int64) error {
	query := fmt.Sprintf(`UPDATE %s SET num_views = num_views + 1 WHERE id = $1`, t.t.topics)
	return t.execOne(ctx, query, topicID)
}

// =============================================================================
// Counters
// =============================================================================

func (t *tx) SetTopicFirstMessage(ctx context.Context, topicID, messageID int64) error {
	query := fmt.Sprintf(`UPDATE %s SET first_message_id = $2 WHERE id = $1`, t.t.topics)
	return t.execOne(ctx, query, topicID, messageID)
}

func (t *tx) SetTopicLastMessage(ctx context.Context, topicID, messageID int64) error {
	query := fmt.Sprintf(`UPDATE %s SET last_message_id = $2 WHERE id = $1`, t.t.topics)
	return t.execOne(ctx, query, topicID, messageID)
}

func (t *tx) SetBoardLastMessage(ctx context.Context, boardID, messageID int64, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET last_message_id = $2, last_updated = $3 WHERE id = $1`, t.t.boards)
	return t.execOne(ctx, query, boardID, messageID, at)
}

func (t *tx) AdjustTopicReplies(ctx context.Context, topicID, delta int64) error {
	query := fmt.Sprintf(`UPDATE %s SET num_replies = GREATEST(num_replies + $2, 0) WHERE id = $1`, t.t.topics)
	return t.execOne(ctx, query, topicID, delta)
}

func (t *tx) AdjustBoardCounts(ctx context.Context, boardID, topics, posts int64) error {
	query := fmt.Sprintf(`
		UPDATE %s SET
			num_topics = GREATEST(num_topics + $2, 0),
			num_posts = GREATEST(num_posts + $3, 0)
		WHERE id = $1
	`, t.t.boards)
	return t.execOne(ctx, query, boardID, topics, posts)
}

func (t *tx) AdjustMemberPosts(ctx context.Context, memberID, delta int64) error {
	query := fmt.Sprintf(`UPDATE %s SET posts = GREATEST(posts + $2, 0) WHERE id = $1`, t.t.members)
	return t.execOne(ctx, query, memberID, delta)
}

func (t *tx) SetTopicReplies(ctx context.Context, topicID, replies int64) error {
	query := fmt.Sprintf(`UPDATE %s SET num_replies = $2 WHERE id = $1`, t.t.topics)
	return t.execOne(ctx, query, topicID, replies)
}

func (t *tx) SetBoardCounts(ctx context.Context, boardID, topics, posts int64) error {
	query := fmt.Sprintf(`UPDATE %s SET num_topics = $2, num_posts = $3 WHERE id = $1`, t.t.boards)
	return t.execOne(ctx, query, boardID, topics, posts)
}

// =============================================================================
// Read state
// =============================================================================

func (t *tx) UpsertReadLog(ctx context.Context, memberID, topicID, messageID int64) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (member_id, topic_id, message_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (member_id, topic_id) DO UPDATE SET
			message_id = GREATEST(%[1]s.message_id, EXCLUDED.message_id)
	`, t.t.readLogs)
	if _, err := t.exec(ctx, query, memberID, topicID, messageID); err != nil {
		return fmt.Errorf("upsert read log: %w", err)
	}
	return nil
}

func (t *tx) UpsertReadLogs(ctx context.Context, memberID int64, logs []store.ReadLog) error {
	if len(logs) == 0 {
		return nil
	}
	// ON CONFLICT cannot touch a row twice in one statement.
	latest := make(map[int64]int64, len(logs))
	for _, l := range logs {
		if l.MessageID > latest[l.TopicID] {
			latest[l.TopicID] = l.MessageID
		}
	}
	topics := make([]int64, 0, len(latest))
	messages := make([]int64, 0, len(latest))
	for topicID, messageID := range latest {
		topics = append(topics, topicID)
		messages = append(messages, messageID)
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (member_id, topic_id, message_id)
		SELECT $1, u.topic_id, u.message_id
		FROM unnest($2::bigint[], $3::bigint[]) AS u(topic_id, message_id)
		ON CONFLICT (member_id, topic_id) DO UPDATE SET
			message_id = GREATEST(%[1]s.message_id, EXCLUDED.message_id)
	`, t.t.readLogs)
	if _, err := t.exec(ctx, query, memberID, pq.Array(topics), pq.Array(messages)); err != nil {
		return fmt.Errorf("upsert read logs: %w", err)
	}
	return nil
}

func (t *tx) DeleteReadLogs(ctx context.Context, memberID, boardID, upTo int64) (int64, error) {
	query := fmt.Sprintf(`
		DELETE FROM %s r USING %s tp
		WHERE r.topic_id = tp.id
		  AND r.member_id = $1
		  AND tp.board_id = $2
		  AND r.message_id <= $3
	`, t.t.readLogs, t.t.topics)
	n, err := t.exec(ctx, query, memberID, boardID, upTo)
	if err != nil {
		return 0, fmt.Errorf("delete read logs: %w", err)
	}
	return n, nil
}

func (t *tx) UpsertBoardMark(ctx context.Context, memberID, boardID, messageID int64) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (member_id, board_id, message_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (member_id, board_id) DO UPDATE SET message_id = EXCLUDED.message_id
	`, t.t.boardMarks)
	if _, err := t.exec(ctx, query, memberID, boardID, messageID); err != nil {
		return fmt.Errorf("upsert board mark: %w", err)
	}
	return nil
}

// =============================================================================
// Polls
// =============================================================================

func (t *tx) InsertPoll(ctx context.Context, p *store.Poll, choices []string) (*store.Poll, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (topic_id, question, member_id, poster_name, max_votes, expires_at,
		                hide_results, change_vote, voting_locked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id
	`, t.t.polls)
	id, err := t.insert(ctx, query, p.TopicID, p.Question, p.MemberID, p.PosterName, p.MaxVotes,
		p.ExpiresAt, int(p.HideResults), p.ChangeVote, p.VotingLocked)
	if err != nil {
		return nil, fmt.Errorf("insert poll: %w", err)
	}

	choiceQuery := fmt.Sprintf(`
		INSERT INTO %s (poll_id, choice_id, label, votes)
		SELECT $1, c.ord - 1, c.label, 0
		FROM unnest($2::text[]) WITH ORDINALITY AS c(label, ord)
	`, t.t.choices)
	if _, err := t.exec(ctx, choiceQuery, id, pq.Array(choices)); err != nil {
		return nil, fmt.Errorf("insert poll choices: %w", err)
	}

	cp := *p
	cp.ID = id
	return &cp, nil
}

func (t *tx) SetTopicPoll(ctx context.Context, topicID, pollID int64) error {
	query := fmt.Sprintf(`UPDATE %s SET poll_id = $2 WHERE id = $1`, t.t.topics)
	return t.execOne(ctx, query, topicID, pollID)
}

func (t *tx) SetPollLocked(ctx context.Context, pollID int64, locked bool) error {
	query := fmt.Sprintf(`UPDATE %s SET voting_locked = $2 WHERE id = $1`, t.t.polls)
	return t.execOne(ctx, query, pollID, locked)
}

func (t *tx) DeleteMemberVotes(ctx context.Context, pollID, memberID int64) ([]int, error) {
	var removed []int
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE poll_id = $1 AND member_id = $2
		RETURNING choice_id
	`, t.t.votes)
	if err := t.list(ctx, &removed, query, pollID, memberID); err != nil {
		return nil, fmt.Errorf("delete votes: %w", err)
	}
	return removed, nil
}

func (t *tx) InsertVotes(ctx context.Context, pollID, memberID int64, choiceIDs []int) error {
	if len(choiceIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (poll_id, member_id, choice_id)
		SELECT $1, $2, unnest($3::int[])
	`, t.t.votes)
	if _, err := t.exec(ctx, query, pollID, memberID, pq.Array(toInt64s(choiceIDs))); err != nil {
		return fmt.Errorf("insert votes: %w", err)
	}
	return nil
}

func (t *tx) AdjustChoiceVotes(ctx context.Context, pollID int64, choiceIDs []int, delta int64) error {
	if len(choiceIDs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		UPDATE %s SET votes = GREATEST(votes + $3, 0)
		WHERE poll_id = $1 AND choice_id = ANY($2::int[])
	`, t.t.choices)
	rows, err := t.exec(ctx, query, pollID, pq.Array(toInt64s(choiceIDs)), delta)
	if err != nil {
		return fmt.Errorf("adjust choice votes: %w", err)
	}
	distinct := make(map[int]struct{}, len(choiceIDs))
	for _, id := range choiceIDs {
		distinct[id] = struct{}{}
	}
	if rows != int64(len(distinct)) {
		return store.ErrNotFound
	}
	return nil
}

// =============================================================================
// Reports
// =============================================================================

func (t *tx) InsertReport(ctx context.Context, r *store.Report) (*store.Report, error) {
	cp := *r
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	cp.Closed, cp.ClosedBy, cp.ClosedAt = false, 0, nil

	query := fmt.Sprintf(`
		INSERT INTO %s (message_id, topic_id, board_id, reporter_id, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id
	`, t.t.reports)
	id, err := t.insert(ctx, query, cp.MessageID, cp.TopicID, cp.BoardID, cp.ReporterID,
		cp.Comment, cp.CreatedAt, cp.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	cp.ID = id
	return &cp, nil
}

func (t *tx) CloseReport(ctx context.Context, id, closedBy int64, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s SET closed = TRUE, closed_by = $2, closed_at = $3, updated_at = $3
		WHERE id = $1 AND NOT closed
	`, t.t.reports)
	rows, err := t.exec(ctx, query, id, closedBy, at)
	if err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	if rows > 0 {
		return nil
	}
	if _, err := t.GetReport(ctx, id); err != nil {
		return err
	}
	return store.ErrAlreadyClosed
}
