package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rbaliyan/forum/store"
)

// Column lists matching the db tags of the store types.
const (
	categoryColumns = `id, name, cat_order, can_collapse`
	boardColumns    = `id, category_id, parent_id, name, description, board_order, member_groups,
		redirect_url, num_topics, num_posts, last_message_id, last_updated`
	memberColumns = `id, name, primary_group, post_group, additional_groups, posts`
	topicColumns  = `id, board_id, first_message_id, last_message_id, starter_id, poll_id,
		is_sticky, is_locked, num_replies, num_views`
	messageColumns = `id, topic_id, board_id, poster_id, poster_name, poster_email, subject, body,
		posted_at, modified_at, modified_by, approved`
	pollColumns = `id, topic_id, question, member_id, poster_name, max_votes, expires_at,
		hide_results, change_vote, voting_locked`
	reportColumns = `id, message_id, topic_id, board_id, reporter_id, comment, closed, closed_by,
		created_at, updated_at, closed_at`
)

// queries implements the read side of the store against either the
// connection pool or an open transaction.
type queries struct {
	ext     sqlx.ExtContext
	t       tables
	timeout time.Duration
	check   func() error
}

// begin checks the connection state and applies the read timeout.
func (q queries) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := q.check(); err != nil {
		return nil, nil, err
	}
	if q.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, q.timeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}

// get scans a single row into dest, mapping no rows to store.ErrNotFound.
func (q queries) get(ctx context.Context, dest any, query string, args ...any) error {
	ctx, cancel, err := q.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return mapError(sqlx.GetContext(ctx, q.ext, dest, query, args...))
}

// list scans all rows into dest.
func (q queries) list(ctx context.Context, dest any, query string, args ...any) error {
	ctx, cancel, err := q.begin(ctx)
	if err != nil {
		return err
	}
	defer cancel()
	return mapError(sqlx.SelectContext(ctx, q.ext, dest, query, args...))
}

// limit converts a zero limit to NULL so LIMIT is unbounded.
func limit(opts store.ListOptions) any {
	if opts.Limit <= 0 {
		return nil
	}
	return opts.Limit
}

func offset(opts store.ListOptions) int {
	return max(opts.Offset, 0)
}

// =============================================================================
// Boards
// =============================================================================

func (q queries) ListCategories(ctx context.Context) ([]*store.Category, error) {
	var out []*store.Category
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY cat_order, id`, categoryColumns, q.t.categories)
	if err := q.list(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

func (q queries) ListBoards(ctx context.Context) ([]*store.Board, error) {
	var out []*store.Board
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY category_id, board_order, id`, boardColumns, q.t.boards)
	if err := q.list(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	return out, nil
}

func (q queries) GetBoard(ctx context.Context, id int64) (*store.Board, error) {
	if id <= 0 {
		return nil, store.ErrInvalidID
	}
	var b store.Board
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, boardColumns, q.t.boards)
	if err := q.get(ctx, &b, query, id); err != nil {
		return nil, err
	}
	return &b, nil
}

func (q queries) GetMember(ctx context.Context, id int64) (*store.Member, error) {
	if id <= 0 {
		return nil, store.ErrInvalidID
	}
	var m store.Member
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, memberColumns, q.t.members)
	if err := q.get(ctx, &m, query, id); err != nil {
		return nil, err
	}
	return &m, nil
}

// =============================================================================
// Topics and messages
// =============================================================================

func (q queries) GetTopic(ctx context.Context, id int64) (*store.Topic, error) {
	if id <= 0 {
		return nil, store.ErrInvalidID
	}
	var t store.Topic
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, topicColumns, q.t.topics)
	if err := q.get(ctx, &t, query, id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (q queries) ListTopics(ctx context.Context, boardID int64, opts store.ListOptions) ([]*store.Topic, int64, error) {
	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE board_id = $1`, q.t.topics)
	if err := q.get(ctx, &total, countQuery, boardID); err != nil {
		return nil, 0, fmt.Errorf("count topics: %w", err)
	}

	var out []*store.Topic
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE board_id = $1
		ORDER BY is_sticky DESC, last_message_id DESC, id DESC
		LIMIT $2 OFFSET $3
	`, topicColumns, q.t.topics)
	if err := q.list(ctx, &out, query, boardID, limit(opts), offset(opts)); err != nil {
		return nil, 0, fmt.Errorf("list topics: %w", err)
	}
	return out, total, nil
}

func (q queries) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	if id <= 0 {
		return nil, store.ErrInvalidID
	}
	var m store.Message
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, messageColumns, q.t.messages)
	if err := q.get(ctx, &m, query, id); err != nil {
		return nil, err
	}
	return &m, nil
}

func (q queries) GetMessages(ctx context.Context, ids []int64) ([]*store.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []*store.Message
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ANY($1) ORDER BY id`, messageColumns, q.t.messages)
	if err := q.list(ctx, &out, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return out, nil
}

func (q queries) ListMessages(ctx context.Context, topicID int64, opts store.ListOptions, order store.SortOrder) ([]*store.Message, int64, error) {
	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE topic_id = $1`, q.t.messages)
	if err := q.get(ctx, &total, countQuery, topicID); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	direction := "ASC"
	if order == store.SortDesc {
		direction = "DESC"
	}
	var out []*store.Message
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE topic_id = $1
		ORDER BY id %s
		LIMIT $2 OFFSET $3
	`, messageColumns, q.t.messages, direction)
	if err := q.list(ctx, &out, query, topicID, limit(opts), offset(opts)); err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	return out, total, nil
}

func (q queries) LatestMessages(ctx context.Context, boardIDs []int64, opts store.ListOptions) ([]*store.Message, error) {
	if len(boardIDs) == 0 {
		return nil, nil
	}
	var out []*store.Message
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE board_id = ANY($1) AND approved
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`, messageColumns, q.t.messages)
	if err := q.list(ctx, &out, query, pq.Array(boardIDs), limit(opts), offset(opts)); err != nil {
		return nil, fmt.Errorf("latest messages: %w", err)
	}
	return out, nil
}

func (q queries) TopicAuthors(ctx context.Context, topicID int64) (map[int64]int64, error) {
	var rows []struct {
		PosterID int64 `db:"poster_id"`
		N        int64 `db:"n"`
	}
	query := fmt.Sprintf(`
		SELECT poster_id, COUNT(*) AS n FROM %s
		WHERE topic_id = $1 AND poster_id > 0
		GROUP BY poster_id
	`, q.t.messages)
	if err := q.list(ctx, &rows, query, topicID); err != nil {
		return nil, fmt.Errorf("topic authors: %w", err)
	}
	authors := make(map[int64]int64, len(rows))
	for _, r := range rows {
		authors[r.PosterID] = r.N
	}
	return authors, nil
}

// =============================================================================
// Read state
// =============================================================================

func (q queries) TopicPointers(ctx context.Context, boardIDs []int64) ([]store.TopicPointer, error) {
	if len(boardIDs) == 0 {
		return nil, nil
	}
	var out []store.TopicPointer
	query := fmt.Sprintf(`
		SELECT id AS topic_id, board_id, last_message_id FROM %s
		WHERE board_id = ANY($1)
		ORDER BY last_message_id DESC, id DESC
	`, q.t.topics)
	if err := q.list(ctx, &out, query, pq.Array(boardIDs)); err != nil {
		return nil, fmt.Errorf("topic pointers: %w", err)
	}
	return out, nil
}

func (q queries) ReadLogs(ctx context.Context, memberID int64, topicIDs []int64) (map[int64]int64, error) {
	var rows []store.ReadLog
	var err error
	if topicIDs == nil {
		query := fmt.Sprintf(`SELECT member_id, topic_id, message_id FROM %s WHERE member_id = $1`, q.t.readLogs)
		err = q.list(ctx, &rows, query, memberID)
	} else {
		if len(topicIDs) == 0 {
			return map[int64]int64{}, nil
		}
		query := fmt.Sprintf(`
			SELECT member_id, topic_id, message_id FROM %s
			WHERE member_id = $1 AND topic_id = ANY($2)
		`, q.t.readLogs)
		err = q.list(ctx, &rows, query, memberID, pq.Array(topicIDs))
	}
	if err != nil {
		return nil, fmt.Errorf("read logs: %w", err)
	}
	logs := make(map[int64]int64, len(rows))
	for _, r := range rows {
		logs[r.TopicID] = r.MessageID
	}
	return logs, nil
}

func (q queries) BoardMarks(ctx context.Context, memberID int64) (map[int64]int64, error) {
	var rows []store.BoardMark
	query := fmt.Sprintf(`SELECT member_id, board_id, message_id FROM %s WHERE member_id = $1`, q.t.boardMarks)
	if err := q.list(ctx, &rows, query, memberID); err != nil {
		return nil, fmt.Errorf("board marks: %w", err)
	}
	marks := make(map[int64]int64, len(rows))
	for _, r := range rows {
		marks[r.BoardID] = r.MessageID
	}
	return marks, nil
}

// =============================================================================
// Polls
// =============================================================================

func (q queries) GetPoll(ctx context.Context, id int64) (*store.Poll, error) {
	if id <= 0 {
		return nil, store.ErrInvalidID
	}
	var p store.Poll
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, pollColumns, q.t.polls)
	if err := q.get(ctx, &p, query, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (q queries) PollChoices(ctx context.Context, pollID int64) ([]*store.PollChoice, error) {
	var out []*store.PollChoice
	query := fmt.Sprintf(`
		SELECT poll_id, choice_id, label, votes FROM %s
		WHERE poll_id = $1 ORDER BY choice_id
	`, q.t.choices)
	if err := q.list(ctx, &out, query, pollID); err != nil {
		return nil, fmt.Errorf("poll choices: %w", err)
	}
	return out, nil
}

func (q queries) MemberVotes(ctx context.Context, pollID, memberID int64) ([]int, error) {
	var out []int
	query := fmt.Sprintf(`
		SELECT choice_id FROM %s
		WHERE poll_id = $1 AND member_id = $2 ORDER BY choice_id
	`, q.t.votes)
	if err := q.list(ctx, &out, query, pollID, memberID); err != nil {
		return nil, fmt.Errorf("member votes: %w", err)
	}
	return out, nil
}

func (q queries) CountPollVotes(ctx context.Context, pollID int64) (int64, error) {
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE poll_id = $1`, q.t.votes)
	if err := q.get(ctx, &n, query, pollID); err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return n, nil
}

// =============================================================================
// Reports
// =============================================================================

func (q queries) GetReport(ctx context.Context, id int64) (*store.Report, error) {
	if id <= 0 {
		return nil, store.ErrInvalidID
	}
	var r store.Report
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, reportColumns, q.t.reports)
	if err := q.get(ctx, &r, query, id); err != nil {
		return nil, err
	}
	return &r, nil
}

func (q queries) FindOpenReport(ctx context.Context, messageID, reporterID int64) (*store.Report, error) {
	var r store.Report
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE message_id = $1 AND reporter_id = $2 AND NOT closed
	`, reportColumns, q.t.reports)
	if err := q.get(ctx, &r, query, messageID, reporterID); err != nil {
		return nil, err
	}
	return &r, nil
}

func (q queries) ListReports(ctx context.Context, status store.ReportStatus, opts store.ListOptions) ([]*store.Report, int64, error) {
	where := ""
	switch status {
	case store.ReportStatusOpen:
		where = "WHERE NOT closed"
	case store.ReportStatusClosed:
		where = "WHERE closed"
	}

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, q.t.reports, where)
	if err := q.get(ctx, &total, countQuery); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	var out []*store.Report
	query := fmt.Sprintf(`
		SELECT %s FROM %s %s
		ORDER BY id DESC
		LIMIT $1 OFFSET $2
	`, reportColumns, q.t.reports, where)
	if err := q.list(ctx, &out, query, limit(opts), offset(opts)); err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	return out, total, nil
}
