package store

import "time"

// Category groups boards on the forum index.
type Category struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Order       int    `db:"cat_order" json:"order"`
	CanCollapse bool   `db:"can_collapse" json:"can_collapse"`
}

// Board is a container for topics. Boards nest through ParentID (0 = top level)
// and are gated by MemberGroups, a comma-separated list of group ids.
type Board struct {
	ID            int64     `db:"id" json:"id"`
	CategoryID    int64     `db:"category_id" json:"category_id"`
	ParentID      int64     `db:"parent_id" json:"parent_id"`
	Name          string    `db:"name" json:"name"`
	Description   string    `db:"description" json:"description"`
	Order         int       `db:"board_order" json:"order"`
	MemberGroups  string    `db:"member_groups" json:"member_groups"`
	RedirectURL   string    `db:"redirect_url" json:"redirect_url,omitempty"`
	NumTopics     int64     `db:"num_topics" json:"num_topics"`
	NumPosts      int64     `db:"num_posts" json:"num_posts"`
	LastMessageID int64     `db:"last_message_id" json:"last_message_id"`
	LastUpdated   time.Time `db:"last_updated" json:"last_updated"`
}

// IsRedirect reports whether the board is a link board that holds no posts.
func (b *Board) IsRedirect() bool {
	return b.RedirectURL != ""
}

// Topic is a thread: one first message plus zero or more replies.
type Topic struct {
	ID             int64 `db:"id" json:"id"`
	BoardID        int64 `db:"board_id" json:"board_id"`
	FirstMessageID int64 `db:"first_message_id" json:"first_message_id"`
	LastMessageID  int64 `db:"last_message_id" json:"last_message_id"`
	StarterID      int64 `db:"starter_id" json:"starter_id"`
	PollID         int64 `db:"poll_id" json:"poll_id"`
	Sticky         bool  `db:"is_sticky" json:"sticky"`
	Locked         bool  `db:"is_locked" json:"locked"`
	NumReplies     int64 `db:"num_replies" json:"num_replies"`
	NumViews       int64 `db:"num_views" json:"num_views"`
}

// Pointer returns the read-state projection of the topic.
func (t *Topic) Pointer() TopicPointer {
	return TopicPointer{TopicID: t.ID, BoardID: t.BoardID, LastMessageID: t.LastMessageID}
}

// Message is a single post inside a topic.
type Message struct {
	ID          int64      `db:"id" json:"id"`
	TopicID     int64      `db:"topic_id" json:"topic_id"`
	BoardID     int64      `db:"board_id" json:"board_id"`
	PosterID    int64      `db:"poster_id" json:"poster_id"`
	PosterName  string     `db:"poster_name" json:"poster_name"`
	PosterEmail string     `db:"poster_email" json:"-"`
	Subject     string     `db:"subject" json:"subject"`
	Body        string     `db:"body" json:"body"`
	PostedAt    time.Time  `db:"posted_at" json:"posted_at"`
	ModifiedAt  *time.Time `db:"modified_at" json:"modified_at,omitempty"`
	ModifiedBy  string     `db:"modified_by" json:"modified_by,omitempty"`
	Approved    bool       `db:"approved" json:"approved"`
}

// Member holds the group membership the forum needs for access decisions.
// Credentials and profile data live with the identity collaborator.
type Member struct {
	ID               int64  `db:"id" json:"id"`
	Name             string `db:"name" json:"name"`
	PrimaryGroup     int    `db:"primary_group" json:"primary_group"`
	PostGroup        int    `db:"post_group" json:"post_group"`
	AdditionalGroups string `db:"additional_groups" json:"additional_groups"`
	Posts            int64  `db:"posts" json:"posts"`
}

// ReadLog records the last message a member has read in a topic.
type ReadLog struct {
	MemberID  int64 `db:"member_id"`
	TopicID   int64 `db:"topic_id"`
	MessageID int64 `db:"message_id"`
}

// BoardMark records the board's last message at the time a member marked it read.
type BoardMark struct {
	MemberID  int64 `db:"member_id"`
	BoardID   int64 `db:"board_id"`
	MessageID int64 `db:"message_id"`
}

// TopicPointer is the minimal projection needed to compute unread state.
type TopicPointer struct {
	TopicID       int64 `db:"topic_id" json:"topic_id"`
	BoardID       int64 `db:"board_id" json:"board_id"`
	LastMessageID int64 `db:"last_message_id" json:"last_message_id"`
}

// ResultVisibility controls when poll results are shown.
type ResultVisibility int

const (
	// ResultsAlwaysVisible shows results to everyone.
	ResultsAlwaysVisible ResultVisibility = 0
	// ResultsAfterVote shows results once the viewer voted or the poll expired.
	ResultsAfterVote ResultVisibility = 1
	// ResultsAfterExpiry shows results only once the poll expired.
	ResultsAfterExpiry ResultVisibility = 2
)

// Poll is a vote collection attached to a topic.
type Poll struct {
	ID           int64            `db:"id" json:"id"`
	TopicID      int64            `db:"topic_id" json:"topic_id"`
	Question     string           `db:"question" json:"question"`
	MemberID     int64            `db:"member_id" json:"member_id"`
	PosterName   string           `db:"poster_name" json:"poster_name"`
	MaxVotes     int              `db:"max_votes" json:"max_votes"`
	ExpiresAt    time.Time        `db:"expires_at" json:"expires_at"`
	HideResults  ResultVisibility `db:"hide_results" json:"hide_results"`
	ChangeVote   bool             `db:"change_vote" json:"change_vote"`
	VotingLocked bool             `db:"voting_locked" json:"voting_locked"`
}

// PollChoice is one option of a poll with its running tally.
type PollChoice struct {
	PollID   int64  `db:"poll_id" json:"poll_id"`
	ChoiceID int    `db:"choice_id" json:"choice_id"`
	Label    string `db:"label" json:"label"`
	Votes    int64  `db:"votes" json:"votes"`
}

// PollVote is one (member, choice) row in the vote log.
type PollVote struct {
	PollID   int64 `db:"poll_id"`
	MemberID int64 `db:"member_id"`
	ChoiceID int   `db:"choice_id"`
}

// Report is a member's complaint about a message.
type Report struct {
	ID         int64      `db:"id" json:"id"`
	MessageID  int64      `db:"message_id" json:"message_id"`
	TopicID    int64      `db:"topic_id" json:"topic_id"`
	BoardID    int64      `db:"board_id" json:"board_id"`
	ReporterID int64      `db:"reporter_id" json:"reporter_id"`
	Comment    string     `db:"comment" json:"comment"`
	Closed     bool       `db:"closed" json:"closed"`
	ClosedBy   int64      `db:"closed_by" json:"closed_by"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	ClosedAt   *time.Time `db:"closed_at" json:"closed_at,omitempty"`
}

// TopicTotals is the authoritative message count, first message and latest
// approved message of a topic.
type TopicTotals struct {
	Messages       int64 `db:"messages"`
	FirstMessageID int64 `db:"first_message_id"`
	LastMessageID  int64 `db:"last_message_id"`
}

// BoardTotals is the authoritative topic/post count and latest message of a board.
type BoardTotals struct {
	Topics        int64     `db:"topics"`
	Posts         int64     `db:"posts"`
	LastMessageID int64     `db:"last_message_id"`
	LastPostedAt  time.Time `db:"last_posted_at"`
}

// ForumStats holds forum-wide counts.
type ForumStats struct {
	Categories int64 `db:"categories" json:"categories"`
	Boards     int64 `db:"boards" json:"boards"`
	Topics     int64 `db:"topics" json:"topics"`
	Posts      int64 `db:"posts" json:"posts"`
	Members    int64 `db:"members" json:"members"`
}
