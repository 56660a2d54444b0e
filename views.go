package forum

import (
	"time"

	"github.com/rbaliyan/forum/store"
)

// CategoryView is a category with the boards the viewer may see.
type CategoryView struct {
	Category *store.Category `json:"category"`
	Boards   []*BoardView    `json:"boards"`
}

// BoardView is a board in the index tree.
type BoardView struct {
	Board       *store.Board    `json:"board"`
	Unread      bool            `json:"unread"`
	LastMessage *MessagePreview `json:"last_message,omitempty"`
	Children    []*BoardView    `json:"children,omitempty"`
}

// MessagePreview is the summary of a message shown in listings.
type MessagePreview struct {
	ID         int64     `json:"id"`
	TopicID    int64     `json:"topic_id"`
	BoardID    int64     `json:"board_id"`
	Subject    string    `json:"subject"`
	PosterID   int64     `json:"poster_id"`
	PosterName string    `json:"poster_name"`
	PostedAt   time.Time `json:"posted_at"`
}

func previewOf(m *store.Message) *MessagePreview {
	if m == nil {
		return nil
	}
	return &MessagePreview{
		ID:         m.ID,
		TopicID:    m.TopicID,
		BoardID:    m.BoardID,
		Subject:    m.Subject,
		PosterID:   m.PosterID,
		PosterName: m.PosterName,
		PostedAt:   m.PostedAt,
	}
}

// TopicSummary is a topic row of a board page or unread list.
type TopicSummary struct {
	Topic        *store.Topic    `json:"topic"`
	FirstMessage *MessagePreview `json:"first_message,omitempty"`
	LastMessage  *MessagePreview `json:"last_message,omitempty"`
	Unread       bool            `json:"unread"`
}

// BoardPage is one page of a board's topics.
type BoardPage struct {
	Board    *store.Board    `json:"board"`
	Children []*BoardView    `json:"children,omitempty"`
	Topics   []*TopicSummary `json:"topics"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// TopicQuery selects a page of a topic's messages.
// A zero Order means oldest first.
type TopicQuery struct {
	Page     int
	PageSize int
	Order    store.SortOrder
}

// MessageView is a message with its poster's identity and rendered body.
type MessageView struct {
	Message  *store.Message `json:"message"`
	Poster   *Identity      `json:"poster,omitempty"`
	Rendered string         `json:"rendered,omitempty"`
}

// TopicPage is one page of a topic's messages.
type TopicPage struct {
	Topic    *store.Topic    `json:"topic"`
	Board    *store.Board    `json:"board"`
	Messages []*MessageView  `json:"messages"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Order    store.SortOrder `json:"order"`

	// Poll is the viewer's view of the topic's poll, if any. It is never cached.
	Poll *PollView `json:"poll,omitempty"`
}

// TopicList is a page of topic summaries.
type TopicList struct {
	Topics   []*TopicSummary `json:"topics"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}
