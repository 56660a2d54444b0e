package forum

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rbaliyan/event/v3"
)

// Event names for forum events.
const (
	EventNameTopicCreated = "forum.topic.created"
	EventNamePostCreated  = "forum.post.created"
	EventNamePostUpdated  = "forum.post.updated"
	EventNamePostDeleted  = "forum.post.deleted"
	EventNameTopicDeleted = "forum.topic.deleted"
	EventNameTopicMoved   = "forum.topic.moved"
	EventNameTopicUpdated = "forum.topic.updated"
	EventNamePollCreated  = "forum.poll.created"
	EventNameVoteCast     = "forum.poll.vote_cast"
	EventNameReportFiled  = "forum.report.filed"
	EventNameReportClosed = "forum.report.closed"
)

// TopicCreatedEvent is published when a new topic is started.
type TopicCreatedEvent struct {
	EventID   string    `json:"event_id"`
	TopicID   int64     `json:"topic_id"`
	BoardID   int64     `json:"board_id"`
	MessageID int64     `json:"message_id"`
	MemberID  int64     `json:"member_id"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
}

// PostCreatedEvent is published when a reply is added to a topic.
type PostCreatedEvent struct {
	EventID   string    `json:"event_id"`
	MessageID int64     `json:"message_id"`
	TopicID   int64     `json:"topic_id"`
	BoardID   int64     `json:"board_id"`
	MemberID  int64     `json:"member_id"`
	PostedAt  time.Time `json:"posted_at"`
}

// PostUpdatedEvent is published when a message is edited.
type PostUpdatedEvent struct {
	EventID   string    `json:"event_id"`
	MessageID int64     `json:"message_id"`
	TopicID   int64     `json:"topic_id"`
	MemberID  int64     `json:"member_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostDeletedEvent is published when a reply is removed.
type PostDeletedEvent struct {
	EventID   string    `json:"event_id"`
	MessageID int64     `json:"message_id"`
	TopicID   int64     `json:"topic_id"`
	BoardID   int64     `json:"board_id"`
	MemberID  int64     `json:"member_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// TopicDeletedEvent is published when a topic is removed together with its messages.
type TopicDeletedEvent struct {
	EventID   string    `json:"event_id"`
	TopicID   int64     `json:"topic_id"`
	BoardID   int64     `json:"board_id"`
	Messages  int64     `json:"messages"`
	MemberID  int64     `json:"member_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// TopicMovedEvent is published when a topic moves between boards.
type TopicMovedEvent struct {
	EventID     string    `json:"event_id"`
	TopicID     int64     `json:"topic_id"`
	FromBoardID int64     `json:"from_board_id"`
	ToBoardID   int64     `json:"to_board_id"`
	MemberID    int64     `json:"member_id"`
	MovedAt     time.Time `json:"moved_at"`
}

// TopicUpdatedEvent is published when a topic is locked, unlocked, stuck or unstuck.
type TopicUpdatedEvent struct {
	EventID   string    `json:"event_id"`
	TopicID   int64     `json:"topic_id"`
	Sticky    bool      `json:"sticky"`
	Locked    bool      `json:"locked"`
	MemberID  int64     `json:"member_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PollCreatedEvent is published when a poll is attached to a topic.
type PollCreatedEvent struct {
	EventID   string    `json:"event_id"`
	PollID    int64     `json:"poll_id"`
	TopicID   int64     `json:"topic_id"`
	MemberID  int64     `json:"member_id"`
	CreatedAt time.Time `json:"created_at"`
}

// VoteCastEvent is published when a member votes or changes their vote.
type VoteCastEvent struct {
	EventID   string    `json:"event_id"`
	PollID    int64     `json:"poll_id"`
	MemberID  int64     `json:"member_id"`
	ChoiceIDs []int     `json:"choice_ids"`
	CastAt    time.Time `json:"cast_at"`
}

// ReportFiledEvent is published when a member reports a message.
type ReportFiledEvent struct {
	EventID    string    `json:"event_id"`
	ReportID   int64     `json:"report_id"`
	MessageID  int64     `json:"message_id"`
	BoardID    int64     `json:"board_id"`
	ReporterID int64     `json:"reporter_id"`
	FiledAt    time.Time `json:"filed_at"`
}

// ReportClosedEvent is published when a moderator closes a report.
type ReportClosedEvent struct {
	EventID  string    `json:"event_id"`
	ReportID int64     `json:"report_id"`
	ClosedBy int64     `json:"closed_by"`
	ClosedAt time.Time `json:"closed_at"`
}

// ServiceEvents provides access to per-service event instances.
// Each service creates its own events bound to its own event bus,
// enabling independent event routing and parallel testing.
//
// Subscribe to events:
//
//	svc.Events().TopicCreated.Subscribe(ctx, handler)
//	svc.Events().ReportFiled.Subscribe(ctx, handler)
type ServiceEvents struct {
	TopicCreated event.Event[TopicCreatedEvent]
	PostCreated  event.Event[PostCreatedEvent]
	PostUpdated  event.Event[PostUpdatedEvent]
	PostDeleted  event.Event[PostDeletedEvent]
	TopicDeleted event.Event[TopicDeletedEvent]
	TopicMoved   event.Event[TopicMovedEvent]
	TopicUpdated event.Event[TopicUpdatedEvent]
	PollCreated  event.Event[PollCreatedEvent]
	VoteCast     event.Event[VoteCastEvent]
	ReportFiled  event.Event[ReportFiledEvent]
	ReportClosed event.Event[ReportClosedEvent]
}

// newServiceEvents creates per-service event instances with a unique name prefix.
func newServiceEvents(namePrefix string) *ServiceEvents {
	return &ServiceEvents{
		TopicCreated: event.New[TopicCreatedEvent](namePrefix + "." + EventNameTopicCreated),
		PostCreated:  event.New[PostCreatedEvent](namePrefix + "." + EventNamePostCreated),
		PostUpdated:  event.New[PostUpdatedEvent](namePrefix + "." + EventNamePostUpdated),
		PostDeleted:  event.New[PostDeletedEvent](namePrefix + "." + EventNamePostDeleted),
		TopicDeleted: event.New[TopicDeletedEvent](namePrefix + "." + EventNameTopicDeleted),
		TopicMoved:   event.New[TopicMovedEvent](namePrefix + "." + EventNameTopicMoved),
		TopicUpdated: event.New[TopicUpdatedEvent](namePrefix + "." + EventNameTopicUpdated),
		PollCreated:  event.New[PollCreatedEvent](namePrefix + "." + EventNamePollCreated),
		VoteCast:     event.New[VoteCastEvent](namePrefix + "." + EventNameVoteCast),
		ReportFiled:  event.New[ReportFiledEvent](namePrefix + "." + EventNameReportFiled),
		ReportClosed: event.New[ReportClosedEvent](namePrefix + "." + EventNameReportClosed),
	}
}

// registerServiceEvents registers per-service events with the given bus.
func registerServiceEvents(ctx context.Context, bus *event.Bus, events *ServiceEvents) error {
	regs := []struct {
		name     string
		register func() error
	}{
		{"TopicCreated", func() error { return event.Register(ctx, bus, events.TopicCreated) }},
		{"PostCreated", func() error { return event.Register(ctx, bus, events.PostCreated) }},
		{"PostUpdated", func() error { return event.Register(ctx, bus, events.PostUpdated) }},
		{"PostDeleted", func() error { return event.Register(ctx, bus, events.PostDeleted) }},
		{"TopicDeleted", func() error { return event.Register(ctx, bus, events.TopicDeleted) }},
		{"TopicMoved", func() error { return event.Register(ctx, bus, events.TopicMoved) }},
		{"TopicUpdated", func() error { return event.Register(ctx, bus, events.TopicUpdated) }},
		{"PollCreated", func() error { return event.Register(ctx, bus, events.PollCreated) }},
		{"VoteCast", func() error { return event.Register(ctx, bus, events.VoteCast) }},
		{"ReportFiled", func() error { return event.Register(ctx, bus, events.ReportFiled) }},
		{"ReportClosed", func() error { return event.Register(ctx, bus, events.ReportClosed) }},
	}
	for _, r := range regs {
		if err := r.register(); err != nil {
			return fmt.Errorf("register %s: %w", r.name, err)
		}
	}
	return nil
}

// newEventID returns a unique id for a published event.
func newEventID() string {
	return uuid.NewString()
}

// publish sends data on ev. The mutation it reports has already committed:
// unless event errors are fatal the failure is handed to the failure handler
// and nil is returned.
func publish[T any](ctx context.Context, s *service, name string, entityID int64, ev event.Event[T], data T) error {
	err := ev.Publish(ctx, data)
	if err == nil {
		return nil
	}
	if s.opts.eventErrorsFatal {
		return &EventPublishError{Event: name, EntityID: entityID, Err: err}
	}
	s.opts.safeEventPublishFailure(name, err)
	return nil
}
