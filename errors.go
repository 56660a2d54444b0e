package forum

import (
	"context"
	"errors"
	"fmt"

	"github.com/rbaliyan/forum/store"
)

// forumError is a sentinel that belongs to one or more error classes.
type forumError struct {
	msg   string
	kinds []error
}

func newError(msg string, kinds ...error) error {
	return &forumError{msg: "forum: " + msg, kinds: kinds}
}

func (e *forumError) Error() string {
	return e.msg
}

func (e *forumError) Unwrap() []error {
	return e.kinds
}

// Error classes. Every error returned by the forum belongs to at most one of
// them; use errors.Is or the Is* helpers to classify.
var (
	// ErrNotFound is returned when a board, topic, message, poll or report is absent.
	// Wraps store.ErrNotFound for consistent error checking.
	ErrNotFound = fmt.Errorf("forum: %w", store.ErrNotFound)

	// ErrForbidden is returned when an access, ownership or moderator check fails.
	ErrForbidden = errors.New("forum: forbidden")

	// ErrConflict is returned when the request conflicts with current state.
	ErrConflict = errors.New("forum: conflict")

	// ErrInvalid is returned for malformed input.
	ErrInvalid = errors.New("forum: invalid")

	// ErrUnavailable is returned when the service or its store cannot serve requests.
	ErrUnavailable = errors.New("forum: unavailable")

	// ErrInternal is returned for unexpected store failures.
	ErrInternal = errors.New("forum: internal error")
)

// Sentinel errors for the forum package.
var (
	// ErrStoreRequired is returned when no store is configured.
	ErrStoreRequired = errors.New("forum: store is required")

	// ErrNotConnected is returned when operations are attempted before Connect().
	// Wraps store.ErrNotConnected for consistent error checking.
	ErrNotConnected = newError("not connected", ErrUnavailable, store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps store.ErrAlreadyConnected for consistent error checking.
	ErrAlreadyConnected = fmt.Errorf("forum: %w", store.ErrAlreadyConnected)

	ErrBoardNotFound   = newError("board not found", ErrNotFound)
	ErrTopicNotFound   = newError("topic not found", ErrNotFound)
	ErrMessageNotFound = newError("message not found", ErrNotFound)
	ErrPollNotFound    = newError("poll not found", ErrNotFound)
	ErrReportNotFound  = newError("report not found", ErrNotFound)

	// ErrIdentityNotFound is returned by identity resolvers for unknown members.
	ErrIdentityNotFound = newError("identity not found", ErrNotFound)

	// ErrAccessDenied is returned when the viewer's groups do not grant access to a board.
	ErrAccessDenied = newError("access denied", ErrForbidden)

	// ErrLoginRequired is returned when a guest attempts a member-only operation.
	ErrLoginRequired = newError("login required", ErrForbidden)

	// ErrNotModerator is returned when a moderator-only operation is attempted.
	ErrNotModerator = newError("moderator permission required", ErrForbidden)

	// ErrNotOwner is returned when a member edits content they do not own.
	ErrNotOwner = newError("not the owner", ErrForbidden)

	// ErrTopicLocked is returned when posting to or editing in a locked topic.
	ErrTopicLocked = newError("topic is locked", ErrConflict)

	// ErrTopicHasPoll is returned when attaching a second poll to a topic.
	ErrTopicHasPoll = newError("topic already has a poll", ErrConflict)

	// ErrAlreadyVoted is returned when re-voting on a poll that does not allow vote changes.
	ErrAlreadyVoted = newError("already voted", ErrConflict)

	// ErrTooManyChoices is returned when a vote selects more choices than the poll allows.
	ErrTooManyChoices = newError("too many choices", ErrConflict)

	// ErrPollExpired is returned when voting on an expired poll.
	ErrPollExpired = newError("poll expired", ErrConflict)

	// ErrVotingLocked is returned when voting on a locked poll.
	ErrVotingLocked = newError("voting is locked", ErrConflict)

	// ErrDuplicateReport is returned when a member reports the same message twice while
	// the first report is open. Wraps store.ErrDuplicateEntry.
	ErrDuplicateReport = newError("duplicate report", ErrConflict, store.ErrDuplicateEntry)

	// ErrReportClosed is returned when closing a report that is already closed.
	ErrReportClosed = newError("report already closed", ErrConflict)

	// ErrInvalidMember is returned by clients created with a negative member ID.
	ErrInvalidMember = newError("invalid member id", ErrInvalid)

	// ErrInvalidChoice is returned when a vote names a choice the poll does not have.
	ErrInvalidChoice = newError("invalid poll choice", ErrInvalid)

	// ErrRedirectBoard is returned when posting to a link board.
	ErrRedirectBoard = newError("board is a redirect", ErrInvalid)

	// ErrInvalidActivity is returned when an activity descriptor cannot be decoded.
	ErrInvalidActivity = newError("invalid activity", ErrInvalid)
)

// ValidationError provides details about a validation failure.
type ValidationError struct {
	Field   string // The field that failed validation
	Message string // Human-readable error message
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("forum: validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

// InternalError wraps an unexpected store failure with the operation that hit it.
// It matches both ErrInternal and the underlying cause.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("forum: %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() []error {
	return []error{ErrInternal, e.Err}
}

// EventPublishError is returned when event publishing fails but the operation succeeded.
// Only returned when WithEventErrorsFatal(true) is set.
type EventPublishError struct {
	Event    string // The event name (e.g., "PostCreated")
	EntityID int64  // The topic, message, poll or report the event was for
	Err      error  // The underlying publish error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("forum: event %s publish failed for %d: %v", e.Event, e.EntityID, e.Err)
}

func (e *EventPublishError) Unwrap() error {
	return e.Err
}

// IsEventPublishError checks if the error is an event publish error and returns details.
func IsEventPublishError(err error) (*EventPublishError, bool) {
	var epe *EventPublishError
	if errors.As(err, &epe) {
		return epe, true
	}
	return nil, false
}

// Error classification helpers.

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsRetryableError determines if an error is retryable.
// Domain errors (not found, forbidden, conflict, invalid) are final; transient
// store failures and unavailability may succeed later.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	for _, final := range []error{ErrNotFound, ErrForbidden, ErrConflict, ErrInvalid, store.ErrNotFound, store.ErrDuplicateEntry} {
		if errors.Is(err, final) {
			return false
		}
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, store.ErrNotConnected) ||
		errors.Is(err, store.ErrTransactionFailed) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrInternal)
}

// isDomainError reports whether err is already classified for the caller.
func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalid) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// notFound maps store.ErrNotFound to the given forum sentinel.
func notFound(err, sentinel error) error {
	if store.IsNotFound(err) {
		return sentinel
	}
	return err
}
