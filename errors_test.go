package forum

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rbaliyan/forum/store"
)

func TestErrorClasses(t *testing.T) {
	tests := []struct {
		err                                    error
		notFound, forbidden, conflict, invalid bool
	}{
		{ErrBoardNotFound, true, false, false, false},
		{ErrTopicNotFound, true, false, false, false},
		{ErrIdentityNotFound, true, false, false, false},
		{ErrAccessDenied, false, true, false, false},
		{ErrLoginRequired, false, true, false, false},
		{ErrNotModerator, false, true, false, false},
		{ErrNotOwner, false, true, false, false},
		{ErrTopicLocked, false, false, true, false},
		{ErrDuplicateReport, false, false, true, false},
		{ErrTooManyChoices, false, false, true, false},
		{ErrInvalidChoice, false, false, false, true},
		{ErrRedirectBoard, false, false, false, true},
		{&ValidationError{Field: "body", Message: "cannot be empty"}, false, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound = %v", got)
			}
			if got := IsForbidden(tt.err); got != tt.forbidden {
				t.Errorf("IsForbidden = %v", got)
			}
			if got := IsConflict(tt.err); got != tt.conflict {
				t.Errorf("IsConflict = %v", got)
			}
			if got := IsInvalid(tt.err); got != tt.invalid {
				t.Errorf("IsInvalid = %v", got)
			}
		})
	}

	t.Run("store errors", func(t *testing.T) {
		if !errors.Is(ErrBoardNotFound, store.ErrNotFound) {
			t.Error("not-found sentinels should match store.ErrNotFound")
		}
		if !errors.Is(ErrDuplicateReport, store.ErrDuplicateEntry) {
			t.Error("ErrDuplicateReport should match store.ErrDuplicateEntry")
		}
		if !errors.Is(ErrNotConnected, store.ErrNotConnected) {
			t.Error("ErrNotConnected should match store.ErrNotConnected")
		}
	})
}

func TestInternalError(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&InternalError{Op: "create_post", Err: cause})

	if !errors.Is(err, ErrInternal) || !errors.Is(err, cause) {
		t.Error("internal errors should match ErrInternal and the cause")
	}
	if IsNotFound(err) || IsInvalid(err) {
		t.Error("internal errors belong to no domain class")
	}
	if want := "forum: create_post: connection reset"; err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestEventPublishError(t *testing.T) {
	cause := errors.New("transport down")
	err := fmt.Errorf("op: %w", &EventPublishError{Event: "PostCreated", EntityID: 42, Err: cause})

	epe, ok := IsEventPublishError(err)
	if !ok {
		t.Fatal("expected an EventPublishError")
	}
	if epe.Event != "PostCreated" || epe.EntityID != 42 {
		t.Errorf("unexpected details: %+v", epe)
	}
	if !errors.Is(err, cause) {
		t.Error("should unwrap to the transport error")
	}
	if _, ok := IsEventPublishError(cause); ok {
		t.Error("plain errors are not publish errors")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"not found", ErrTopicNotFound, false},
		{"forbidden", ErrAccessDenied, false},
		{"conflict", ErrTopicLocked, false},
		{"invalid", &ValidationError{Field: "subject"}, false},
		{"duplicate entry", store.ErrDuplicateEntry, false},
		{"canceled", context.Canceled, false},
		{"not connected", ErrNotConnected, true},
		{"transaction failed", store.ErrTransactionFailed, true},
		{"deadline", context.DeadlineExceeded, true},
		{"internal", &InternalError{Op: "x", Err: errors.New("boom")}, true},
		{"unknown", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestFail(t *testing.T) {
	s := &service{logger: discardLogger()}

	if err := s.fail("op", nil); err != nil {
		t.Errorf("nil should stay nil, got %v", err)
	}
	if err := s.fail("op", ErrTopicLocked); err != ErrTopicLocked {
		t.Errorf("domain errors pass through, got %v", err)
	}
	epe := &EventPublishError{Event: "TopicCreated", Err: errors.New("down")}
	if err := s.fail("op", epe); err != epe {
		t.Errorf("publish errors pass through, got %v", err)
	}
	if err := s.fail("op", fmt.Errorf("wrapped: %w", store.ErrNotConnected)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("store disconnects map to ErrNotConnected, got %v", err)
	}

	cause := errors.New("disk full")
	err := s.fail("create_topic", cause, "board_id", 1)
	var ie *InternalError
	if !errors.As(err, &ie) || ie.Op != "create_topic" || !errors.Is(err, cause) {
		t.Errorf("expected an InternalError for create_topic, got %v", err)
	}
}

func TestNotFound(t *testing.T) {
	if err := notFound(store.ErrNotFound, ErrPollNotFound); err != ErrPollNotFound {
		t.Errorf("expected ErrPollNotFound, got %v", err)
	}
	other := errors.New("other")
	if err := notFound(other, ErrPollNotFound); err != other {
		t.Errorf("other errors pass through, got %v", err)
	}
	if err := notFound(nil, ErrPollNotFound); err != nil {
		t.Errorf("nil stays nil, got %v", err)
	}
}
