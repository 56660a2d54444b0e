package forum

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rbaliyan/forum/store"
)

// Activity actions.
const (
	ActionViewIndex = "index"
	ActionViewBoard = "board"
	ActionViewTopic = "topic"
	ActionPost      = "post"
	ActionVote      = "vote"
)

// ActivityDescriptor is the "what the member is doing" value stored with
// the member's last-seen time.
type ActivityDescriptor struct {
	Action  string `json:"action"`
	BoardID int64  `json:"board,omitempty"`
	TopicID int64  `json:"topic,omitempty"`
}

// Encode returns the JSON form stored by the gateway.
func (a ActivityDescriptor) Encode() (string, error) {
	if a.Action == "" {
		return "", fmt.Errorf("%w: empty action", ErrInvalidActivity)
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseActivity decodes a stored descriptor.
func ParseActivity(s string) (ActivityDescriptor, error) {
	var a ActivityDescriptor
	if err := json.Unmarshal([]byte(s), &a); err != nil {
		return ActivityDescriptor{}, fmt.Errorf("%w: %v", ErrInvalidActivity, err)
	}
	if a.Action == "" {
		return ActivityDescriptor{}, fmt.Errorf("%w: empty action", ErrInvalidActivity)
	}
	return a, nil
}

// recordActivity stores the member's latest action. Failures are logged only.
func (s *service) recordActivity(ctx context.Context, memberID int64, a ActivityDescriptor) {
	if memberID == 0 {
		return
	}
	action, err := a.Encode()
	if err != nil {
		s.logger.Warn("activity not recorded", "error", err, "member_id", memberID)
		return
	}
	at := s.now()
	err = s.store.Atomic(ctx, func(tx store.Tx) error {
		return tx.TouchActivity(ctx, memberID, action, at)
	})
	if err != nil {
		s.logger.Warn("activity not recorded", "error", err, "member_id", memberID, "action", a.Action)
	}
}
