package forum

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rbaliyan/forum/store/memory"
)

func TestActivityDescriptor(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		in := ActivityDescriptor{Action: ActionViewTopic, BoardID: 3, TopicID: 9}
		s, err := in.Encode()
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if s != `{"action":"topic","board":3,"topic":9}` {
			t.Errorf("unexpected encoding %s", s)
		}
		out, err := ParseActivity(s)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if out != in {
			t.Errorf("expected %+v, got %+v", in, out)
		}
	})

	t.Run("zero ids are omitted", func(t *testing.T) {
		s, err := ActivityDescriptor{Action: ActionViewIndex}.Encode()
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if s != `{"action":"index"}` {
			t.Errorf("unexpected encoding %s", s)
		}
	})

	tests := []struct {
		name string
		in   string
	}{
		{"not json", "board 3"},
		{"missing action", `{"board":3}`},
		{"wrong type", `{"action":"topic","topic":"nine"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseActivity(tt.in)
			if !errors.Is(err, ErrInvalidActivity) {
				t.Errorf("expected ErrInvalidActivity, got %v", err)
			}
		})
	}

	if _, err := (ActivityDescriptor{}).Encode(); !errors.Is(err, ErrInvalidActivity) {
		t.Errorf("empty action: expected ErrInvalidActivity, got %v", err)
	}
}

func TestRecordActivity(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	st := memory.New()
	svc := setupTestService(t, WithStore(st), WithClock(clock.Now))
	fx := seedForum(t, svc)
	alice := svc.Client(aliceID)

	topic := mustTopic(t, alice, fx.public.ID, "active")
	action, at, ok := st.Activity(aliceID)
	if !ok {
		t.Fatal("posting should record activity")
	}
	if !at.Equal(clock.Now()) {
		t.Errorf("expected activity at %v, got %v", clock.Now(), at)
	}
	a, err := ParseActivity(action)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if a.Action != ActionPost || a.TopicID != topic.ID {
		t.Errorf("unexpected activity %+v", a)
	}

	clock.Advance(time.Minute)
	if _, err := alice.Categories(ctx); err != nil {
		t.Fatalf("categories: %v", err)
	}
	action, at, _ = st.Activity(aliceID)
	if a, _ := ParseActivity(action); a.Action != ActionViewIndex {
		t.Errorf("expected index activity, got %s", action)
	}
	if !at.Equal(clock.Now()) {
		t.Errorf("expected the activity time to advance, got %v", at)
	}

	pollID := setupPoll(t, svc, fx.public.ID, PollSpec{Question: "Tea?", Choices: []string{"yes", "no"}})
	if _, err := svc.Client(bobID).Vote(ctx, pollID, []int{0}); err != nil {
		t.Fatalf("vote: %v", err)
	}
	action, _, _ = st.Activity(bobID)
	if a, err := ParseActivity(action); err != nil || a.Action != ActionVote || a.TopicID == 0 {
		t.Errorf("expected vote activity with a topic, got %q", action)
	}

	// Guests are not tracked.
	if _, err := svc.Client(0).Categories(ctx); err != nil {
		t.Fatalf("categories: %v", err)
	}
	if _, _, ok := st.Activity(0); ok {
		t.Error("guest activity should not be recorded")
	}
}
