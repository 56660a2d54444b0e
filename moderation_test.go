package forum

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestReportDedup(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	fx := seedForum(t, svc)
	alice := svc.Client(aliceID)
	bob := svc.Client(bobID)
	mod := svc.Client(modID)

	topic := mustTopic(t, alice, fx.public.ID, "questionable")

	first, err := bob.Report(ctx, topic.FirstMessageID, "  spam  ")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if first.Comment != "spam" || first.BoardID != fx.public.ID || first.Closed {
		t.Errorf("unexpected report: %+v", first)
	}

	_, err = bob.Report(ctx, topic.FirstMessageID, "again")
	if !errors.Is(err, ErrDuplicateReport) {
		t.Fatalf("expected ErrDuplicateReport, got %v", err)
	}
	if !IsConflict(err) {
		t.Error("duplicate report should be a conflict")
	}

	// Another member may report the same message.
	if _, err := svc.Client(outsiderID).Report(ctx, topic.FirstMessageID, ""); err != nil {
		t.Errorf("second reporter: %v", err)
	}

	if err := mod.CloseReport(ctx, first.ID); err != nil {
		t.Fatalf("close report: %v", err)
	}
	if err := mod.CloseReport(ctx, first.ID); !errors.Is(err, ErrReportClosed) {
		t.Errorf("expected ErrReportClosed, got %v", err)
	}

	// A closed report does not block a new one.
	if _, err := bob.Report(ctx, topic.FirstMessageID, "still spam"); err != nil {
		t.Errorf("report after close: %v", err)
	}
}

func TestReportValidation(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, WithMaxCommentLength(10))
	fx := seedForum(t, svc)
	topic := mustTopic(t, svc.Client(bobID), fx.staff.ID, "staff only")
	bob := svc.Client(bobID)

	t.Run("comment too long", func(t *testing.T) {
		_, err := bob.Report(ctx, topic.FirstMessageID, strings.Repeat("x", 11))
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != "comment" {
			t.Errorf("expected comment ValidationError, got %v", err)
		}
	})

	t.Run("missing message", func(t *testing.T) {
		if _, err := bob.Report(ctx, 9999, ""); !errors.Is(err, ErrMessageNotFound) {
			t.Errorf("expected ErrMessageNotFound, got %v", err)
		}
	})

	t.Run("message in hidden board", func(t *testing.T) {
		_, err := svc.Client(outsiderID).Report(ctx, topic.FirstMessageID, "")
		if !errors.Is(err, ErrAccessDenied) {
			t.Errorf("expected ErrAccessDenied, got %v", err)
		}
	})

	t.Run("guest", func(t *testing.T) {
		if _, err := svc.Client(0).Report(ctx, topic.FirstMessageID, ""); !errors.Is(err, ErrLoginRequired) {
			t.Errorf("expected ErrLoginRequired, got %v", err)
		}
	})
}

func TestListReports(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t)
	fx := seedForum(t, svc)
	alice := svc.Client(aliceID)
	mod := svc.Client(modID)

	topic := mustTopic(t, alice, fx.public.ID, "reported")
	reply := mustReply(t, alice, topic.ID, "reported too")
	r1, err := svc.Client(bobID).Report(ctx, topic.FirstMessageID, "one")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if _, err := svc.Client(bobID).Report(ctx, reply.ID, "two"); err != nil {
		t.Fatalf("report: %v", err)
	}
	if err := mod.CloseReport(ctx, r1.ID); err != nil {
		t.Fatalf("close: %v", err)
	}

	t.Run("members are refused", func(t *testing.T) {
		if _, err := alice.ListReports(ctx, ReportQuery{}); !errors.Is(err, ErrNotModerator) {
			t.Errorf("expected ErrNotModerator, got %v", err)
		}
		if err := alice.CloseReport(ctx, r1.ID); !errors.Is(err, ErrNotModerator) {
			t.Errorf("expected ErrNotModerator, got %v", err)
		}
	})

	t.Run("status filter", func(t *testing.T) {
		tests := []struct {
			status ReportStatus
			want   int64
		}{
			{ReportStatusAny, 2},
			{ReportStatusOpen, 1},
			{ReportStatusClosed, 1},
		}
		for _, tt := range tests {
			list, err := mod.ListReports(ctx, ReportQuery{Status: tt.status})
			if err != nil {
				t.Fatalf("list reports: %v", err)
			}
			if list.Total != tt.want || int64(len(list.Reports)) != tt.want {
				t.Errorf("status %d: expected %d reports, got %d (%d listed)", tt.status, tt.want, list.Total, len(list.Reports))
			}
		}
	})

	t.Run("missing report", func(t *testing.T) {
		if err := mod.CloseReport(ctx, 9999); !errors.Is(err, ErrReportNotFound) {
			t.Errorf("expected ErrReportNotFound, got %v", err)
		}
	})
}
