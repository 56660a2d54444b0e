package forum

import (
	"context"
	"errors"
	"strings"

	"github.com/rbaliyan/forum/store"
)

// ReportQuery selects a page of reports.
type ReportQuery struct {
	Status   store.ReportStatus
	Page     int
	PageSize int
}

// ReportList is a page of reports.
type ReportList struct {
	Reports  []*store.Report `json:"reports"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// requireModerator fails unless the member belongs to a moderator group.
func (f *memberForum) requireModerator(ctx context.Context) error {
	if f.memberID == 0 {
		return ErrNotModerator
	}
	ok, err := f.svc.access.moderator(ctx, f.memberID)
	if err != nil {
		return f.svc.fail("moderator_check", err, "member_id", f.memberID)
	}
	if !ok {
		return ErrNotModerator
	}
	return nil
}

// Report files a complaint about a message. A member may hold one open report
// per message.
func (f *memberForum) Report(ctx context.Context, messageID int64, comment string) (_ *store.Report, err error) {
	if err := f.checkMember(); err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	if err := checkComment(comment, f.svc.opts.limits()); err != nil {
		return nil, err
	}
	ctx, done := f.svc.track(ctx, "forum.report", f.attrs(messageAttr(messageID))...)
	defer func() { done(err) }()

	release, err := f.svc.acquireWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	msg, err := f.svc.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, f.svc.fail("report", notFound(err, ErrMessageNotFound), "message_id", messageID)
	}
	if err := f.checkBoard(ctx, msg.BoardID, f.viewer(ctx)); err != nil {
		return nil, err
	}

	now := f.svc.now()
	var report *store.Report
	err = f.svc.atomic(ctx, func(tx store.Tx) error {
		var err error
		report, err = tx.InsertReport(ctx, &store.Report{
			MessageID:  msg.ID,
			TopicID:    msg.TopicID,
			BoardID:    msg.BoardID,
			ReporterID: f.memberID,
			Comment:    comment,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		if store.IsDuplicateEntry(err) {
			return ErrDuplicateReport
		}
		return err
	})
	if err != nil {
		return nil, f.svc.fail("report", err, "message_id", messageID, "member_id", f.memberID)
	}

	err = publish(ctx, f.svc, "ReportFiled", report.ID, f.svc.events.ReportFiled, ReportFiledEvent{
		EventID:    newEventID(),
		ReportID:   report.ID,
		MessageID:  msg.ID,
		BoardID:    msg.BoardID,
		ReporterID: f.memberID,
		FiledAt:    now,
	})
	return report, err
}

// ListReports returns a page of reports, newest first. Moderators only.
func (f *memberForum) ListReports(ctx context.Context, q ReportQuery) (_ *ReportList, err error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	ctx, done := f.svc.track(ctx, "forum.list_reports", f.attrs()...)
	defer func() { done(err) }()

	if err := f.requireModerator(ctx); err != nil {
		return nil, err
	}
	page, size := f.svc.opts.page(q.Page, q.PageSize)
	reports, total, err := f.svc.store.ListReports(ctx, q.Status, pageOptions(page, size))
	if err != nil {
		return nil, f.svc.fail("list_reports", err)
	}
	return &ReportList{Reports: reports, Total: total, Page: page, PageSize: size}, nil
}

// CloseReport closes an open report. Closed reports cannot be reopened.
func (f *memberForum) CloseReport(ctx context.Context, reportID int64) (err error) {
	if err := f.check(); err != nil {
		return err
	}
	ctx, done := f.svc.track(ctx, "forum.close_report", f.attrs(reportAttr(reportID))...)
	defer func() { done(err) }()

	if err := f.requireModerator(ctx); err != nil {
		return err
	}

	now := f.svc.now()
	err = f.svc.atomic(ctx, func(tx store.Tx) error {
		err := tx.CloseReport(ctx, reportID, f.memberID, now)
		switch {
		case store.IsNotFound(err):
			return ErrReportNotFound
		case errors.Is(err, store.ErrAlreadyClosed):
			return ErrReportClosed
		}
		return err
	})
	if err != nil {
		return f.svc.fail("close_report", err, "report_id", reportID)
	}

	return publish(ctx, f.svc, "ReportClosed", reportID, f.svc.events.ReportClosed, ReportClosedEvent{
		EventID:  newEventID(),
		ReportID: reportID,
		ClosedBy: f.memberID,
		ClosedAt: now,
	})
}
