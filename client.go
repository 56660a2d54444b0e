package forum

import (
	"context"
	"sync/atomic"

	"github.com/rbaliyan/forum/store"
	"go.opentelemetry.io/otel/attribute"
)

// memberForum implements Forum for one member. memberID 0 is a guest.
type memberForum struct {
	memberID int64
	svc      *service
}

// MemberID returns the member this client acts as.
func (f *memberForum) MemberID() int64 {
	return f.memberID
}

// check verifies the service is connected and the member id is usable.
func (f *memberForum) check() error {
	if atomic.LoadInt32(&f.svc.state) != stateConnected {
		return ErrNotConnected
	}
	if f.memberID < 0 {
		return ErrInvalidMember
	}
	return nil
}

// checkMember is check for operations guests may not perform.
func (f *memberForum) checkMember() error {
	if err := f.check(); err != nil {
		return err
	}
	if f.memberID == 0 {
		return ErrLoginRequired
	}
	return nil
}

func (f *memberForum) viewer(ctx context.Context) viewer {
	return f.svc.access.resolve(ctx, f.memberID)
}

// board loads a board the viewer may enter.
func (f *memberForum) board(ctx context.Context, boardID int64, v viewer) (*store.Board, error) {
	b, err := f.svc.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, notFound(err, ErrBoardNotFound)
	}
	if !v.canSee(b) {
		return nil, ErrAccessDenied
	}
	return b, nil
}

// checkBoard fails unless the viewer may enter the board.
func (f *memberForum) checkBoard(ctx context.Context, boardID int64, v viewer) error {
	_, err := f.board(ctx, boardID, v)
	return err
}

// loadTopic loads a topic in a board the viewer may enter.
func (f *memberForum) loadTopic(ctx context.Context, topicID int64, v viewer) (*store.Topic, error) {
	t, err := f.svc.store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, notFound(err, ErrTopicNotFound)
	}
	if err := f.checkBoard(ctx, t.BoardID, v); err != nil {
		return nil, err
	}
	return t, nil
}

// visibleBoards returns every board the viewer may enter, in listing order.
func (f *memberForum) visibleBoards(ctx context.Context, v viewer) ([]*store.Board, error) {
	boards, err := f.svc.store.ListBoards(ctx)
	if err != nil {
		return nil, err
	}
	out := boards[:0]
	for _, b := range boards {
		if v.canSee(b) {
			out = append(out, b)
		}
	}
	return out, nil
}

// postableBoardIDs returns the ids of visible boards that hold posts.
func postableBoardIDs(boards []*store.Board) []int64 {
	ids := make([]int64, 0, len(boards))
	for _, b := range boards {
		if !b.IsRedirect() {
			ids = append(ids, b.ID)
		}
	}
	return ids
}

// attrs returns span attributes for this member plus extra.
func (f *memberForum) attrs(extra ...attribute.KeyValue) []attribute.KeyValue {
	return append([]attribute.KeyValue{attribute.Int64("member_id", f.memberID)}, extra...)
}

func boardAttr(id int64) attribute.KeyValue   { return attribute.Int64("board_id", id) }
func topicAttr(id int64) attribute.KeyValue   { return attribute.Int64("topic_id", id) }
func messageAttr(id int64) attribute.KeyValue { return attribute.Int64("message_id", id) }
func pollAttr(id int64) attribute.KeyValue    { return attribute.Int64("poll_id", id) }
func reportAttr(id int64) attribute.KeyValue  { return attribute.Int64("report_id", id) }
