package forum

import (
	"context"
	"time"

	"github.com/rbaliyan/forum/store"
	"golang.org/x/sync/errgroup"
)

// listingTTL returns the cache TTL of a listing built for memberID.
func (s *service) listingTTL(memberID int64) time.Duration {
	if memberID == 0 {
		return s.opts.guestListingTTL
	}
	return s.opts.memberListingTTL
}

// Categories returns the board index visible to the member.
func (f *memberForum) Categories(ctx context.Context) (_ []*CategoryView, err error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	ctx, done := f.svc.track(ctx, "forum.categories", f.attrs()...)
	defer func() { done(err) }()

	views, err := cached(ctx, f.svc.cache, categoriesKey(f.memberID), f.svc.listingTTL(f.memberID),
		func(ctx context.Context) ([]*CategoryView, error) {
			return f.loadCategories(ctx)
		})
	if err != nil {
		return nil, f.svc.fail("categories", err, "member_id", f.memberID)
	}
	f.svc.recordActivity(ctx, f.memberID, ActivityDescriptor{Action: ActionViewIndex})
	return views, nil
}

func (f *memberForum) loadCategories(ctx context.Context) ([]*CategoryView, error) {
	v := f.viewer(ctx)

	var cats []*store.Category
	var boards []*store.Board
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cats, err = f.svc.store.ListCategories(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		boards, err = f.visibleBoards(gctx, v)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var listed []*store.Board
	for _, b := range boards {
		if !b.IsRedirect() {
			listed = append(listed, b)
		}
	}
	nodes, err := f.boardViews(ctx, listed)
	if err != nil {
		return nil, err
	}

	// A board whose parent is hidden is hidden with it.
	byCategory := make(map[int64][]*BoardView)
	for _, b := range listed {
		node := nodes[b.ID]
		if b.ParentID == 0 {
			byCategory[b.CategoryID] = append(byCategory[b.CategoryID], node)
		} else if parent, ok := nodes[b.ParentID]; ok {
			parent.Children = append(parent.Children, node)
		}
	}

	views := make([]*CategoryView, 0, len(cats))
	for _, c := range cats {
		if bv := byCategory[c.ID]; len(bv) > 0 {
			views = append(views, &CategoryView{Category: c, Boards: bv})
		}
	}
	return views, nil
}

// boardViews builds a view per board with its last-message preview and
// unread flag.
func (f *memberForum) boardViews(ctx context.Context, boards []*store.Board) (map[int64]*BoardView, error) {
	nodes := make(map[int64]*BoardView, len(boards))
	var lastIDs []int64
	for _, b := range boards {
		nodes[b.ID] = &BoardView{Board: b}
		if b.LastMessageID != 0 {
			lastIDs = append(lastIDs, b.LastMessageID)
		}
	}
	if len(boards) == 0 {
		return nodes, nil
	}

	var last []*store.Message
	var unread []store.TopicPointer
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(lastIDs) == 0 {
			return nil
		}
		var err error
		last, err = f.svc.store.GetMessages(gctx, lastIDs)
		return err
	})
	g.Go(func() error {
		var err error
		unread, err = f.svc.tracker.unread(gctx, f.memberID, postableBoardIDs(boards))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, m := range last {
		if n, ok := nodes[m.BoardID]; ok && n.Board.LastMessageID == m.ID {
			n.LastMessage = previewOf(m)
		}
	}
	for _, p := range unread {
		if n, ok := nodes[p.BoardID]; ok {
			n.Unread = true
		}
	}
	return nodes, nil
}

// Board returns a page of the board's topics.
func (f *memberForum) Board(ctx context.Context, boardID int64, page, pageSize int) (_ *BoardPage, err error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	ctx, done := f.svc.track(ctx, "forum.board", f.attrs(boardAttr(boardID))...)
	defer func() { done(err) }()

	v := f.viewer(ctx)
	if err := f.checkBoard(ctx, boardID, v); err != nil {
		return nil, err
	}

	page, pageSize = f.svc.opts.page(page, pageSize)
	var key string
	if f.svc.keys.pageCached(page, pageSize) {
		key = boardKey(boardID, page, pageSize, f.memberID)
	}
	bp, err := cached(ctx, f.svc.cache, key, f.svc.listingTTL(f.memberID),
		func(ctx context.Context) (*BoardPage, error) {
			return f.loadBoardPage(ctx, boardID, page, pageSize, v)
		})
	if err != nil {
		return nil, f.svc.fail("board", notFound(err, ErrBoardNotFound), "board_id", boardID)
	}
	f.svc.recordActivity(ctx, f.memberID, ActivityDescriptor{Action: ActionViewBoard, BoardID: boardID})
	return bp, nil
}

func (f *memberForum) loadBoardPage(ctx context.Context, boardID int64, page, pageSize int, v viewer) (*BoardPage, error) {
	b, err := f.svc.store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	bp := &BoardPage{Board: b, Topics: []*TopicSummary{}, Page: page, PageSize: pageSize}

	boards, err := f.visibleBoards(ctx, v)
	if err != nil {
		return nil, err
	}
	var children []*store.Board
	for _, c := range boards {
		if c.ParentID == boardID && !c.IsRedirect() {
			children = append(children, c)
		}
	}
	nodes, err := f.boardViews(ctx, children)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		bp.Children = append(bp.Children, nodes[c.ID])
	}

	// Link boards hold no topics.
	if b.IsRedirect() {
		return bp, nil
	}

	topics, total, err := f.svc.store.ListTopics(ctx, boardID, pageOptions(page, pageSize))
	if err != nil {
		return nil, err
	}
	bp.Total = total
	bp.Topics, err = f.summaries(ctx, topics)
	if err != nil {
		return nil, err
	}
	return bp, nil
}

// summaries builds topic rows with first/last message previews and, for
// members, unread flags.
func (f *memberForum) summaries(ctx context.Context, topics []*store.Topic) ([]*TopicSummary, error) {
	out := make([]*TopicSummary, 0, len(topics))
	if len(topics) == 0 {
		return out, nil
	}

	ids := make([]int64, 0, len(topics))
	msgIDs := make([]int64, 0, 2*len(topics))
	for _, t := range topics {
		ids = append(ids, t.ID)
		msgIDs = append(msgIDs, t.FirstMessageID)
		if t.LastMessageID != t.FirstMessageID {
			msgIDs = append(msgIDs, t.LastMessageID)
		}
	}

	var msgs []*store.Message
	var res ReadResolver
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		msgs, err = f.svc.store.GetMessages(gctx, msgIDs)
		return err
	})
	if f.memberID != 0 {
		g.Go(func() error {
			var err error
			res, err = f.svc.tracker.resolver(gctx, f.memberID, ids)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[int64]*store.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}
	for _, t := range topics {
		s := &TopicSummary{
			Topic:        t,
			FirstMessage: previewOf(byID[t.FirstMessageID]),
			LastMessage:  previewOf(byID[t.LastMessageID]),
		}
		if res != nil {
			s.Unread = res.Resolve(t.Pointer()) == ReadStateUnread
		}
		out = append(out, s)
	}
	return out, nil
}

// CanAccess reports whether the member may enter the board.
func (f *memberForum) CanAccess(ctx context.Context, boardID int64) bool {
	if f.check() != nil {
		return false
	}
	return f.svc.access.canAccess(ctx, boardID, f.memberID)
}

// LatestMessages returns the newest approved messages in boards the member
// may see. Guest windows aligned to a cached page size are cached.
func (f *memberForum) LatestMessages(ctx context.Context, limit, offset int) (_ []*MessagePreview, err error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	ctx, done := f.svc.track(ctx, "forum.latest_messages", f.attrs()...)
	defer func() { done(err) }()

	_, limit = f.svc.opts.page(1, limit)
	offset = max(offset, 0)

	var key string
	if f.memberID == 0 && f.svc.keys.latestCached(limit, offset) {
		key = latestKey(limit, offset)
	}
	previews, err := cached(ctx, f.svc.cache, key, f.svc.opts.guestListingTTL,
		func(ctx context.Context) ([]*MessagePreview, error) {
			boards, err := f.visibleBoards(ctx, f.viewer(ctx))
			if err != nil {
				return nil, err
			}
			ids := postableBoardIDs(boards)
			if len(ids) == 0 {
				return []*MessagePreview{}, nil
			}
			msgs, err := f.svc.store.LatestMessages(ctx, ids, store.ListOptions{Limit: limit, Offset: offset})
			if err != nil {
				return nil, err
			}
			out := make([]*MessagePreview, 0, len(msgs))
			for _, m := range msgs {
				out = append(out, previewOf(m))
			}
			return out, nil
		})
	if err != nil {
		return nil, f.svc.fail("latest_messages", err)
	}
	return previews, nil
}

// Topic returns a page of the topic's messages. For members, the last
// message shown is marked read, the view is counted and the activity is
// recorded; failures of those side effects are logged only.
func (f *memberForum) Topic(ctx context.Context, topicID int64, q TopicQuery) (_ *TopicPage, err error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	ctx, done := f.svc.track(ctx, "forum.topic", f.attrs(topicAttr(topicID))...)
	defer func() { done(err) }()

	v := f.viewer(ctx)
	if _, err := f.loadTopic(ctx, topicID, v); err != nil {
		return nil, f.svc.fail("topic", err, "topic_id", topicID)
	}

	page, pageSize := f.svc.opts.page(q.Page, q.PageSize)
	order := q.Order
	if order != store.SortDesc {
		order = store.SortAsc
	}
	var key string
	if f.svc.keys.pageCached(page, pageSize) {
		key = topicKey(topicID, page, pageSize, order)
	}
	tp, err := cached(ctx, f.svc.cache, key, f.svc.opts.guestListingTTL,
		func(ctx context.Context) (*TopicPage, error) {
			return f.loadTopicPage(ctx, topicID, page, pageSize, order)
		})
	if err != nil {
		return nil, f.svc.fail("topic", notFound(err, ErrTopicNotFound), "topic_id", topicID)
	}

	// The loaded page may be shared with concurrent callers.
	view := *tp
	tp = &view
	if tp.Topic.PollID != 0 {
		if p, err := f.svc.store.GetPoll(ctx, tp.Topic.PollID); err == nil {
			if tp.Poll, err = f.pollView(ctx, p, v); err != nil {
				f.svc.logger.Warn("poll view failed", "error", err, "poll_id", p.ID)
			}
		} else if !store.IsNotFound(err) {
			f.svc.logger.Warn("poll lookup failed", "error", err, "poll_id", tp.Topic.PollID)
		}
	}

	f.afterTopicView(ctx, tp)
	return tp, nil
}

func (f *memberForum) loadTopicPage(ctx context.Context, topicID int64, page, pageSize int, order store.SortOrder) (*TopicPage, error) {
	t, err := f.svc.store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	tp := &TopicPage{Topic: t, Page: page, PageSize: pageSize, Order: order}

	var msgs []*store.Message
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tp.Board, err = f.svc.store.GetBoard(gctx, t.BoardID)
		return err
	})
	g.Go(func() error {
		var err error
		msgs, tp.Total, err = f.svc.store.ListMessages(gctx, topicID, pageOptions(page, pageSize), order)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tp.Messages = make([]*MessageView, 0, len(msgs))
	for _, m := range msgs {
		tp.Messages = append(tp.Messages, &MessageView{Message: m})
	}
	f.svc.enrich(ctx, tp.Messages)
	return tp, nil
}

// enrich attaches poster identities and rendered bodies. Collaborator
// failures leave the fields empty.
func (s *service) enrich(ctx context.Context, views []*MessageView) {
	if len(views) == 0 {
		return
	}
	if s.opts.identity != nil {
		ids := make([]int64, 0, len(views))
		for _, mv := range views {
			ids = append(ids, mv.Message.PosterID)
		}
		identities, err := s.opts.identity.ResolveBatch(ctx, ids)
		if err != nil {
			s.logger.Warn("identity batch lookup failed", "error", err, "count", len(ids))
		} else {
			for i, id := range identities {
				if i < len(views) && id != nil {
					views[i].Poster = id
				}
			}
		}
	}
	if s.opts.formatter != nil {
		for _, mv := range views {
			out, err := s.opts.formatter.Format(ctx, mv.Message.Body)
			if err != nil {
				s.logger.Warn("format failed", "error", err, "message_id", mv.Message.ID)
				continue
			}
			mv.Rendered = out
		}
	}
}

// afterTopicView applies the non-critical side effects of viewing a topic page.
func (f *memberForum) afterTopicView(ctx context.Context, tp *TopicPage) {
	t := tp.Topic
	if err := f.svc.store.Atomic(ctx, func(tx store.Tx) error {
		return tx.IncrementTopicViews(ctx, t.ID)
	}); err != nil {
		f.svc.logger.Warn("view count not updated", "error", err, "topic_id", t.ID)
	}
	if f.memberID == 0 {
		return
	}

	var shown int64
	for _, mv := range tp.Messages {
		shown = max(shown, mv.Message.ID)
	}
	if shown != 0 {
		if err := f.svc.tracker.markTopicRead(ctx, f.memberID, t.ID, shown); err != nil {
			f.svc.logger.Warn("read mark not updated", "error", err, "topic_id", t.ID, "member_id", f.memberID)
		} else {
			f.svc.invalidate(ctx, f.memberID, ReadStateChanged(f.memberID, t.BoardID))
		}
	}
	f.svc.recordActivity(ctx, f.memberID, ActivityDescriptor{Action: ActionViewTopic, BoardID: t.BoardID, TopicID: t.ID})
}
