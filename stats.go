package forum

import (
	"context"

	"github.com/rbaliyan/forum/store"
)

// Stats returns forum-wide counts. Results are cached for the stats TTL and
// are not refreshed by mutations.
func (s *service) Stats(ctx context.Context) (_ *store.ForumStats, err error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	ctx, done := s.track(ctx, "forum.stats")
	defer func() { done(err) }()

	stats, err := cached(ctx, s.cache, keyStats, s.opts.statsTTL, func(ctx context.Context) (*store.ForumStats, error) {
		st, err := s.store.ForumStats(ctx)
		if err != nil {
			return nil, err
		}
		return &st, nil
	})
	if err != nil {
		return nil, s.fail("stats", err)
	}
	return stats, nil
}
