// Package forum provides the core of a bulletin-board forum engine for Go.
//
// A forum is a tree of categories and boards holding topics, which hold
// messages. The package enforces group-based board access, tracks per-member
// read state, keeps denormalized counters consistent with the message rows,
// runs polls and a moderation report queue, and caches rendered listings.
// Storage is pluggable (store/postgres, store/memory) and so is the cache
// (cache/redis, cache/memory).
//
// # Basic Usage
//
//	st := memory.New()
//
//	svc, err := forum.NewService(
//	    forum.WithStore(st),
//	    forum.WithCache(memcache.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	// A client acts as one member. Member 0 is a guest.
//	f := svc.Client(42)
//
//	topic, err := f.CreateTopic(ctx, boardID, forum.PostInput{
//	    Subject: "Hello",
//	    Body:    "First post",
//	})
//	page, err := f.Topic(ctx, topic.ID, forum.TopicQuery{})
//
// # Access
//
// Each board lists the groups allowed to enter it; GroupAny opens a board to
// everyone. A member's groups are their primary group, post-count group and
// additional groups, and guests belong to GroupGuest. Members of
// ModeratorGroups may move, stick and lock any topic and work the report
// queue. See AccessPolicy for how missing members and lookup failures are
// treated.
//
// # Read State
//
// A member's read state for a topic comes from a per-topic read log or, when
// none exists, from a board mark set by MarkBoardRead. Read logs never move
// backwards.
//
// # Counters
//
// Topic reply counts, board topic and post counts and last-message pointers
// are updated in the same transaction as the rows they describe.
// Service.RepairPointers recomputes any that drifted.
//
// # Events
//
// Typed events are published after each committed write using
// github.com/rbaliyan/event/v3. Pass WithRedisClient or WithEventTransport
// to deliver them:
//
//	svc.Events().PostCreated.Subscribe(ctx, handler)
//
// By default publish failures are logged and reported to the handler set
// with WithEventPublishFailureHandler; WithEventErrorsFatal makes them
// returned as EventPublishError together with the operation's result.
package forum
