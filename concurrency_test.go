package forum

import (
	"context"
	"fmt"
	"sync"
	"testing"

	memcache "github.com/rbaliyan/forum/cache/memory"
	"github.com/rbaliyan/forum/store/memory"
)

func TestConcurrentReplies(t *testing.T) {
	ctx := context.Background()
	svc := setupTestService(t, WithMaxConcurrentWrites(4))
	fx := seedForum(t, svc)
	topic := mustTopic(t, svc.Client(aliceID), fx.public.ID, "busy thread")

	const posters = 8
	const repliesPerPoster = 5

	var wg sync.WaitGroup
	errs := make(chan error, posters*repliesPerPoster)
	for i := range posters {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			member := []int64{aliceID, bobID, modID, adminID}[n%4]
			client := svc.Client(member)
			for j := range repliesPerPoster {
				_, err := client.CreatePost(ctx, topic.ID, PostInput{Body: fmt.Sprintf("reply %d-%d", n, j)})
				if err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("reply error: %v", err)
	}

	checkTopicConsistency(t, svc, topic.ID)
	checkBoardConsistency(t, svc, fx.public.ID)

	got, err := svc.(*service).store.GetTopic(ctx, topic.ID)
	if err != nil {
		t.Fatalf("get topic: %v", err)
	}
	if got.NumReplies != posters*repliesPerPoster {
		t.Errorf("expected %d replies, got %d", posters*repliesPerPoster, got.NumReplies)
	}
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	ctx := context.Background()
	c := memcache.New(memcache.WithCleanupInterval(0))
	defer c.Close()
	svc, err := NewService(WithStore(memory.New()), WithCache(c), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer svc.Close(ctx)

	fx := seedForum(t, svc)
	bob := svc.Client(bobID)
	topic := mustTopic(t, bob, fx.public.ID, "popular")

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := range 10 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			reader := svc.Client([]int64{0, aliceID}[n%2])
			for range 5 {
				if _, err := reader.Categories(ctx); err != nil {
					errs <- err
				}
				if _, err := reader.Board(ctx, fx.public.ID, 1, 20); err != nil {
					errs <- err
				}
				if _, err := reader.Topic(ctx, topic.ID, TopicQuery{}); err != nil {
					errs <- err
				}
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := range 10 {
			if _, err := bob.CreatePost(ctx, topic.ID, PostInput{Body: fmt.Sprintf("update %d", j)}); err != nil {
				errs <- err
			}
		}
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent operation error: %v", err)
	}
	checkTopicConsistency(t, svc, topic.ID)

	// Once writes settle, fresh reads see every reply.
	page, err := svc.Client(0).Topic(ctx, topic.ID, TopicQuery{PageSize: 50})
	if err != nil {
		t.Fatalf("topic: %v", err)
	}
	if page.Total != 11 {
		t.Errorf("expected 11 messages, got %d", page.Total)
	}
}

func TestCloseWaitsForWrites(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(WithStore(memory.New()), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	if err := svc.Connect(ctx); err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	fx := seedForum(t, svc)
	alice := svc.Client(aliceID)
	topic := mustTopic(t, alice, fx.public.ID, "closing")

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Writes racing Close either commit or report ErrNotConnected.
			if _, err := alice.CreatePost(ctx, topic.ID, PostInput{Body: "late"}); err != nil && !IsUnavailable(err) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	if err := svc.Close(ctx); err != nil {
		t.Errorf("close: %v", err)
	}
	wg.Wait()

	if _, err := alice.CreatePost(ctx, topic.ID, PostInput{Body: "after close"}); !IsUnavailable(err) {
		t.Errorf("expected unavailable after close, got %v", err)
	}
}
