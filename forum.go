package forum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/event/v3"
	"github.com/rbaliyan/event/v3/transport/noop"
	eventredis "github.com/rbaliyan/event/v3/transport/redis"
	"github.com/rbaliyan/forum/retry"
	"github.com/rbaliyan/forum/store"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"
)

// Connection states for the service.
const (
	stateDisconnected int32 = 0
	stateConnecting   int32 = 1
	stateConnected    int32 = 2
)

// service is the default implementation of Service.
type service struct {
	store       store.Store
	cache       *cacheLayer
	logger      *slog.Logger
	opts        *options
	state       int32 // stateDisconnected, stateConnecting, or stateConnected
	otel        *otelInstrumentation
	access      *accessControl
	tracker     *readTracker
	counters    *counterMaintainer
	keys        keySpace
	invalidator cacheInvalidator
	writeSem    *semaphore.Weighted // Limits concurrent writes and lets Close drain them
	eventBus    *event.Bus          // Event bus for publishing events
	events      *ServiceEvents      // Per-service event instances
}

// NewService creates a new forum service.
// Call Connect() to establish connections to backends.
func NewService(opts ...Option) (Service, error) {
	o := newOptions(opts...)

	if o.store == nil {
		return nil, ErrStoreRequired
	}

	otelInstr, err := newOtelInstrumentation(o)
	if err != nil {
		return nil, fmt.Errorf("init otel: %w", err)
	}

	s := &service{
		store:    o.store,
		cache:    newCacheLayer(o.cache, o.logger, otelInstr),
		logger:   o.logger,
		opts:     o,
		otel:     otelInstr,
		writeSem: semaphore.NewWeighted(int64(o.maxConcurrentWrites)),
		keys:     keySpace{pageSizes: o.pageSizes, cachedPages: o.cachedPages},
	}
	s.invalidator = cacheInvalidator{keys: s.keys}
	s.access = &accessControl{reader: o.store, policy: o.accessPolicy, logger: o.logger}
	s.tracker = &readTracker{reader: o.store, atomic: s.atomic, logger: o.logger}
	s.counters = &counterMaintainer{reader: o.store, atomic: s.atomic, logger: o.logger}
	return s, nil
}

// Events returns per-service event instances for subscribing and publishing.
func (s *service) Events() *ServiceEvents {
	return s.events
}

// IsConnected returns true if the service is connected and ready.
func (s *service) IsConnected() bool {
	return atomic.LoadInt32(&s.state) == stateConnected
}

// Connect establishes connections to storage backends.
func (s *service) Connect(ctx context.Context) error {
	// stateDisconnected -> stateConnecting -> stateConnected
	if !atomic.CompareAndSwapInt32(&s.state, stateDisconnected, stateConnecting) {
		return ErrAlreadyConnected
	}

	success := false
	defer func() {
		if success {
			atomic.StoreInt32(&s.state, stateConnected)
		} else {
			atomic.StoreInt32(&s.state, stateDisconnected)
		}
	}()

	if err := s.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}

	if err := s.initEventBus(ctx); err != nil {
		s.store.Close(ctx)
		return fmt.Errorf("init event bus: %w", err)
	}

	success = true
	s.logger.Info("forum service connected")
	return nil
}

// busCounter generates unique suffixes for event bus names.
var busCounter int64

// initEventBus creates this service's event bus and registers its events.
func (s *service) initEventBus(ctx context.Context) error {
	serviceName := s.opts.serviceName
	if serviceName == "" {
		serviceName = "forum"
	}
	// Each bus needs a unique name, so append a counter suffix
	busName := fmt.Sprintf("%s-%d", serviceName, atomic.AddInt64(&busCounter, 1))

	var bus *event.Bus
	var err error

	switch {
	case s.opts.eventTransport != nil:
		s.logger.Info("initializing event bus with custom transport")
		bus, err = event.NewBus(busName, event.WithTransport(s.opts.eventTransport))
	case s.opts.redisClient != nil:
		s.logger.Info("initializing event bus with Redis transport")
		t, transportErr := eventredis.New(s.opts.redisClient)
		if transportErr != nil {
			return fmt.Errorf("create redis transport: %w", transportErr)
		}
		bus, err = event.NewBus(busName, event.WithTransport(t))
	default:
		s.logger.Debug("initializing event bus with noop transport")
		bus, err = event.NewBus(busName, event.WithTransport(noop.New()))
	}

	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	s.eventBus = bus

	s.events = newServiceEvents(busName)
	if err := registerServiceEvents(ctx, bus, s.events); err != nil {
		bus.Close(ctx)
		return fmt.Errorf("register service events: %w", err)
	}
	return nil
}

// Close waits for in-flight writes and closes connections to storage backends.
func (s *service) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.state, stateConnected, stateDisconnected) {
		return nil
	}

	var errs []error

	// No new write can start once the state is disconnected. Acquiring every
	// semaphore slot waits for the running ones.
	s.logger.Info("waiting for in-flight writes to complete...", "timeout", s.opts.shutdownTimeout)
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, s.opts.shutdownTimeout)
	defer shutdownCancel()
	if err := s.writeSem.Acquire(shutdownCtx, int64(s.opts.maxConcurrentWrites)); err != nil {
		s.logger.Warn("timeout waiting for in-flight writes, proceeding with shutdown",
			"error", err)
		errs = append(errs, fmt.Errorf("graceful shutdown timeout: %w", err))
	} else {
		s.writeSem.Release(int64(s.opts.maxConcurrentWrites))
		s.logger.Info("all in-flight writes completed")
	}

	// The noop bus holds no resources.
	if s.eventBus != nil && (s.opts.eventTransport != nil || s.opts.redisClient != nil) {
		if err := s.eventBus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
	}

	if err := s.store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}

// Client returns a forum client acting as memberID. Zero is a guest.
func (s *service) Client(memberID int64) Forum {
	return &memberForum{memberID: memberID, svc: s}
}

// RepairPointers recomputes drifted topic and board aggregates.
func (s *service) RepairPointers(ctx context.Context) (_ *RepairResult, err error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	ctx, done := s.track(ctx, "forum.repair_pointers")
	defer func() { done(err) }()

	release, err := s.acquireWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := s.counters.repair(ctx)
	if result != nil {
		s.otel.recordRepair(ctx, len(result.FixedTopics), len(result.FixedBoards))
		if len(result.FixedTopics) > 0 || len(result.FixedBoards) > 0 {
			s.invalidateRepaired(ctx, result)
		}
	}
	if err != nil {
		return result, s.fail("repair_pointers", err)
	}
	return result, nil
}

// invalidateRepaired drops the shared views of repaired entities.
func (s *service) invalidateRepaired(ctx context.Context, result *RepairResult) {
	events := make([]CacheEvent, 0, len(result.FixedTopics)+len(result.FixedBoards))
	for _, id := range result.FixedTopics {
		var boardID int64
		if t, err := s.store.GetTopic(ctx, id); err == nil {
			boardID = t.BoardID
		}
		events = append(events, PostChanged(id, boardID))
	}
	for _, id := range result.FixedBoards {
		events = append(events, PostChanged(0, id))
	}
	s.invalidate(ctx, 0, events...)
}

// CreateCategory adds a category.
func (s *service) CreateCategory(ctx context.Context, c store.Category) (_ *store.Category, err error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "cannot be empty"}
	}
	if err := checkLine("name", c.Name, s.opts.maxSubjectLength); err != nil {
		return nil, err
	}
	ctx, done := s.track(ctx, "forum.create_category")
	defer func() { done(err) }()

	var created *store.Category
	err = s.atomic(ctx, func(tx store.Tx) error {
		var err error
		created, err = tx.InsertCategory(ctx, &c)
		return err
	})
	if err != nil {
		return nil, s.fail("create_category", err)
	}
	s.cache.delete(ctx, keyCategoriesPublic)
	return created, nil
}

// CreateBoard adds a board. A parent board must belong to the same category.
func (s *service) CreateBoard(ctx context.Context, b store.Board) (_ *store.Board, err error) {
	if !s.IsConnected() {
		return nil, ErrNotConnected
	}
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "cannot be empty"}
	}
	if err := checkLine("name", b.Name, s.opts.maxSubjectLength); err != nil {
		return nil, err
	}
	b.MemberGroups = ParseBoardGroups(b.MemberGroups).String()
	b.NumTopics, b.NumPosts, b.LastMessageID = 0, 0, 0
	ctx, done := s.track(ctx, "forum.create_board", attribute.Int64("category_id", b.CategoryID))
	defer func() { done(err) }()

	var created *store.Board
	err = s.atomic(ctx, func(tx store.Tx) error {
		cats, err := tx.ListCategories(ctx)
		if err != nil {
			return err
		}
		found := false
		for _, c := range cats {
			if c.ID == b.CategoryID {
				found = true
				break
			}
		}
		if !found {
			return &ValidationError{Field: "category_id", Message: "unknown category"}
		}
		if b.ParentID != 0 {
			parent, err := tx.GetBoard(ctx, b.ParentID)
			if store.IsNotFound(err) {
				return &ValidationError{Field: "parent_id", Message: "unknown board"}
			}
			if err != nil {
				return err
			}
			if parent.CategoryID != b.CategoryID {
				return &ValidationError{Field: "parent_id", Message: "parent belongs to another category"}
			}
		}
		created, err = tx.InsertBoard(ctx, &b)
		return err
	})
	if err != nil {
		return nil, s.fail("create_board", err, "category_id", b.CategoryID)
	}
	s.cache.delete(ctx, keyCategoriesPublic)
	return created, nil
}

// SyncMember stores a member's groups. The member's own cached listings are dropped.
func (s *service) SyncMember(ctx context.Context, m store.Member) (err error) {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	if m.ID <= 0 {
		return ErrInvalidMember
	}
	ctx, done := s.track(ctx, "forum.sync_member", attribute.Int64("member_id", m.ID))
	defer func() { done(err) }()

	err = s.atomic(ctx, func(tx store.Tx) error {
		return tx.UpsertMember(ctx, &m)
	})
	if err != nil {
		return s.fail("sync_member", err, "member_id", m.ID)
	}
	s.invalidate(ctx, m.ID, ReadStateChanged(m.ID))
	return nil
}

// now returns the current time from the configured clock, in UTC.
func (s *service) now() time.Time {
	return s.opts.clock().UTC()
}

// track starts a span for op and returns a function that ends it and
// records the operation metrics.
func (s *service) track(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, end := s.otel.startSpan(ctx, op, attrs...)
	return ctx, func(err error) {
		end(err)
		s.otel.recordOp(ctx, op, time.Since(start), err)
	}
}

// fail classifies err for the caller. Domain errors pass through; anything
// else is logged with the operation context and wrapped in an InternalError.
func (s *service) fail(op string, err error, kv ...any) error {
	if err == nil || isDomainError(err) {
		return err
	}
	if _, ok := IsEventPublishError(err); ok {
		return err
	}
	if store.IsNotConnected(err) {
		return ErrNotConnected
	}
	args := append([]any{"op", op, "error", err}, kv...)
	s.logger.Error("forum operation failed", args...)
	return &InternalError{Op: op, Err: err}
}

// acquireWrite takes a write slot. The returned function releases it.
func (s *service) acquireWrite(ctx context.Context) (func(), error) {
	if err := s.writeSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire write slot: %w", err)
	}
	// Close may have started while this write was waiting.
	if !s.IsConnected() {
		s.writeSem.Release(1)
		return nil, ErrNotConnected
	}
	return func() { s.writeSem.Release(1) }, nil
}

// atomic runs fn in a store transaction, retrying transactions that failed
// to commit. Errors returned by fn come back unchanged.
func (s *service) atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	cfg := s.opts.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
			s.logger.Warn("retrying transaction", "error", err, "attempt", attempt, "wait", wait)
		}
	}
	return retry.Do(ctx, cfg, func(ctx context.Context) error {
		return s.store.Atomic(ctx, fn)
	})
}

// posterName returns the display name stamped on a member's new posts.
func (s *service) posterName(ctx context.Context, memberID int64) string {
	if memberID == 0 {
		return "Guest"
	}
	if s.opts.identity != nil {
		id, err := s.opts.identity.Resolve(ctx, memberID)
		if err == nil && id != nil && id.Name != "" {
			return id.Name
		}
		if err != nil && !IsNotFound(err) {
			s.logger.Warn("identity lookup failed", "error", err, "member_id", memberID)
		}
	}
	if m, err := s.store.GetMember(ctx, memberID); err == nil && m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("member%d", memberID)
}
