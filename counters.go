package forum

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/rbaliyan/forum/store"
)

// RepairResult lists the entities whose counters or pointers were recomputed.
// Each id appears at most once.
type RepairResult struct {
	FixedTopics []int64 `json:"fixed_topics"`
	FixedBoards []int64 `json:"fixed_boards"`
}

// counterMaintainer keeps topic and board aggregates in step with the
// message rows. Each handler runs inside the caller's transaction.
type counterMaintainer struct {
	reader store.Reader
	atomic atomicFunc
	logger *slog.Logger
}

// onTopicCreated accounts for a new topic and its first message.
func (c *counterMaintainer) onTopicCreated(ctx context.Context, tx store.Tx, topic *store.Topic, msg *store.Message) error {
	if err := tx.SetTopicFirstMessage(ctx, topic.ID, msg.ID); err != nil {
		return err
	}
	if err := tx.AdjustBoardCounts(ctx, topic.BoardID, 1, 1); err != nil {
		return err
	}
	if msg.Approved {
		if err := tx.SetTopicLastMessage(ctx, topic.ID, msg.ID); err != nil {
			return err
		}
		if err := tx.SetBoardLastMessage(ctx, topic.BoardID, msg.ID, msg.PostedAt); err != nil {
			return err
		}
	}
	return c.adjustPosts(ctx, tx, msg.PosterID, 1)
}

// onMessageCreated accounts for a reply.
func (c *counterMaintainer) onMessageCreated(ctx context.Context, tx store.Tx, msg *store.Message) error {
	if err := tx.AdjustTopicReplies(ctx, msg.TopicID, 1); err != nil {
		return err
	}
	if err := tx.AdjustBoardCounts(ctx, msg.BoardID, 0, 1); err != nil {
		return err
	}
	if msg.Approved {
		if err := tx.SetTopicLastMessage(ctx, msg.TopicID, msg.ID); err != nil {
			return err
		}
		if err := tx.SetBoardLastMessage(ctx, msg.BoardID, msg.ID, msg.PostedAt); err != nil {
			return err
		}
	}
	return c.adjustPosts(ctx, tx, msg.PosterID, 1)
}

// onMessageDeleted accounts for a deleted reply. The message row must already
// be gone. Pointers that referenced it are recomputed from what remains.
func (c *counterMaintainer) onMessageDeleted(ctx context.Context, tx store.Tx, topic *store.Topic, msg *store.Message) error {
	if err := tx.AdjustTopicReplies(ctx, topic.ID, -1); err != nil {
		return err
	}
	if err := tx.AdjustBoardCounts(ctx, msg.BoardID, 0, -1); err != nil {
		return err
	}
	if topic.LastMessageID == msg.ID {
		totals, err := tx.TopicTotals(ctx, topic.ID)
		if err != nil {
			return err
		}
		if err := tx.SetTopicLastMessage(ctx, topic.ID, totals.LastMessageID); err != nil {
			return err
		}
	}
	board, err := tx.GetBoard(ctx, msg.BoardID)
	if err != nil {
		return err
	}
	if board.LastMessageID == msg.ID {
		if err := c.recomputeBoardPointer(ctx, tx, board.ID); err != nil {
			return err
		}
	}
	return c.adjustPosts(ctx, tx, msg.PosterID, -1)
}

// onTopicDeleted removes a topic with all its messages and returns how many
// messages were removed.
func (c *counterMaintainer) onTopicDeleted(ctx context.Context, tx store.Tx, topic *store.Topic) (int64, error) {
	authors, err := tx.TopicAuthors(ctx, topic.ID)
	if err != nil {
		return 0, err
	}
	n, err := tx.DeleteTopicMessages(ctx, topic.ID)
	if err != nil {
		return 0, err
	}
	if err := tx.DeleteTopic(ctx, topic.ID); err != nil {
		return 0, err
	}
	if err := tx.AdjustBoardCounts(ctx, topic.BoardID, -1, -n); err != nil {
		return 0, err
	}
	if err := c.recomputeBoardPointer(ctx, tx, topic.BoardID); err != nil {
		return 0, err
	}
	for memberID, posts := range authors {
		if err := c.adjustPosts(ctx, tx, memberID, -posts); err != nil {
			return 0, err
		}
	}
	return n, nil
}

// onTopicMoved reassigns a topic and its messages to dstBoardID.
func (c *counterMaintainer) onTopicMoved(ctx context.Context, tx store.Tx, topic *store.Topic, dstBoardID int64) error {
	n, err := tx.MoveTopicMessages(ctx, topic.ID, dstBoardID)
	if err != nil {
		return err
	}
	if err := tx.SetTopicBoard(ctx, topic.ID, dstBoardID); err != nil {
		return err
	}
	if err := tx.AdjustBoardCounts(ctx, topic.BoardID, -1, -n); err != nil {
		return err
	}
	if err := tx.AdjustBoardCounts(ctx, dstBoardID, 1, n); err != nil {
		return err
	}
	if err := c.recomputeBoardPointer(ctx, tx, topic.BoardID); err != nil {
		return err
	}
	return c.recomputeBoardPointer(ctx, tx, dstBoardID)
}

func (c *counterMaintainer) recomputeBoardPointer(ctx context.Context, tx store.Tx, boardID int64) error {
	totals, err := tx.BoardTotals(ctx, boardID)
	if err != nil {
		return err
	}
	return tx.SetBoardLastMessage(ctx, boardID, totals.LastMessageID, totals.LastPostedAt)
}

// adjustPosts changes a member's post count. Posters without a membership
// row (guests, members managed elsewhere) are skipped.
func (c *counterMaintainer) adjustPosts(ctx context.Context, tx store.Tx, memberID, delta int64) error {
	if memberID == 0 || delta == 0 {
		return nil
	}
	err := tx.AdjustMemberPosts(ctx, memberID, delta)
	if store.IsNotFound(err) {
		return nil
	}
	return err
}

// repair detects drift with read-only queries and then fixes each entity in
// its own transaction, re-checking it there. Running it concurrently with
// itself or with normal traffic is safe.
func (c *counterMaintainer) repair(ctx context.Context) (*RepairResult, error) {
	topics, err := c.reader.FindTopicDrift(ctx)
	if err != nil {
		return nil, fmt.Errorf("find topic drift: %w", err)
	}
	boards, err := c.reader.FindBoardDrift(ctx)
	if err != nil {
		return nil, fmt.Errorf("find board drift: %w", err)
	}

	result := &RepairResult{}
	for _, id := range compactIDs(topics) {
		fixed, err := c.repairTopic(ctx, id)
		if err != nil {
			return result, fmt.Errorf("repair topic %d: %w", id, err)
		}
		if fixed {
			result.FixedTopics = append(result.FixedTopics, id)
		}
	}
	for _, id := range compactIDs(boards) {
		fixed, err := c.repairBoard(ctx, id)
		if err != nil {
			return result, fmt.Errorf("repair board %d: %w", id, err)
		}
		if fixed {
			result.FixedBoards = append(result.FixedBoards, id)
		}
	}

	if len(result.FixedTopics) > 0 || len(result.FixedBoards) > 0 {
		c.logger.Info("repaired counter drift",
			"topics", len(result.FixedTopics), "boards", len(result.FixedBoards))
	}
	return result, nil
}

var errNoDrift = errors.New("no drift")

func (c *counterMaintainer) repairTopic(ctx context.Context, topicID int64) (bool, error) {
	err := c.atomic(ctx, func(tx store.Tx) error {
		t, err := tx.GetTopic(ctx, topicID)
		if err != nil {
			return err
		}
		totals, err := tx.TopicTotals(ctx, topicID)
		if err != nil {
			return err
		}
		replies := max(totals.Messages-1, 0)
		if t.FirstMessageID == totals.FirstMessageID &&
			t.LastMessageID == totals.LastMessageID &&
			t.NumReplies == replies {
			return errNoDrift
		}
		if err := tx.SetTopicFirstMessage(ctx, topicID, totals.FirstMessageID); err != nil {
			return err
		}
		if err := tx.SetTopicLastMessage(ctx, topicID, totals.LastMessageID); err != nil {
			return err
		}
		return tx.SetTopicReplies(ctx, topicID, replies)
	})
	return fixedOrSkipped(err)
}

func (c *counterMaintainer) repairBoard(ctx context.Context, boardID int64) (bool, error) {
	err := c.atomic(ctx, func(tx store.Tx) error {
		b, err := tx.GetBoard(ctx, boardID)
		if err != nil {
			return err
		}
		totals, err := tx.BoardTotals(ctx, boardID)
		if err != nil {
			return err
		}
		if b.LastMessageID == totals.LastMessageID &&
			b.NumTopics == totals.Topics &&
			b.NumPosts == totals.Posts {
			return errNoDrift
		}
		if err := tx.SetBoardLastMessage(ctx, boardID, totals.LastMessageID, totals.LastPostedAt); err != nil {
			return err
		}
		return tx.SetBoardCounts(ctx, boardID, totals.Topics, totals.Posts)
	})
	return fixedOrSkipped(err)
}

// fixedOrSkipped treats entities that vanished or healed since detection as
// skipped rather than failed.
func fixedOrSkipped(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errNoDrift), store.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

func compactIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
