package forum

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/rbaliyan/forum/store"
)

// PollSpec describes a poll to attach to a topic.
type PollSpec struct {
	TopicID     int64
	Question    string
	Choices     []string
	MaxVotes    int       // 0 means 1
	ExpiresAt   time.Time // zero means never
	HideResults store.ResultVisibility
	ChangeVote  bool
}

// PollView is a poll as seen by one viewer.
type PollView struct {
	Poll           *store.Poll       `json:"poll"`
	Choices        []PollChoiceView `json:"choices"`
	TotalVotes     int64            `json:"total_votes"`
	Voted          bool             `json:"voted"`
	Expired        bool             `json:"expired"`
	ResultsVisible bool             `json:"results_visible"`
	CanVote        bool             `json:"can_vote"`
}

// PollChoiceView is one choice with its tally. Votes and Percent are zero
// while results are hidden from the viewer.
type PollChoiceView struct {
	ID       int     `json:"id"`
	Label    string  `json:"label"`
	Votes    int64   `json:"votes"`
	Percent  float64 `json:"percent"`
	Selected bool    `json:"selected"`
}

// pollExpired reports whether the poll's expiry has passed.
func pollExpired(p *store.Poll, now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// resultsVisible applies the poll's result visibility rule.
func resultsVisible(p *store.Poll, voted, expired bool) bool {
	switch p.HideResults {
	case store.ResultsAfterVote:
		return voted || expired
	case store.ResultsAfterExpiry:
		return expired
	default:
		return true
	}
}

// percent returns votes as a percentage of total rounded to one decimal.
func percent(votes, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(votes)*1000/float64(total)) / 10
}

// buildPollView assembles the viewer's view of a poll.
func buildPollView(p *store.Poll, choices []*store.PollChoice, mine []int, v viewer, now time.Time) *PollView {
	expired := pollExpired(p, now)
	voted := len(mine) > 0
	view := &PollView{
		Poll:           p,
		Voted:          voted,
		Expired:        expired,
		ResultsVisible: resultsVisible(p, voted, expired),
		CanVote:        !v.guest() && !expired && !p.VotingLocked && (!voted || p.ChangeVote),
	}

	var total int64
	for _, c := range choices {
		total += c.Votes
	}
	for _, c := range choices {
		cv := PollChoiceView{ID: c.ChoiceID, Label: c.Label, Selected: slices.Contains(mine, c.ChoiceID)}
		if view.ResultsVisible {
			cv.Votes = c.Votes
			cv.Percent = percent(c.Votes, total)
		}
		view.Choices = append(view.Choices, cv)
	}
	if view.ResultsVisible {
		view.TotalVotes = total
	}
	return view
}

// validatePollSpec checks a poll definition and returns the cleaned choices.
func validatePollSpec(spec *PollSpec, limits Limits) ([]string, error) {
	question := strings.TrimSpace(spec.Question)
	if question == "" {
		return nil, &ValidationError{Field: "question", Message: "cannot be empty"}
	}
	if err := checkLine("question", question, limits.MaxSubjectLength); err != nil {
		return nil, err
	}
	spec.Question = question

	var choices []string
	for _, c := range spec.Choices {
		if c = strings.TrimSpace(c); c != "" {
			choices = append(choices, c)
		}
	}
	if len(choices) < 2 {
		return nil, &ValidationError{Field: "choices", Message: "at least two choices are required"}
	}
	if limits.MaxPollChoices > 0 && len(choices) > limits.MaxPollChoices {
		return nil, &ValidationError{Field: "choices", Message: "too many choices"}
	}

	if spec.MaxVotes == 0 {
		spec.MaxVotes = 1
	}
	if spec.MaxVotes < 1 || spec.MaxVotes > len(choices) {
		return nil, &ValidationError{Field: "max_votes", Message: "must be between 1 and the number of choices"}
	}
	switch spec.HideResults {
	case store.ResultsAlwaysVisible, store.ResultsAfterVote, store.ResultsAfterExpiry:
	default:
		return nil, &ValidationError{Field: "hide_results", Message: "unknown visibility"}
	}
	return choices, nil
}

// normalizeChoices checks a ballot against the poll and returns its choice
// ids sorted. A ballot naming the same choice twice is invalid.
func normalizeChoices(ids []int, choices []*store.PollChoice, maxVotes int) ([]int, error) {
	if len(ids) == 0 {
		return nil, &ValidationError{Field: "choices", Message: "select at least one choice"}
	}
	if len(ids) > maxVotes {
		return nil, ErrTooManyChoices
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	if len(slices.Compact(slices.Clone(out))) != len(out) {
		return nil, ErrInvalidChoice
	}
	for _, id := range out {
		if !slices.ContainsFunc(choices, func(c *store.PollChoice) bool { return c.ChoiceID == id }) {
			return nil, ErrInvalidChoice
		}
	}
	return out, nil
}

// pollTopic loads the poll and checks the viewer may see its topic.
func (f *memberForum) pollTopic(ctx context.Context, pollID int64, v viewer) (*store.Poll, error) {
	p, err := f.svc.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, notFound(err, ErrPollNotFound)
	}
	t, err := f.svc.store.GetTopic(ctx, p.TopicID)
	if err != nil {
		return nil, notFound(err, ErrPollNotFound)
	}
	if err := f.checkBoard(ctx, t.BoardID, v); err != nil {
		return nil, err
	}
	return p, nil
}

// pollView loads a poll's choices and the viewer's votes.
func (f *memberForum) pollView(ctx context.Context, p *store.Poll, v viewer) (*PollView, error) {
	choices, err := f.svc.store.PollChoices(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	var mine []int
	if !v.guest() {
		if mine, err = f.svc.store.MemberVotes(ctx, p.ID, v.memberID); err != nil {
			return nil, err
		}
	}
	return buildPollView(p, choices, mine, v, f.svc.now()), nil
}

// Poll returns the poll as seen by this member.
func (f *memberForum) Poll(ctx context.Context, pollID int64) (_ *PollView, err error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	ctx, done := f.svc.track(ctx, "forum.poll", f.attrs(pollAttr(pollID))...)
	defer func() { done(err) }()

	v := f.viewer(ctx)
	p, err := f.pollTopic(ctx, pollID, v)
	if err != nil {
		return nil, f.svc.fail("poll", err, "poll_id", pollID)
	}
	view, err := f.pollView(ctx, p, v)
	if err != nil {
		return nil, f.svc.fail("poll", err, "poll_id", pollID)
	}
	return view, nil
}

// CreatePoll attaches a poll to a topic. Only the topic starter or a
// moderator may do so, and a topic holds at most one poll.
func (f *memberForum) CreatePoll(ctx context.Context, spec PollSpec) (_ int64, err error) {
	if err := f.checkMember(); err != nil {
		return 0, err
	}
	choices, err := validatePollSpec(&spec, f.svc.opts.limits())
	if err != nil {
		return 0, err
	}
	ctx, done := f.svc.track(ctx, "forum.create_poll", f.attrs(topicAttr(spec.TopicID))...)
	defer func() { done(err) }()

	release, err := f.svc.acquireWrite(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	v := f.viewer(ctx)
	topic, err := f.loadTopic(ctx, spec.TopicID, v)
	if err != nil {
		return 0, f.svc.fail("create_poll", err, "topic_id", spec.TopicID)
	}
	if topic.StarterID != f.memberID && !v.isModerator() {
		return 0, ErrNotOwner
	}

	now := f.svc.now()
	if !spec.ExpiresAt.IsZero() && !spec.ExpiresAt.After(now) {
		return 0, &ValidationError{Field: "expires_at", Message: "must be in the future"}
	}
	posterName := f.svc.posterName(ctx, f.memberID)

	var poll *store.Poll
	err = f.svc.atomic(ctx, func(tx store.Tx) error {
		t, err := tx.GetTopic(ctx, spec.TopicID)
		if err != nil {
			return notFound(err, ErrTopicNotFound)
		}
		if t.PollID != 0 {
			return ErrTopicHasPoll
		}
		poll, err = tx.InsertPoll(ctx, &store.Poll{
			TopicID:     t.ID,
			Question:    spec.Question,
			MemberID:    f.memberID,
			PosterName:  posterName,
			MaxVotes:    spec.MaxVotes,
			ExpiresAt:   spec.ExpiresAt,
			HideResults: spec.HideResults,
			ChangeVote:  spec.ChangeVote,
		}, choices)
		if err != nil {
			return err
		}
		return tx.SetTopicPoll(ctx, t.ID, poll.ID)
	})
	if err != nil {
		return 0, f.svc.fail("create_poll", err, "topic_id", spec.TopicID)
	}

	f.svc.invalidate(ctx, f.memberID, PostChanged(topic.ID, topic.BoardID))
	err = publish(ctx, f.svc, "PollCreated", poll.ID, f.svc.events.PollCreated, PollCreatedEvent{
		EventID:   newEventID(),
		PollID:    poll.ID,
		TopicID:   topic.ID,
		MemberID:  f.memberID,
		CreatedAt: now,
	})
	return poll.ID, err
}

// Vote records the member's choices. When the poll allows vote changes, a
// previous vote is replaced in the same transaction.
func (f *memberForum) Vote(ctx context.Context, pollID int64, choiceIDs []int) (_ *PollView, err error) {
	if err := f.checkMember(); err != nil {
		return nil, err
	}
	ctx, done := f.svc.track(ctx, "forum.vote", f.attrs(pollAttr(pollID))...)
	defer func() { done(err) }()

	release, err := f.svc.acquireWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	v := f.viewer(ctx)
	target, err := f.pollTopic(ctx, pollID, v)
	if err != nil {
		return nil, f.svc.fail("vote", err, "poll_id", pollID)
	}

	now := f.svc.now()
	var cast []int
	err = f.svc.atomic(ctx, func(tx store.Tx) error {
		p, err := tx.GetPoll(ctx, pollID)
		if err != nil {
			return notFound(err, ErrPollNotFound)
		}
		if pollExpired(p, now) {
			return ErrPollExpired
		}
		if p.VotingLocked {
			return ErrVotingLocked
		}
		choices, err := tx.PollChoices(ctx, pollID)
		if err != nil {
			return err
		}
		if cast, err = normalizeChoices(choiceIDs, choices, p.MaxVotes); err != nil {
			return err
		}

		prior, err := tx.MemberVotes(ctx, pollID, f.memberID)
		if err != nil {
			return err
		}
		if len(prior) > 0 {
			if !p.ChangeVote {
				return ErrAlreadyVoted
			}
			removed, err := tx.DeleteMemberVotes(ctx, pollID, f.memberID)
			if err != nil {
				return err
			}
			if err := tx.AdjustChoiceVotes(ctx, pollID, removed, -1); err != nil {
				return err
			}
		}
		if err := tx.InsertVotes(ctx, pollID, f.memberID, cast); err != nil {
			return err
		}
		return tx.AdjustChoiceVotes(ctx, pollID, cast, 1)
	})
	if err != nil {
		return nil, f.svc.fail("vote", err, "poll_id", pollID, "member_id", f.memberID)
	}

	p, err := f.svc.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, f.svc.fail("vote", err, "poll_id", pollID)
	}
	view, err := f.pollView(ctx, p, v)
	if err != nil {
		return nil, f.svc.fail("vote", err, "poll_id", pollID)
	}
	f.svc.recordActivity(ctx, f.memberID, ActivityDescriptor{Action: ActionVote, TopicID: target.TopicID})
	err = publish(ctx, f.svc, "VoteCast", pollID, f.svc.events.VoteCast, VoteCastEvent{
		EventID:   newEventID(),
		PollID:    pollID,
		MemberID:  f.memberID,
		ChoiceIDs: cast,
		CastAt:    now,
	})
	return view, err
}

// LockVoting locks or unlocks voting. Allowed for the poll owner and moderators.
func (f *memberForum) LockVoting(ctx context.Context, pollID int64, locked bool) (err error) {
	if err := f.checkMember(); err != nil {
		return err
	}
	ctx, done := f.svc.track(ctx, "forum.lock_voting", f.attrs(pollAttr(pollID))...)
	defer func() { done(err) }()

	v := f.viewer(ctx)
	p, err := f.pollTopic(ctx, pollID, v)
	if err != nil {
		return f.svc.fail("lock_voting", err, "poll_id", pollID)
	}
	if p.MemberID != f.memberID && !v.isModerator() {
		return ErrNotOwner
	}
	err = f.svc.atomic(ctx, func(tx store.Tx) error {
		return notFound(tx.SetPollLocked(ctx, pollID, locked), ErrPollNotFound)
	})
	if err != nil {
		return f.svc.fail("lock_voting", err, "poll_id", pollID)
	}
	return nil
}
