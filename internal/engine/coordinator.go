package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/studioflow/orchestrator/internal/agent"
)

const (
	// Review scores below this mark a milestone flag as critical.
	criticalScoreBelow = 5
	// Actors at or above this trust skip flag recording outside revisions.
	recordTrustBelow = 0.7
)

// MilestoneHook lets a sub-task submit a milestone-sized partial result for
// review before continuing. The returned feedback is folded into the
// sub-task's next step; an empty string means carry on.
type MilestoneHook func(ctx context.Context, milestone, summary string) string

// SubTask is one independently-executing unit of a work phase.
type SubTask struct {
	Name  string
	Actor string
	Run   func(ctx context.Context, hook MilestoneHook) (map[string]any, error)
}

// RunOptions tunes one coordinator invocation.
type RunOptions struct {
	// AlwaysRecord forces flag recording regardless of actor trust.
	// Revision reruns set this.
	AlwaysRecord bool
	// Reference is handed to the reviewer as grounding context.
	Reference string
}

// Coordinator runs a phase's sub-tasks concurrently, threading a milestone
// review hook into each. Flag appends from interleaved hooks go through the
// session's locked accessor; each sub-task writes its own result key.
type Coordinator struct {
	reviewer agent.Reviewer
	logger   *zap.SugaredLogger
}

func NewCoordinator(reviewer agent.Reviewer, logger *zap.SugaredLogger) *Coordinator {
	return &Coordinator{reviewer: reviewer, logger: logger}
}

// Run executes all sub-tasks and waits for every one to finish or fail.
// Results come back keyed by sub-task name; a sub-task failure cancels its
// siblings and propagates as the phase failure.
func (c *Coordinator) Run(ctx context.Context, sess *Session, tasks []SubTask, opts RunOptions) (map[string]map[string]any, error) {
	results := make([]map[string]any, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			hook := c.milestoneHook(sess, task.Actor, opts)
			out, err := task.Run(gctx, hook)
			if err != nil {
				return fmt.Errorf("sub-task %s: %w", task.Name, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]map[string]any, len(tasks))
	for i, task := range tasks {
		merged[task.Name] = results[i]
	}
	return merged, nil
}

// milestoneHook binds a review callback to one sub-task's actor. The review
// itself is best-effort: a reviewer failure degrades to the neutral verdict
// with a warning, never a phase failure.
func (c *Coordinator) milestoneHook(sess *Session, actor string, opts RunOptions) MilestoneHook {
	return func(ctx context.Context, milestone, summary string) string {
		review, err := c.reviewer.Review(ctx, actor, milestone, summary, opts.Reference)
		if err != nil {
			c.logger.Warnw("milestone review failed, using neutral verdict",
				"session_id", sess.ID,
				"actor", actor,
				"milestone", milestone,
				"error", err,
			)
			review = agent.NeutralReview()
		}

		record := opts.AlwaysRecord || review.NeedsHuman || sess.TrustOf(actor) < recordTrustBelow
		if record && (!review.OK || review.NeedsHuman || review.Score < criticalScoreBelow) {
			reason := review.Reason
			if reason == "" {
				reason = review.Feedback
			}
			if reason == "" {
				reason = fmt.Sprintf("%s flagged at milestone %s (score %d)", actor, milestone, review.Score)
			}
			sess.AppendFlag(MilestoneFlag{
				Reason:   reason,
				Critical: review.Score < criticalScoreBelow,
			})
		}

		return review.Feedback
	}
}
