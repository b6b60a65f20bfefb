package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/studioflow/orchestrator/internal/agent"
	"github.com/studioflow/orchestrator/internal/event"
	"github.com/studioflow/orchestrator/internal/stream"
)

// Runtime bundles the collaborators a phase handler works with. Constructed
// per session by the manager; nothing here is process-global.
type Runtime struct {
	Agents      *agent.Registry
	Coordinator *Coordinator
	Queue       *event.Queue
	Logger      *zap.SugaredLogger
}

// HandlerFunc performs one work or revision phase and returns the phase's
// result for the session's output mapping.
type HandlerFunc func(ctx context.Context, rt *Runtime, sess *Session) (map[string]any, error)

// DefaultHandlers returns the built-in design pipeline handlers, keyed by
// the names the workflow YAML references.
func DefaultHandlers() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"scoping":            handleScoping,
		"kickoff":            handleKickoff,
		"designing":          handleDesigning,
		"cross_critique":     handleCrossCritique,
		"implementing":       handleImplementing,
		"senior_review":      handleSeniorReview,
		"reviewing":          handleReviewing,
		"revision_design":    handleRevisionDesign,
		"revision_implement": handleRevisionImplement,
	}
}

// runActor executes one agent call with activity and status bookkeeping.
// A degraded (defaulted) structured result is absorbed here: the empty
// mapping flows downstream and shows up as zero counts in checkpoint
// context, never as a phase failure.
func runActor(ctx context.Context, rt *Runtime, sess *Session, req *agent.TaskRequest, sink agent.ChunkSink) (map[string]any, error) {
	a, err := rt.Agents.ForRole(req.Actor)
	if err != nil {
		return nil, fmt.Errorf("resolve agent for %s: %w", req.Actor, err)
	}
	req.SessionID = sess.ID

	rt.Queue.Publish(event.KindStatusUpdate, map[string]any{
		"actor":    req.Actor,
		"status":   "working",
		"task":     req.Task,
		"progress": 0.0,
	})

	res, err := a.Run(ctx, req, sink)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", req.Actor, req.Task, err)
	}
	rt.Logger.Debugw("agent task complete",
		"session_id", sess.ID,
		"actor", req.Actor,
		"task", req.Task,
		"fields", len(res.Output),
	)

	rt.Queue.Publish(event.KindStatusUpdate, map[string]any{
		"actor":    req.Actor,
		"status":   "done",
		"task":     req.Task,
		"progress": 1.0,
	})
	return res.Output, nil
}

func activity(rt *Runtime, actor, message string) {
	rt.Queue.Publish(event.KindActivity, map[string]any{
		"actor":   actor,
		"message": message,
		"level":   "info",
	})
}

func handleScoping(ctx context.Context, rt *Runtime, sess *Session) (map[string]any, error) {
	activity(rt, "manager", "analyzing the brief")
	return runActor(ctx, rt, sess, &agent.TaskRequest{
		Phase: "scoping",
		Actor: "manager",
		Task:  "scoping",
		Prompt: "Interpret this client brief into a project scope. Answer with " +
			`{"summary": string, "deliverables": [string], "audience": string}.` +
			"\n\nBrief:\n" + sess.Brief,
	}, nil)
}

func handleKickoff(ctx context.Context, rt *Runtime, sess *Session) (map[string]any, error) {
	activity(rt, "manager", "writing the kickoff direction")
	scoping, _ := sess.Output("scoping")
	return runActor(ctx, rt, sess, &agent.TaskRequest{
		Phase:   "kickoff",
		Actor:   "manager",
		Task:    "kickoff",
		Prompt:  `Write a short creative direction brief for the team. Answer with {"direction": string}.`,
		Context: map[string]any{"scoping": scoping},
	}, nil)
}

// designTasks builds the concurrent designing sub-tasks. Revision reruns
// pass the decision feedback through and force flag recording.
func designTasks(rt *Runtime, sess *Session, feedback string) []SubTask {
	scoping, _ := sess.Output("scoping")
	kickoff, _ := sess.Output("kickoff")
	base := map[string]any{"scoping": scoping, "kickoff": kickoff}

	return []SubTask{
		{
			Name:  "concept",
			Actor: "senior",
			Run: func(ctx context.Context, hook MilestoneHook) (map[string]any, error) {
				out, err := runActor(ctx, rt, sess, &agent.TaskRequest{
					Phase:    "designing",
					Actor:    "senior",
					Task:     "concept",
					Prompt:   `Produce the design concept. Answer with {"summary": string, "sections": [string]}.`,
					Context:  base,
					Feedback: feedback,
				}, nil)
				if err != nil {
					return nil, err
				}
				hook(ctx, "concept_draft", summaryOf(out))
				return out, nil
			},
		},
		{
			Name:  "visual",
			Actor: "visual",
			Run: func(ctx context.Context, hook MilestoneHook) (map[string]any, error) {
				out, err := runActor(ctx, rt, sess, &agent.TaskRequest{
					Phase:    "designing",
					Actor:    "visual",
					Task:     "visual",
					Prompt:   `Define the visual language. Answer with {"summary": string, "palette": [string]}.`,
					Context:  base,
					Feedback: feedback,
				}, nil)
				if err != nil {
					return nil, err
				}
				hook(ctx, "visual_draft", summaryOf(out))
				return out, nil
			},
		},
		{
			Name:  "ponder",
			Actor: "manager",
			Run: func(ctx context.Context, hook MilestoneHook) (map[string]any, error) {
				return runActor(ctx, rt, sess, &agent.TaskRequest{
					Phase:   "designing",
					Actor:   "manager",
					Task:    "ponder",
					Prompt:  `Reconsider the direction against the brief while the designers work. Answer with {"notes": string}.`,
					Context: base,
				}, nil)
			},
		},
	}
}

func handleDesigning(ctx context.Context, rt *Runtime, sess *Session) (map[string]any, error) {
	activity(rt, "senior", "drafting the concept")
	activity(rt, "visual", "exploring the visual language")
	results, err := rt.Coordinator.Run(ctx, sess, designTasks(rt, sess, ""), RunOptions{
		Reference: sess.Brief,
	})
	if err != nil {
		return nil, err
	}
	return flatten(results), nil
}

func handleCrossCritique(ctx context.Context, rt *Runtime, sess *Session) (map[string]any, error) {
	activity(rt, "manager", "checking concept and visual alignment")
	designing, _ := sess.Output("designing")
	return runActor(ctx, rt, sess, &agent.TaskRequest{
		Phase:   "cross_critique",
		Actor:   "manager",
		Task:    "cross_critique",
		Prompt:  `Check that the concept and visual language agree. Answer with {"alignment": string, "ok": bool}.`,
		Context: map[string]any{"designing": designing},
	}, nil)
}

// implementTask wires the junior's raw model stream through the field
// extractor so the prototype previews as partial_output events before the
// full response parses.
func implementTask(rt *Runtime, sess *Session, feedback string) []SubTask {
	designing, _ := sess.Output("designing")
	critique, _ := sess.Output("cross_critique")

	return []SubTask{{
		Name:  "build",
		Actor: "junior",
		Run: func(ctx context.Context, hook MilestoneHook) (map[string]any, error) {
			extractor := stream.New("html_prototype", func(fragment string) {
				rt.Queue.Publish(event.KindPartialOutput, map[string]any{
					"field":    "html_prototype",
					"fragment": fragment,
				})
			})
			out, err := runActor(ctx, rt, sess, &agent.TaskRequest{
				Phase: "implementing",
				Actor: "junior",
				Task:  "implementing",
				Prompt: "Implement the prototype. Answer with " +
					`{"components": [string], "notes": string, "html_prototype": string}.`,
				Context:  map[string]any{"designing": designing, "cross_critique": critique},
				Feedback: feedback,
			}, extractor.Feed)
			if err != nil {
				return nil, err
			}
			// Two staged milestones: the component structure, then the
			// assembled prototype.
			hook(ctx, "structure", summaryOf(out))
			if html, ok := out["html_prototype"].(string); ok && html != "" {
				hook(ctx, "polish", fmt.Sprintf("prototype of %d bytes", len(html)))
				rt.Queue.Publish(event.KindOutputReady, map[string]any{
					"field": "html_prototype",
					"bytes": len(html),
				})
			}
			return out, nil
		},
	}}
}

func handleImplementing(ctx context.Context, rt *Runtime, sess *Session) (map[string]any, error) {
	activity(rt, "junior", "building the prototype")
	results, err := rt.Coordinator.Run(ctx, sess, implementTask(rt, sess, ""), RunOptions{
		Reference: sess.Brief,
	})
	if err != nil {
		return nil, err
	}
	return results["build"], nil
}

func handleSeniorReview(ctx context.Context, rt *Runtime, sess *Session) (map[string]any, error) {
	activity(rt, "senior", "auditing the prototype")
	implementing, _ := sess.Output("implementing")
	designing, _ := sess.Output("designing")
	return runActor(ctx, rt, sess, &agent.TaskRequest{
		Phase:   "senior_review",
		Actor:   "senior",
		Task:    "senior_review",
		Prompt:  `Audit the implementation against the approved direction. Answer with {"verdict": string, "notes": string}.`,
		Context: map[string]any{"implementing": implementing, "designing": designing},
	}, nil)
}

func handleReviewing(ctx context.Context, rt *Runtime, sess *Session) (map[string]any, error) {
	activity(rt, "manager", "writing the final quality report")
	return runActor(ctx, rt, sess, &agent.TaskRequest{
		Phase:   "reviewing",
		Actor:   "manager",
		Task:    "reviewing",
		Prompt:  `Write the final quality report. Answer with {"report": string, "score": number}.`,
		Context: sessOutputs(sess, "implementing", "senior_review"),
	}, nil)
}

func handleRevisionDesign(ctx context.Context, rt *Runtime, sess *Session) (map[string]any, error) {
	feedback := decisionFeedback(sess)
	activity(rt, "senior", "reworking the design from feedback")
	results, err := rt.Coordinator.Run(ctx, sess, designTasks(rt, sess, feedback), RunOptions{
		AlwaysRecord: true,
		Reference:    sess.Brief,
	})
	if err != nil {
		return nil, err
	}
	return flatten(results), nil
}

func handleRevisionImplement(ctx context.Context, rt *Runtime, sess *Session) (map[string]any, error) {
	feedback := decisionFeedback(sess)
	activity(rt, "junior", "reworking the prototype from feedback")
	results, err := rt.Coordinator.Run(ctx, sess, implementTask(rt, sess, feedback), RunOptions{
		AlwaysRecord: true,
		Reference:    sess.Brief,
	})
	if err != nil {
		return nil, err
	}
	return results["build"], nil
}

// flatten nests each sub-task's result under its task name.
func flatten(results map[string]map[string]any) map[string]any {
	out := make(map[string]any, len(results))
	for name, res := range results {
		out[name] = res
	}
	return out
}

func sessOutputs(sess *Session, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := sess.Output(k); ok {
			out[k] = v
		}
	}
	return out
}

func summaryOf(out map[string]any) string {
	if s, ok := out["summary"].(string); ok && s != "" {
		return s
	}
	return fmt.Sprintf("structured result with %d fields", len(out))
}

func decisionFeedback(sess *Session) string {
	if d := sess.LastDecision(); d != nil && d.Action == ActionRevise {
		return d.Feedback
	}
	return ""
}
