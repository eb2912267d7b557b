package judge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/prepdash/battle-backend/internal/executor"
	"github.com/prepdash/battle-backend/internal/problem"
)

type Outcome string

const (
	OutcomeAccepted          Outcome = "Accepted"
	OutcomeWrongAnswer       Outcome = "WrongAnswer"
	OutcomeRuntimeError      Outcome = "RuntimeError"
	OutcomeTimeLimitExceeded Outcome = "TimeLimitExceeded"
	OutcomeCompileError      Outcome = "CompileError"
)

// Submission is immutable once created; the judge consumes it exactly once.
type Submission struct {
	ID            string
	ParticipantID string
	BattleID      string
	Code          []byte
	Language      string
	SubmittedAt   time.Time
}

// Verdict is the judge's final classification of one submission. Never
// mutated after creation.
type Verdict struct {
	ID           string        `json:"id"`
	SubmissionID string        `json:"submission_id"`
	Outcome      Outcome       `json:"outcome"`
	Passed       int           `json:"passed_tests"`
	Total        int           `json:"total_tests"`
	Duration     time.Duration `json:"duration"`
}

func (v Verdict) Accepted() bool { return v.Outcome == OutcomeAccepted }

// Runner is the slice of the executor the judge needs. *executor.Executor
// satisfies it.
type Runner interface {
	Run(ctx context.Context, spec executor.RunSpec) (executor.RunResult, error)
}

type Options struct {
	// RunAll keeps evaluating after the first failing case, trading
	// latency for a full pass count.
	RunAll bool
}

// Judge turns (submission, problem) pairs into verdicts. It holds no
// mutable cross-call state, so identical inputs always yield identical
// verdicts.
type Judge struct {
	runner Runner
	opts   Options
}

func New(runner Runner, opts Options) *Judge {
	return &Judge{runner: runner, opts: opts}
}

// Evaluate runs every test case in declared order, short-circuiting at the
// first non-accepted case unless RunAll is set. The returned error is
// reserved for caller bugs (bad language, oversize payload) and cancelled
// contexts; program misbehavior is always a verdict.
func (j *Judge) Evaluate(ctx context.Context, sub Submission, prob problem.Problem) (Verdict, error) {
	start := time.Now()
	v := Verdict{
		ID:           uuid.NewString(),
		SubmissionID: sub.ID,
		Outcome:      OutcomeAccepted,
		Total:        len(prob.TestCases),
	}

	for _, tc := range prob.TestCases {
		res, err := j.runner.Run(ctx, executor.RunSpec{
			Code:      sub.Code,
			Language:  sub.Language,
			Input:     []byte(tc.Input),
			TimeLimit: prob.TimeLimit,
		})
		if err != nil {
			return Verdict{}, errors.Wrap(err, "run test case")
		}

		outcome := classify(res, tc.Expected)
		if outcome == OutcomeAccepted {
			v.Passed++
			continue
		}
		if v.Outcome == OutcomeAccepted {
			// Keep the first failure kind.
			v.Outcome = outcome
		}
		if !j.opts.RunAll || outcome == OutcomeCompileError {
			break
		}
	}

	v.Duration = time.Since(start)
	return v, nil
}

func classify(res executor.RunResult, expected string) Outcome {
	switch res.Status {
	case executor.StatusCompileFailed:
		return OutcomeCompileError
	case executor.StatusTimedOut:
		return OutcomeTimeLimitExceeded
	case executor.StatusFaulted:
		return OutcomeRuntimeError
	}
	if outputsMatch(res.Stdout, expected) {
		return OutcomeAccepted
	}
	return OutcomeWrongAnswer
}
