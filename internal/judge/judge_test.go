package judge

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prepdash/battle-backend/internal/executor"
	"github.com/prepdash/battle-backend/internal/problem"
)

// fakeRunner doubles whatever integer it reads, like the seeded problem
// expects, and counts calls so short-circuiting is observable.
type fakeRunner struct {
	calls   int
	results []executor.RunResult // consumed in order; empty means compute
}

func (f *fakeRunner) Run(_ context.Context, spec executor.RunSpec) (executor.RunResult, error) {
	f.calls++
	if len(f.results) > 0 {
		res := f.results[0]
		f.results = f.results[1:]
		return res, nil
	}
	var n int
	_, _ = fmt.Sscan(string(spec.Input), &n)
	return executor.RunResult{Status: executor.StatusOK, Stdout: strconv.Itoa(2*n) + "\n"}, nil
}

func doublingProblem() problem.Problem {
	return problem.Problem{
		ID: "double-it",
		TestCases: []problem.TestCase{
			{Input: "1\n", Expected: "2\n"},
			{Input: "3\n", Expected: "6\n"},
		},
		Languages: []string{"python"},
		TimeLimit: 2 * time.Second,
	}
}

func submission() Submission {
	return Submission{ID: "sub-1", ParticipantID: "x", BattleID: "b-1", Code: []byte("code"), Language: "python"}
}

func TestEvaluate_AllCasesPass(t *testing.T) {
	j := New(&fakeRunner{}, Options{})

	v, err := j.Evaluate(context.Background(), submission(), doublingProblem())
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, v.Outcome)
	assert.Equal(t, 2, v.Passed)
	assert.Equal(t, 2, v.Total)
	assert.True(t, v.Accepted())
}

func TestEvaluate_ShortCircuitsOnFirstFailure(t *testing.T) {
	r := &fakeRunner{results: []executor.RunResult{
		{Status: executor.StatusOK, Stdout: "wrong\n"},
		{Status: executor.StatusOK, Stdout: "6\n"},
	}}
	j := New(r, Options{})

	v, err := j.Evaluate(context.Background(), submission(), doublingProblem())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWrongAnswer, v.Outcome)
	assert.Equal(t, 0, v.Passed)
	assert.Equal(t, 1, r.calls, "should stop at the first failure")
}

func TestEvaluate_RunAllCountsEveryCase(t *testing.T) {
	r := &fakeRunner{results: []executor.RunResult{
		{Status: executor.StatusOK, Stdout: "wrong\n"},
		{Status: executor.StatusOK, Stdout: "6\n"},
	}}
	j := New(r, Options{RunAll: true})

	v, err := j.Evaluate(context.Background(), submission(), doublingProblem())
	require.NoError(t, err)
	assert.Equal(t, OutcomeWrongAnswer, v.Outcome, "first failure kind wins")
	assert.Equal(t, 1, v.Passed)
	assert.Equal(t, 2, r.calls)
}

func TestEvaluate_FailureKinds(t *testing.T) {
	tests := []struct {
		name   string
		result executor.RunResult
		want   Outcome
	}{
		{"timeout", executor.RunResult{Status: executor.StatusTimedOut}, OutcomeTimeLimitExceeded},
		{"fault", executor.RunResult{Status: executor.StatusFaulted, ExitCode: 1}, OutcomeRuntimeError},
		{"compile", executor.RunResult{Status: executor.StatusCompileFailed}, OutcomeCompileError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := New(&fakeRunner{results: []executor.RunResult{tt.result}}, Options{})
			v, err := j.Evaluate(context.Background(), submission(), doublingProblem())
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Outcome)
		})
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	j := New(&fakeRunner{}, Options{})

	v1, err := j.Evaluate(context.Background(), submission(), doublingProblem())
	require.NoError(t, err)
	v2, err := j.Evaluate(context.Background(), submission(), doublingProblem())
	require.NoError(t, err)

	assert.Equal(t, v1.Outcome, v2.Outcome)
	assert.Equal(t, v1.Passed, v2.Passed)
	assert.Equal(t, v1.Total, v2.Total)
	assert.Equal(t, v1.SubmissionID, v2.SubmissionID)
}

func TestOutputsMatch(t *testing.T) {
	tests := []struct {
		got, want string
		match     bool
	}{
		{"42\n", "42", true},
		{"42\r\n", "42\n", true},
		{"  42  \n", "42", true},
		{"a \nb\n", "a\nb", true},
		{"4 2", "42", false},
		{"a\n\nb", "a\nb", false},
		{"", "42", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.match, outputsMatch(tt.got, tt.want), "%q vs %q", tt.got, tt.want)
	}
}
