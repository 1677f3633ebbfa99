package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftscan/sentinel/internal/policy"
)

type stubExecutor struct {
	errFor map[string]error
}

func (s stubExecutor) Execute(_ context.Context, p policy.Policy) (int, error) {
	if err, ok := s.errFor[p.Name]; ok {
		return 0, err
	}
	return 3, nil
}

type stubClassifier struct {
	kind ErrorKind
}

func (s stubClassifier) Classify(err error) (ErrorKind, string) {
	return s.kind, err.Error()
}

func policies(names ...string) []policy.Policy {
	out := make([]policy.Policy, 0, len(names))
	for _, n := range names {
		out = append(out, policy.Policy{Descriptor: policy.Descriptor{Name: n, Resource: "aws.ec2"}, BoundRegion: "eu-west-1"})
	}
	return out
}

func TestRun_CredentialsErrorIsTerminalForRemainingPolicies(t *testing.T) {
	exec := stubExecutor{errFor: map[string]error{"p2": errors.New("bad creds")}}
	r := &Runner{Executor: exec, Classifier: stubClassifier{kind: ErrCredentials}}

	res := r.Run(context.Background(), "eu-west-1", policies("p1", "p2", "p3"), time.Now().Add(time.Hour))

	assert.Equal(t, 3, res.Succeeded["p1"])
	require.Len(t, res.Failures, 2)
	assert.Equal(t, ErrCredentials, res.Failures[0].Kind)
	assert.Equal(t, ErrCredentials, res.Failures[1].Kind, "p3 never runs, carries over the credentials failure")
	assert.NotContains(t, res.Succeeded, "p3")
}

func TestRun_AccessErrorIsNotTerminal(t *testing.T) {
	exec := stubExecutor{errFor: map[string]error{"p1": errors.New("denied")}}
	r := &Runner{Executor: exec, Classifier: stubClassifier{kind: ErrAccess}}

	res := r.Run(context.Background(), "eu-west-1", policies("p1", "p2"), time.Now().Add(time.Hour))

	assert.Equal(t, 3, res.Succeeded["p2"], "p2 still runs after a non-terminal ACCESS failure")
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Trace, "denied")
}

func TestRun_DeadlineMarksRemainingSkipped(t *testing.T) {
	exec := stubExecutor{}
	r := &Runner{Executor: exec, Classifier: stubClassifier{}}

	past := time.Now().Add(-time.Minute)
	res := r.Run(context.Background(), "eu-west-1", policies("p1", "p2"), past)

	require.Len(t, res.Failures, 2)
	for _, f := range res.Failures {
		assert.Equal(t, ErrSkipped, f.Kind)
	}
	assert.Empty(t, res.Succeeded)
}
