// Package runner implements the regional policy execution state machine
// for one region: run a prepared list of policies,
// classifying failures per-cloud and carrying credential failures
// forward as a terminal condition for the rest of the run.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/policy"
)

// ErrorKind classifies a policy invocation failure.
type ErrorKind string

const (
	ErrAccess      ErrorKind = "ACCESS"
	ErrCredentials ErrorKind = "CREDENTIALS"
	ErrClient      ErrorKind = "CLIENT"
	ErrInternal    ErrorKind = "INTERNAL"
	ErrSkipped     ErrorKind = "SKIPPED"
)

// Failure records a single policy's outcome within a region.
type Failure struct {
	Region  string
	Policy  string
	Kind    ErrorKind
	Message string
	Trace   string
}

// Result is the regional runner's output: per-policy resource counts
// for the policies that ran clean, and failures for the rest.
type Result struct {
	Region    string
	Succeeded map[string]int // policy name -> resource count
	Failures  []Failure
}

// Classifier maps a cloud-specific execution error to an ErrorKind. One
// implementation per cloud lives in classify_*.go.
type Classifier interface {
	Classify(err error) (ErrorKind, string)
}

// Runner executes a region's policy list against a deadline with a
// two-field state machine: {ongoing bool, carry-over-error}.
type Runner struct {
	Executor   policy.Executor
	Classifier Classifier
	Clock      func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

// Run executes every policy bound to region in order, honoring deadline.
// Once a policy trips a CREDENTIALS error, every remaining policy in
// this region (this invocation only — state does not survive across
// regions) is recorded as a carry-over failure rather than invoked:
// invalid credentials are terminal.
func (r *Runner) Run(ctx context.Context, region string, policies []policy.Policy, deadline time.Time) Result {
	res := Result{Region: region, Succeeded: make(map[string]int)}

	ongoing := true
	var carryOver *Failure

	for _, p := range policies {
		if ongoing && !r.now().Before(deadline) {
			ongoing = false
			carryOver = &Failure{Region: region, Kind: ErrSkipped, Message: "time exceeded"}
		}

		if !ongoing {
			f := Failure{Region: region, Policy: p.Name, Kind: carryOver.Kind, Message: carryOver.Message}
			res.Failures = append(res.Failures, f)
			continue
		}

		count, err := r.Executor.Execute(ctx, p)
		if err == nil {
			res.Succeeded[p.Name] = count
			continue
		}

		kind, msg := r.Classifier.Classify(err)
		res.Failures = append(res.Failures, Failure{
			Region:  region,
			Policy:  p.Name,
			Kind:    kind,
			Message: msg,
			Trace:   fmt.Sprintf("%+v", err),
		})
		if kind == ErrCredentials {
			ongoing = false
			carryOver = &Failure{Region: region, Kind: ErrCredentials, Message: "credentials failed: " + msg}
		}
	}
	return res
}

// ClassifierFor returns the Classifier matching a tenant's cloud.
func ClassifierFor(c domain.Cloud) Classifier {
	switch c {
	case domain.AWS:
		return AWSClassifier{}
	case domain.AZURE:
		return AzureClassifier{}
	case domain.GCP:
		return GCPClassifier{}
	case domain.KUBERNETES:
		return K8SClassifier{}
	default:
		return defaultClassifier{}
	}
}

type defaultClassifier struct{}

func (defaultClassifier) Classify(err error) (ErrorKind, string) {
	return ErrInternal, err.Error()
}
