package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/runner"
	"github.com/riftscan/sentinel/internal/shards"
)

// RegionResult is a single region's outcome, the unit the child process
// hands back to the driver: the matched findings (the engine's output
// directory, flattened), the per-rule resource counts, and any failures
// the regional runner recorded.
type RegionResult struct {
	Region    string            `json:"region"`
	Findings  []shards.Finding  `json:"findings"`
	Succeeded map[string]int    `json:"succeeded"`
	Failures  []runner.Failure  `json:"failures"`
}

// RegionSpawner runs one region's policy list to completion and reports
// its result. The production implementation is ProcessSpawner; tests
// substitute an in-process stub.
type RegionSpawner interface {
	Spawn(ctx context.Context, cloud domain.Cloud, region, descriptorsPath string, deadline time.Time, jobID string, creds map[string]string) (RegionResult, error)
}

// ProcessSpawner spawns this binary's own "run-region" subcommand as a
// fresh child process per region, passing credentials through a scoped
// environment frame rather than the parent's full environment, and
// reads the child's single JSON result object from stdout once it
// exits. Grounded on internal/aws/client.go's getCredentialsFromCLI
// shelling pattern (exec.CommandContext + cmd.Env + json.Unmarshal of
// captured output).
type ProcessSpawner struct {
	// SelfPath overrides the executable path; empty resolves os.Executable().
	SelfPath string
}

func (p *ProcessSpawner) self() string {
	if p.SelfPath != "" {
		return p.SelfPath
	}
	if exe, err := os.Executable(); err == nil {
		return exe
	}
	return "sentinel"
}

func (p *ProcessSpawner) Spawn(ctx context.Context, cloud domain.Cloud, region, descriptorsPath string, deadline time.Time, jobID string, creds map[string]string) (RegionResult, error) {
	cmd := exec.CommandContext(ctx, p.self(), "run-region",
		"--cloud", string(cloud),
		"--region", region,
		"--descriptors", descriptorsPath,
		"--deadline", deadline.Format(time.RFC3339),
		"--job-id", jobID,
	)
	cmd.Env = scopedEnv(creds)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return RegionResult{}, fmt.Errorf("executor: run-region %s: %w", region, err)
	}

	var res RegionResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return RegionResult{}, fmt.Errorf("executor: decode run-region %s output: %w", region, err)
	}
	return res, nil
}

// scopedEnv builds the child process's environment frame from scratch:
// PATH (so the policy engine binary resolves) plus the resolved
// credential map, never the parent's full os.Environ(): credentials are
// exported via a scoped environment frame.
func scopedEnv(creds map[string]string) []string {
	env := make([]string, 0, len(creds)+1)
	env = append(env, "PATH="+os.Getenv("PATH"))
	for k, v := range creds {
		env = append(env, k+"="+v)
	}
	return env
}
