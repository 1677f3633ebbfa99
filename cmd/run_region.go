package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/riftscan/sentinel/internal/domain"
	"github.com/riftscan/sentinel/internal/executor"
	"github.com/riftscan/sentinel/internal/policy"
	"github.com/riftscan/sentinel/internal/runner"
)

var runRegionCmd = &cobra.Command{
	Use:    "run-region",
	Short:  "Execute one region's policies (spawned by the worker, not run directly)",
	Hidden: true,
	RunE:   runRunRegion,
}

var runRegionFlags struct {
	cloud       string
	region      string
	descriptors string
	deadline    string
	jobID       string
}

func init() {
	f := runRegionCmd.Flags()
	f.StringVar(&runRegionFlags.cloud, "cloud", "", "tenant cloud, selects the error classifier")
	f.StringVar(&runRegionFlags.region, "region", "", "region to execute, or \"global\"")
	f.StringVar(&runRegionFlags.descriptors, "descriptors", "", "path to the serialized policy descriptors")
	f.StringVar(&runRegionFlags.deadline, "deadline", "", "absolute wall-clock deadline (RFC3339)")
	f.StringVar(&runRegionFlags.jobID, "job-id", "", "job id, for log correlation only")
	_ = runRegionCmd.MarkFlagRequired("region")
	_ = runRegionCmd.MarkFlagRequired("descriptors")
	_ = runRegionCmd.MarkFlagRequired("deadline")
}

// runRunRegion is the child-process half of the worker's per-region
// isolation: load the engine fresh, run one region's policies,
// write a single JSON result object to stdout, and exit. All logging
// goes to stderr so stdout stays machine-readable for the parent.
func runRunRegion(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	deadline, err := time.Parse(time.RFC3339, runRegionFlags.deadline)
	if err != nil {
		return fmt.Errorf("run-region: parse deadline: %w", err)
	}
	descriptors, regionsToRules, err := executor.ReadDescriptorsFile(runRegionFlags.descriptors)
	if err != nil {
		return err
	}
	policies, err := policiesForRegion(descriptors, runRegionFlags.region, regionsToRules)
	if err != nil {
		return err
	}

	outputDir, err := os.MkdirTemp("", "scan-output-*")
	if err != nil {
		return fmt.Errorf("run-region: create output dir: %w", err)
	}
	defer os.RemoveAll(outputDir)
	os.Setenv(executor.EnvOutputDir, outputDir)

	engine, err := policy.LoadEngine(cfg.EnginePath)
	if err != nil {
		return err
	}

	r := &runner.Runner{
		Executor:   engine,
		Classifier: runner.ClassifierFor(domain.Cloud(runRegionFlags.cloud)),
	}
	res := r.Run(context.Background(), runRegionFlags.region, policies, deadline)

	findings, err := executor.CollectFindings(outputDir, runRegionFlags.region, res.Succeeded)
	if err != nil {
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(executor.RegionResult{
		Region:    res.Region,
		Findings:  findings,
		Succeeded: res.Succeeded,
		Failures:  res.Failures,
	})
}

// policiesForRegion binds the descriptor list to one region: the
// synthetic global bucket gets every global policy exactly once, a
// concrete region gets only its own regional policies. An event-driven
// regions-to-rules mapping narrows the selection further.
func policiesForRegion(descriptors []policy.Descriptor, region string, regionsToRules map[string][]string) ([]policy.Policy, error) {
	if len(regionsToRules) > 0 {
		mapping := make(map[string]map[string]struct{}, len(regionsToRules))
		for r, names := range regionsToRules {
			set := make(map[string]struct{}, len(names))
			for _, n := range names {
				set[n] = struct{}{}
			}
			mapping[r] = set
		}
		loaded, err := policy.LoadFromRegionsToRules(descriptors, mapping)
		if err != nil {
			return nil, err
		}
		var out []policy.Policy
		for _, p := range loaded {
			if p.BoundRegion == region {
				out = append(out, p)
			}
		}
		return out, nil
	}

	if region == domain.GlobalRegion {
		loaded, _, err := policy.Load(descriptors, nil, true)
		if err != nil {
			return nil, err
		}
		var out []policy.Policy
		for _, p := range loaded {
			if p.BoundRegion == domain.GlobalRegion {
				out = append(out, p)
			}
		}
		return out, nil
	}
	loaded, _, err := policy.Load(descriptors, []string{region}, false)
	if err != nil {
		return nil, err
	}
	return loaded, nil
}
