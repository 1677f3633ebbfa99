package executor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/riftscan/sentinel/internal/shards"
)

// EnvOutputDir tells the policy engine where to drop its per-policy
// resource listings; run-region sets it before loading the engine.
const EnvOutputDir = "SENTINEL_OUTPUT_DIR"

type outputResource struct {
	ID string `json:"id"`
}

// CollectFindings builds the region's finding list from the engine's
// output directory: one <policy>/resources.json per policy that ran,
// each a list of matched resources. Policies present in succeeded but
// absent from the directory simply matched nothing.
func CollectFindings(outputDir, region string, succeeded map[string]int) ([]shards.Finding, error) {
	var out []shards.Finding
	for name := range succeeded {
		path := filepath.Join(outputDir, name, "resources.json")
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("executor: read %s: %w", path, err)
		}
		var resources []outputResource
		if err := json.Unmarshal(data, &resources); err != nil {
			return nil, fmt.Errorf("executor: decode %s: %w", path, err)
		}
		for _, r := range resources {
			out = append(out, shards.Finding{ResourceID: r.ID, Rule: name, Region: region})
		}
	}
	return out, nil
}
