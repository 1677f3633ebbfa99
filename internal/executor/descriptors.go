package executor

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/riftscan/sentinel/internal/policy"
)

// regionWork is the file handed to each run-region child: the loaded
// descriptors plus, for event-driven jobs, the region -> rule-id
// mapping that further narrows which descriptors run where.
type regionWork struct {
	Descriptors    []policy.Descriptor `json:"descriptors"`
	RegionsToRules map[string][]string `json:"regions_to_rules,omitempty"`
}

// writeDescriptorsFile serializes descriptors to a temp file the
// region children read back, alongside a cleanup func the caller defers.
func writeDescriptorsFile(dir string, descriptors []policy.Descriptor, regionsToRules map[string][]string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp(dir, "descriptors-*.json")
	if err != nil {
		return "", func() {}, fmt.Errorf("executor: create descriptors file: %w", err)
	}
	cleanup = func() { os.Remove(f.Name()) }

	work := regionWork{Descriptors: descriptors, RegionsToRules: regionsToRules}
	if err := json.NewEncoder(f).Encode(work); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, fmt.Errorf("executor: write descriptors file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("executor: close descriptors file: %w", err)
	}
	return f.Name(), cleanup, nil
}

// ReadDescriptorsFile is run-region's counterpart, reading back what
// writeDescriptorsFile produced.
func ReadDescriptorsFile(path string) ([]policy.Descriptor, map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("executor: read descriptors file: %w", err)
	}
	var work regionWork
	if err := json.Unmarshal(data, &work); err != nil {
		return nil, nil, fmt.Errorf("executor: decode descriptors file: %w", err)
	}
	return work.Descriptors, work.RegionsToRules, nil
}
