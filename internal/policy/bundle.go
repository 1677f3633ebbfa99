package policy

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// bundleFile is the on-disk shape of a rule-set descriptor bundle: a
// top-level "policies" list, matching Cloud Custodian's own policy-file
// convention.
type bundleFile struct {
	Policies []bundlePolicy `yaml:"policies"`
}

type bundlePolicy struct {
	Name     string `yaml:"name"`
	Resource string `yaml:"resource"`
	Comment  string `yaml:"comment"`
	Provider string `yaml:"provider,omitempty"`
	Region   string `yaml:"region,omitempty"`
}

// ParseBundle reads a rule-set descriptor bundle (YAML) into Descriptors.
func ParseBundle(r io.Reader) ([]Descriptor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("policy: read bundle: %w", err)
	}
	var bf bundleFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("policy: parse bundle: %w", err)
	}
	out := make([]Descriptor, 0, len(bf.Policies))
	for _, p := range bf.Policies {
		out = append(out, Descriptor{
			Name:     p.Name,
			Resource: p.Resource,
			Provider: p.Provider,
			Comment:  p.Comment,
			Region:   p.Region,
		})
	}
	return out, nil
}
