package policy

import (
	"fmt"
	"plugin"
)

// LoadEngine resolves the embedded policy-evaluation engine. This
// module never implements scan logic itself — the engine is deployment-specific
// (which cloud SDKs it links, which resource types it knows how to
// describe) and is loaded as a Go plugin so the regional runner gets
// back the engine's own typed SDK errors (smithy.APIError,
// azcore.ResponseError, googleapi.Error) for the per-cloud classifiers
// in internal/runner to interpret directly, rather than a generic error
// that would be unclassifiable.
//
// A plugin built against this contract exports a single function symbol:
//
//	func NewExecutor() (policy.Executor, error)
func LoadEngine(path string) (Executor, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("policy: open engine plugin %s: %w", path, err)
	}
	sym, err := p.Lookup("NewExecutor")
	if err != nil {
		return nil, fmt.Errorf("policy: engine plugin %s missing NewExecutor symbol: %w", path, err)
	}
	factory, ok := sym.(func() (Executor, error))
	if !ok {
		return nil, fmt.Errorf("policy: engine plugin %s NewExecutor has the wrong signature", path)
	}
	return factory()
}
