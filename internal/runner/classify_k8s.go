package runner

// K8SClassifier implements Classifier for Kubernetes platforms: every
// K8S execution error is INTERNAL (no credentials/
// access split), since a failed client-go call against a cluster is
// rarely distinguishable from a genuine bug in the policy itself.
type K8SClassifier struct{}

func (K8SClassifier) Classify(err error) (ErrorKind, string) {
	return ErrInternal, err.Error()
}
