// Package domain holds the core entities shared by the submission
// controller and the executor: tenants, platforms, licenses, rule-sets,
// jobs, and the records that back the tenant lock and the scheduler.
package domain

// Cloud identifies which provider a tenant's account lives in.
type Cloud string

const (
	AWS        Cloud = "AWS"
	AZURE      Cloud = "AZURE"
	GCP        Cloud = "GCP"
	KUBERNETES Cloud = "KUBERNETES"
)

func (c Cloud) Valid() bool {
	switch c {
	case AWS, AZURE, GCP, KUBERNETES:
		return true
	default:
		return false
	}
}

// PlatformType distinguishes a managed Kubernetes offering from a
// self-hosted ("native") cluster; credential resolution for the two
// differs (see internal/credentials).
type PlatformType string

const (
	PlatformEKS    PlatformType = "EKS"
	PlatformNative PlatformType = "NATIVE"
)

// MultiRegion is the synthetic region GCP submissions collapse to.
const MultiRegion = "multiregion"

// GlobalRegion is the synthetic shard index AWS global policies are
// emitted under, regardless of the region list requested.
const GlobalRegion = "global"
