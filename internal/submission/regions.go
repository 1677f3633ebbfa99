package submission

import (
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/riftscan/sentinel/internal/domain"
)

// regionCollator sorts region strings locale-stably rather than by raw
// byte value, matching the rest of the pack's use of golang.org/x/text
// for anything that ends up rendered back to an operator (here: the
// envelope's TARGET_REGIONS list). The executor orders regions on its
// own and does not use this collator.
var regionCollator = collate.New(language.English)

// ResolveRegions computes the region list a job actually targets.
// GCP always collapses to the single
// synthetic multiregion, deterministically, regardless of what was
// requested. Every other cloud intersects the requested list (or, if
// empty, the tenant's full active-region set) against the tenant's
// active regions and returns it locale-sorted.
func ResolveRegions(tenant *domain.Tenant, requested []string) []string {
	if tenant.Cloud == domain.GCP {
		return []string{domain.MultiRegion}
	}

	var candidates []string
	if len(requested) == 0 {
		candidates = tenant.RegionList()
	} else {
		for _, r := range requested {
			if tenant.HasRegion(r) {
				candidates = append(candidates, r)
			}
		}
	}
	regionCollator.SortStrings(candidates)
	return candidates
}
