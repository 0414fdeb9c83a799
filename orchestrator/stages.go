package orchestrator

import (
	"fmt"
	"sort"

	"github.com/xraph/simbank"
)

// Stages computes the paradigm-ordered execution layers for the given
// entity types. Every type in a stage has all of its in-set dependencies
// in earlier stages; types within a stage are independent and may run
// concurrently. Dependencies on types outside the set are treated as
// satisfied, since their identifiers may already be registered from a
// restored checkpoint.
func Stages(types []simbank.EntityType) ([][]simbank.EntityType, error) {
	present := make(map[simbank.EntityType]bool, len(types))
	for _, et := range types {
		present[et] = true
	}

	placed := make(map[simbank.EntityType]bool, len(types))
	remaining := append([]simbank.EntityType(nil), types...)
	sort.Slice(remaining, func(i, j int) bool { return remaining[i] < remaining[j] })

	var stages [][]simbank.EntityType
	for len(remaining) > 0 {
		var stage, next []simbank.EntityType
		for _, et := range remaining {
			ready := true
			for _, dep := range simbank.DependenciesOf(et) {
				if present[dep] && !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				stage = append(stage, et)
			} else {
				next = append(next, et)
			}
		}
		if len(stage) == 0 {
			return nil, fmt.Errorf("dependency cycle among %v: %w", next, simbank.ErrIntegrity)
		}
		for _, et := range stage {
			placed[et] = true
		}
		stages = append(stages, stage)
		remaining = next
	}
	return stages, nil
}
