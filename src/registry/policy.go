package registry

import "www.github.com/Wanderer0074348/HybridInfer/src/models"

// Policy is the static tier order per task. It never changes at runtime.
type Policy map[models.TaskType][]models.BackendTier

// DefaultPolicy returns the production tier table. The remote API tier only
// exists for embeddings.
func DefaultPolicy() Policy {
	return Policy{
		models.TaskEmbedding: {
			models.TierIsolatedAccelerator,
			models.TierAcceleratedLocalRuntime,
			models.TierCpuLocalRuntime,
			models.TierRemoteAPI,
		},
		models.TaskSceneTextOCR: {
			models.TierDedicatedAccelerator,
			models.TierIsolatedAccelerator,
			models.TierAcceleratedLocalRuntime,
			models.TierCpuLocalRuntime,
		},
		models.TaskObjectDetection: {
			models.TierDedicatedAccelerator,
			models.TierIsolatedAccelerator,
			models.TierAcceleratedLocalRuntime,
			models.TierCpuLocalRuntime,
		},
	}
}

func (p Policy) Tiers(task models.TaskType) ([]models.BackendTier, bool) {
	tiers, ok := p[task]
	return tiers, ok
}

func (p Policy) allows(task models.TaskType, tier models.BackendTier) bool {
	for _, t := range p[task] {
		if t == tier {
			return true
		}
	}
	return false
}
