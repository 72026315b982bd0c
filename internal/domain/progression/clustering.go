package progression

import (
	"math"

	"github.com/alem-hub/skill-progression/internal/domain/shared"
)

// Cluster is an emergent specialization formed by overflowing skills.
type Cluster struct {
	Key               string           `json:"key"`
	Prefix            shared.SkillID   `json:"prefix"`
	Members           []shared.SkillID `json:"members"`
	AverageSimilarity float64          `json:"average_similarity"`
}

// IsCandidate reports whether a node overflows its nominal capacity enough to
// take part in dynamic clustering: depth >= 2 and xp > capacity*(1.5+depth/5).
func IsCandidate(depth int, xp, capacity shared.XP) bool {
	if depth < minCandidateDepth {
		return false
	}
	return xp.Float() > capacity.Float()*(overflowBase+float64(depth)/overflowDepthScale)
}

// Similarity scores how alike two invested skills are, in [0,1]:
// 0.3*depthSimilarity + 0.4*xpRatioSimilarity + 0.3*pathPrefixSimilarity.
func Similarity(a shared.SkillID, depthA int, xpA shared.XP, b shared.SkillID, depthB int, xpB shared.XP) float64 {
	depthSim := 1 - math.Abs(float64(depthA-depthB))/similarityDepthScale
	if depthSim < 0 {
		depthSim = 0
	}

	xpSim := 1.0
	if hi := math.Max(xpA.Float(), xpB.Float()); hi > 0 {
		xpSim = math.Min(xpA.Float(), xpB.Float()) / hi
	}

	prefixSim := 0.0
	if longer := max(a.SegmentCount(), b.SegmentCount()); longer > 0 {
		prefixSim = float64(a.SharedPrefix(b).SegmentCount()) / float64(longer)
	}

	return similarityDepthWeight*depthSim + similarityXPWeight*xpSim + similarityPrefixWeight*prefixSim
}

func memberSimilarity(a, b member) float64 {
	return Similarity(a.id(), a.depth(), a.xp, b.id(), b.depth(), b.xp)
}

// prefixKey accumulates the candidates sharing one path prefix with some heavy node.
type prefixKey struct {
	prefix  shared.SkillID
	members []member
	seen    map[shared.SkillID]struct{}
	avg     float64
}

// clusterCandidates assigns overflowing entries to emergent clusters.
//
// Every candidate is compared with every other heavily invested entry; the
// shared path prefix of each pair names a potential cluster. A prefix
// qualifies when at least two candidates share it and their pairwise
// similarity averages above 0.6. Each candidate joins the qualifying prefix it
// has the highest affinity with (first found on ties). A prefix whose
// assigned members number fewer than two, or no longer average above 0.6, is
// dropped and its members are reassigned until the assignment is stable. Candidates without a cluster are absent from the result.
//
// entries must be sorted by skill id so the outcome is deterministic.
func clusterCandidates(entries []member) (map[shared.SkillID]string, []Cluster) {
	var candidates, heavy []member
	for _, e := range entries {
		if e.ratio() >= heavyRatio {
			heavy = append(heavy, e)
		}
		if IsCandidate(e.depth(), e.xp, e.node.Capacity()) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) < minClusterMembers {
		return nil, nil
	}

	var order []*prefixKey
	keys := make(map[shared.SkillID]*prefixKey)
	affinity := make(map[shared.SkillID]map[shared.SkillID]float64)

	for _, c := range candidates {
		for _, h := range heavy {
			if h.id() == c.id() {
				continue
			}
			prefix := c.id().SharedPrefix(h.id())
			if prefix == "" {
				continue
			}
			k, ok := keys[prefix]
			if !ok {
				k = &prefixKey{prefix: prefix, seen: make(map[shared.SkillID]struct{})}
				keys[prefix] = k
				order = append(order, k)
			}
			if _, dup := k.seen[c.id()]; !dup {
				k.seen[c.id()] = struct{}{}
				k.members = append(k.members, c)
			}
			if affinity[c.id()] == nil {
				affinity[c.id()] = make(map[shared.SkillID]float64)
			}
			if s := memberSimilarity(c, h); s > affinity[c.id()][prefix] {
				affinity[c.id()][prefix] = s
			}
		}
	}

	qualified := make(map[shared.SkillID]bool)
	for _, k := range order {
		if len(k.members) < minClusterMembers {
			continue
		}
		k.avg = averagePairwise(k.members)
		if k.avg > minClusterSimilarity {
			qualified[k.prefix] = true
		}
	}

	var assigned map[shared.SkillID][]member
	for {
		assigned = make(map[shared.SkillID][]member)
		for _, c := range candidates {
			best, bestAff := shared.SkillID(""), -1.0
			for _, k := range order {
				if !qualified[k.prefix] {
					continue
				}
				aff, ok := affinity[c.id()][k.prefix]
				if !ok {
					continue
				}
				if aff > bestAff {
					best, bestAff = k.prefix, aff
				}
			}
			if best != "" {
				assigned[best] = append(assigned[best], c)
			}
		}

		// The members a prefix ends up with must qualify on their own.
		dropped := false
		for prefix := range qualified {
			members := assigned[prefix]
			if len(members) < minClusterMembers || averagePairwise(members) <= minClusterSimilarity {
				delete(qualified, prefix)
				dropped = true
			}
		}
		if !dropped {
			break
		}
	}

	groups := make(map[shared.SkillID]string)
	var clusters []Cluster
	for _, k := range order {
		if !qualified[k.prefix] {
			continue
		}
		members := assigned[k.prefix]
		cl := Cluster{
			Key:               ClusterKeyPrefix + k.prefix.String(),
			Prefix:            k.prefix,
			AverageSimilarity: averagePairwise(members),
		}
		for _, m := range members {
			cl.Members = append(cl.Members, m.id())
			groups[m.id()] = cl.Key
		}
		clusters = append(clusters, cl)
	}
	return groups, clusters
}

// averagePairwise returns the mean similarity over all unordered member pairs.
func averagePairwise(members []member) float64 {
	var sum float64
	var pairs int
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			sum += memberSimilarity(members[i], members[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return sum / float64(pairs)
}
