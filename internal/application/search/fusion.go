package search

import (
	"sort"
)

// scoredID 单路检索的有序结果项
type scoredID struct {
	id    string
	score float64
}

// fuseRRF 倒数排名融合：score = Σ 1/(k + rank + 1)
// 平分时先比两路最优名次，再比 chunk ID，保证结果稳定
func fuseRRF(fulltext, vector []scoredID, k int) []*candidate {
	merged := make(map[string]*candidate)

	accumulate := func(list []scoredID, lexical bool) {
		for rank, item := range list {
			c, ok := merged[item.id]
			if !ok {
				c = &candidate{chunkID: item.id, bestRank: rank}
				merged[item.id] = c
			}
			c.score += 1.0 / float64(k+rank+1)
			if rank < c.bestRank {
				c.bestRank = rank
			}
			raw := item.score
			if lexical {
				c.lexScore = &raw
			} else {
				c.vecScore = &raw
			}
		}
	}

	accumulate(fulltext, true)
	accumulate(vector, false)

	return sortCandidates(merged)
}

// fuseWeighted 加权融合：各路分数先做 min-max 归一化再加权求和
func fuseWeighted(fulltext, vector []scoredID, fulltextWeight, vectorWeight float64) []*candidate {
	merged := make(map[string]*candidate)

	accumulate := func(raw []scoredID, weight float64, lexical bool) {
		normalized := minMaxNormalize(raw)
		for rank, item := range normalized {
			c, ok := merged[item.id]
			if !ok {
				c = &candidate{chunkID: item.id, bestRank: rank}
				merged[item.id] = c
			}
			c.score += weight * item.score
			if rank < c.bestRank {
				c.bestRank = rank
			}
			rawScore := raw[rank].score
			if lexical {
				c.lexScore = &rawScore
			} else {
				c.vecScore = &rawScore
			}
		}
	}

	accumulate(fulltext, fulltextWeight, true)
	accumulate(vector, vectorWeight, false)

	return sortCandidates(merged)
}

// minMaxNormalize 将分数归一化到 [0,1]，分数全部相同时统一取 1
func minMaxNormalize(list []scoredID) []scoredID {
	if len(list) == 0 {
		return nil
	}

	lo, hi := list[0].score, list[0].score
	for _, item := range list[1:] {
		if item.score < lo {
			lo = item.score
		}
		if item.score > hi {
			hi = item.score
		}
	}

	out := make([]scoredID, len(list))
	for i, item := range list {
		score := 1.0
		if hi > lo {
			score = (item.score - lo) / (hi - lo)
		}
		out[i] = scoredID{id: item.id, score: score}
	}
	return out
}

// sortCandidates 按融合分降序排序，平分时按最优名次、再按 chunk ID
func sortCandidates(merged map[string]*candidate) []*candidate {
	out := make([]*candidate, 0, len(merged))
	for _, c := range merged {
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].bestRank != out[j].bestRank {
			return out[i].bestRank < out[j].bestRank
		}
		return out[i].chunkID < out[j].chunkID
	})

	return out
}
