package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(cands []*candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.chunkID)
	}
	return out
}

func TestFuseRRF(t *testing.T) {
	lexical := []scoredID{{"a", 3.0}, {"b", 2.0}, {"c", 1.0}}
	vector := []scoredID{{"b", 0.9}, {"a", 0.8}, {"d", 0.7}}

	t.Run("deterministic order for the reference lists", func(t *testing.T) {
		first := fuseRRF(lexical, vector, 60)
		for i := 0; i < 10; i++ {
			again := fuseRRF(lexical, vector, 60)
			assert.Equal(t, ids(first), ids(again))
		}

		// a 和 b 各自是一路第 1、另一路第 2：1/61+1/62，平分。
		// 决胜按最优名次(相同)再按 chunk ID 升序，a 在前。
		require.Equal(t, []string{"a", "b", "c", "d"}, ids(first))
	})

	t.Run("missing from a list contributes nothing", func(t *testing.T) {
		fused := fuseRRF(lexical, vector, 60)
		byID := map[string]*candidate{}
		for _, c := range fused {
			byID[c.chunkID] = c
		}
		assert.InDelta(t, 1.0/63, byID["c"].score, 1e-12)
		assert.InDelta(t, 1.0/63, byID["d"].score, 1e-12)
	})

	t.Run("raw stage scores are preserved per list", func(t *testing.T) {
		fused := fuseRRF(lexical, vector, 60)
		byID := map[string]*candidate{}
		for _, c := range fused {
			byID[c.chunkID] = c
		}
		require.NotNil(t, byID["a"].lexScore)
		assert.Equal(t, 3.0, *byID["a"].lexScore)
		require.NotNil(t, byID["a"].vecScore)
		assert.InDelta(t, 0.8, *byID["a"].vecScore, 1e-9)
		assert.Nil(t, byID["c"].vecScore)
		assert.Nil(t, byID["d"].lexScore)
	})

	t.Run("single list works", func(t *testing.T) {
		fused := fuseRRF(lexical, nil, 60)
		assert.Equal(t, []string{"a", "b", "c"}, ids(fused))
	})
}

func TestFuseWeighted(t *testing.T) {
	t.Run("weights shift the ordering", func(t *testing.T) {
		lexical := []scoredID{{"a", 10.0}, {"b", 1.0}}
		vector := []scoredID{{"b", 0.99}, {"a", 0.01}}

		vectorHeavy := fuseWeighted(lexical, vector, 0.1, 0.9)
		assert.Equal(t, "b", vectorHeavy[0].chunkID)

		lexicalHeavy := fuseWeighted(lexical, vector, 0.9, 0.1)
		assert.Equal(t, "a", lexicalHeavy[0].chunkID)
	})

	t.Run("uniform scores normalize to one", func(t *testing.T) {
		flat := []scoredID{{"a", 5.0}, {"b", 5.0}}
		fused := fuseWeighted(flat, nil, 1.0, 0.0)
		for _, c := range fused {
			assert.InDelta(t, 1.0, c.score, 1e-12)
		}
	})
}

func TestMinMaxNormalize(t *testing.T) {
	got := minMaxNormalize([]scoredID{{"a", 10}, {"b", 5}, {"c", 0}})
	assert.Equal(t, 1.0, got[0].score)
	assert.Equal(t, 0.5, got[1].score)
	assert.Equal(t, 0.0, got[2].score)
	assert.Nil(t, minMaxNormalize(nil))
}
