package orchestrator

import (
	"math"
	"sort"

	"zeta.dev/memory/internal/zconfig"
)

// sublimationRange describes the contiguous token range a policy wants
// moved out of the live KV cache.
type sublimationRange struct {
	start, count int64
}

// maybeSublimate checks the configured policy against current host state
// and, if triggered, sublimates the resulting range. A no-op (nil, nil) for
// MANUAL or when no policy threshold is crossed.
func (o *Orchestrator) maybeSublimate() error {
	var rng *sublimationRange
	switch o.cfg.SublimatePolicy {
	case zconfig.Manual:
		return nil
	case zconfig.Window:
		rng = o.windowTrigger()
	case zconfig.Pressure:
		rng = o.pressureTrigger()
	case zconfig.Attention:
		rng = o.attentionTrigger()
	}
	if rng == nil {
		return nil
	}
	return o.sublimateRange(rng.start, rng.count)
}

// windowTrigger fires once the live cache has grown by SublimateWindowSize
// tokens since the last sublimation, evicting exactly that many oldest
// tokens (skipping position 0).
func (o *Orchestrator) windowTrigger() *sublimationRange {
	n := int64(o.cfg.SublimateWindowSize)
	kvUsed := o.host.KVUsed()
	if kvUsed-o.lastSublimateKV < n {
		return nil
	}
	return &sublimationRange{start: 1, count: n}
}

// pressureTrigger fires once kv_used/kv_max >= p, sublimating enough of the
// oldest tokens (skipping position 0) to bring usage down to p-0.1, rounded
// up to a whole number of blocks, with a floor of one block.
func (o *Orchestrator) pressureTrigger() *sublimationRange {
	kvUsed := o.host.KVUsed()
	kvMax := int64(o.cfg.KVMax)
	p := o.cfg.SublimatePressurePct
	if float64(kvUsed) < p*float64(kvMax) {
		return nil
	}
	target := (p - 0.1) * float64(kvMax)
	toRemove := float64(kvUsed) - target
	blockSize := int64(o.cfg.BlockSize)
	n := roundUpToBlock(toRemove, blockSize)
	if n < blockSize {
		n = blockSize
	}
	if n > kvUsed-1 {
		n = kvUsed - 1
	}
	if n <= 0 {
		return nil
	}
	return &sublimationRange{start: 1, count: n}
}

// attentionTrigger maintains a running importance EMA per live KV position
// (importance ← importance*decay + latest attention weight) and, once
// pressure p is reached, sublimates the minimum contiguous range covering
// the n lowest-importance positions (excluding 0), a conservative
// range-based fallback to scattered removal since host KV-removal APIs
// expect contiguous ranges.
func (o *Orchestrator) attentionTrigger() *sublimationRange {
	weights := o.host.AttentionWeights()
	kvUsed := o.host.KVUsed()
	decay := o.cfg.AttentionDecay
	for i := int64(0); i < kvUsed; i++ {
		w := 0.0
		if i < int64(len(weights)) {
			w = float64(weights[i])
		}
		o.importance[i] = o.importance[i]*decay + w
	}

	p := o.cfg.SublimatePressurePct
	kvMax := int64(o.cfg.KVMax)
	if float64(kvUsed) < p*float64(kvMax) {
		return nil
	}
	target := (p - 0.1) * float64(kvMax)
	toRemove := int(math.Ceil(float64(kvUsed) - target))
	blockSize := o.cfg.BlockSize
	if toRemove < blockSize {
		toRemove = blockSize
	}
	candidates := o.evictionCandidates(toRemove, kvUsed)
	if len(candidates) == 0 {
		return nil
	}
	lo, hi := candidates[0], candidates[0]
	for _, idx := range candidates {
		if idx < lo {
			lo = idx
		}
		if idx > hi {
			hi = idx
		}
	}
	count := hi - lo + 1
	if count > kvUsed-1 {
		count = kvUsed - 1
	}
	if lo < 1 {
		lo = 1
	}
	return &sublimationRange{start: lo, count: count}
}

// evictionCandidates returns the n lowest-importance live KV positions,
// excluding position 0. Exposed as get_eviction_candidates in spec terms.
func (o *Orchestrator) evictionCandidates(n int, kvUsed int64) []int64 {
	type scored struct {
		idx   int64
		score float64
	}
	all := make([]scored, 0, kvUsed-1)
	for i := int64(1); i < kvUsed; i++ {
		all = append(all, scored{idx: i, score: o.importance[i]})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].score < all[j].score })
	if n > len(all) {
		n = len(all)
	}
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].idx
	}
	return out
}

func roundUpToBlock(n float64, blockSize int64) int64 {
	count := int64(math.Ceil(n))
	if count <= 0 {
		return 0
	}
	blocks := (count + blockSize - 1) / blockSize
	return blocks * blockSize
}

// sublimateRange reads [start,start+count) from the host's live cache,
// persists it as a new block, removes it from the live cache, and registers
// the new block with the retrieval graph.
func (o *Orchestrator) sublimateRange(start, count int64) error {
	keys, values, err := o.host.ReadKV(start, start+count)
	if err != nil {
		return err
	}
	summary := meanPool(keys, int(count), o.cfg.SummaryDim)
	id, err := o.store.Ingest(start, count, keys, values, summary)
	if err != nil {
		return err
	}
	if err := o.host.RemoveKV(start, start+count); err != nil {
		return err
	}
	o.retrieval.AddBlock(id, summary)
	o.lastSublimateKV = o.host.KVUsed()
	o.metrics.BytesSublimated.Add(float64(len(keys)+len(values)) * 4)
	o.log.Infof("sublimated block", "block_id", id, "token_start", start, "token_count", count)
	return nil
}

func meanPool(keys []float32, tokenCount, dim int) []float32 {
	out := make([]float32, dim)
	if tokenCount == 0 {
		return out
	}
	for t := 0; t < tokenCount; t++ {
		row := keys[t*dim : (t+1)*dim]
		for j, v := range row {
			out[j] += v
		}
	}
	inv := float32(1) / float32(tokenCount)
	for j := range out {
		out[j] *= inv
	}
	return out
}
