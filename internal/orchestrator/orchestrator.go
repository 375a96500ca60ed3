// Package orchestrator wires the hash/PRNG, policy binding, block store,
// retrieval engine, prefetcher, and attention kernels into the two hooks a
// host LLM runtime calls once per decode step, and owns the sublimation
// policy that feeds the store new blocks.
package orchestrator

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"zeta.dev/memory/internal/binding"
	"zeta.dev/memory/internal/kernels"
	"zeta.dev/memory/internal/prefetch"
	"zeta.dev/memory/internal/retrieval"
	"zeta.dev/memory/internal/store"
	"zeta.dev/memory/internal/zconfig"
	"zeta.dev/memory/internal/zetalog"
	"zeta.dev/memory/internal/zfile"
)

// Orchestrator exclusively owns the policy binding and the block store; the
// retrieval engine and prefetcher only borrow the store (they mutate
// residency/adjacency, never block identity or content).
type Orchestrator struct {
	sessionID uuid.UUID
	cfg       zconfig.Config
	binding   *binding.Binding
	store     *store.Store
	retrieval *retrieval.Engine
	prefetch  *prefetch.Prefetcher
	host      Host
	log       zetalog.Sink
	metrics   *Metrics

	step            int64
	lastSublimateKV int64
	importance      map[int64]float64

	pending []retrieval.Candidate // retrieved this step, awaiting injection
}

// New builds an Orchestrator. reg may be nil to skip Prometheus
// registration (tests, or a host managing its own registry).
func New(cfg zconfig.Config, b *binding.Binding, st *store.Store, host Host, log zetalog.Sink, reg prometheus.Registerer) *Orchestrator {
	sessionID := uuid.New()
	return &Orchestrator{
		sessionID: sessionID,
		cfg:       cfg,
		binding:   b,
		store:     st,
		retrieval: retrieval.NewEngine(cfg.RetrieveThreshold),
		prefetch:  prefetch.New(cfg.MomentumGamma, cfg.RetrieveThreshold, cfg.PrefetchHintsPerSecond),
		host:      host,
		log:       log,
		metrics:   NewMetrics(reg, sessionID.String()),
		importance: make(map[int64]float64),
	}
}

// SessionID returns this orchestrator instance's session identifier,
// attached as a label to every metric. Log lines do not carry it.
func (o *Orchestrator) SessionID() uuid.UUID {
	return o.sessionID
}

// RestoreGraph replays every block the store currently holds into the
// retrieval graph's predecessor-link adjacency, in ascending block_id
// order. A host calls this once after store.LoadExisting so restart
// continuity matches the original session's temporal links; skipping it is
// safe but leaves the graph edge-less until new blocks are sublimated.
func (o *Orchestrator) RestoreGraph() {
	blocks := o.store.AllBlocks()
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].BlockID < blocks[j].BlockID })
	for _, b := range blocks {
		o.retrieval.AddBlock(b.BlockID, b.Summary)
	}
}

// PreDecodeHook runs the ordered pre-decode sequence: apply_decay →
// momentum_update+prefetch_hint → retrieve → activate → mark touched.
func (o *Orchestrator) PreDecodeHook() error {
	o.step++
	o.store.AdvanceGeneration()

	o.store.ApplyTemporalDecay(o.step, o.cfg.TemporalLambda)
	o.metrics.DecayApplications.Inc()

	q := o.host.MeanQuery()
	o.prefetch.Step(o.store, q)

	hitsBefore, missesBefore, _, _ := o.store.Stats()
	cands := o.retrieval.Retrieve(o.store, q, o.cfg.TopK, o.cfg.MaxActiveBlocks, o.cfg.HopBudget, o.step)
	kept := cands[:0:0]
	for _, c := range cands {
		if _, _, err := o.store.Activate(c.BlockID); err != nil {
			o.log.Warnf("activate failed, dropping candidate", "block_id", c.BlockID, "err", err)
			continue
		}
		kept = append(kept, c)
	}
	hitsAfter, missesAfter, _, _ := o.store.Stats()
	o.metrics.CacheHits.Add(float64(hitsAfter - hitsBefore))
	o.metrics.CacheMisses.Add(float64(missesAfter - missesBefore))
	o.metrics.BlocksRetrieved.Add(float64(len(cands)))

	o.pending = kept
	return nil
}

// PostAttentionHook computes the summed superposition contribution for
// whatever PreDecodeHook retrieved, injects it into the host's attention
// output for the final sequence position, clears the pending set, and then
// runs the configured sublimation policy.
func (o *Orchestrator) PostAttentionHook() error {
	if len(o.pending) == 0 {
		return o.maybeSublimate()
	}

	var total []float32
	for _, c := range o.pending {
		keys, values, err := o.store.Activate(c.BlockID)
		if err != nil {
			o.log.Warnf("activate during injection failed", "block_id", c.BlockID, "err", err)
			continue
		}
		contrib := memoryContribution(o.lastQuery(), keys, values, o.cfg.SummaryDim, c.Score)
		if total == nil {
			total = make([]float32, len(contrib))
		}
		kernels.SuperpositionInjection(total, contrib, 1)

		if host, ok := o.host.(PortableKVHost); ok {
			o.reinjectPortableKV(host, c.BlockID)
		}
	}
	o.pending = nil

	if total != nil {
		o.host.InjectOutput(total)
	}

	return o.maybeSublimate()
}

// reinjectPortableKV captures blockID's keys as a Graph-KV stream, rebases
// it to the live KV cache's current end (the position its rows will occupy
// once spliced in), and hands the encoded stream to a host that exposes a
// portable sequence-state blob. Encode or reinject failures are logged and
// otherwise non-fatal: the summed superposition contribution already
// computed for this candidate stands on its own.
func (o *Orchestrator) reinjectPortableKV(host PortableKVHost, blockID int64) {
	stream, err := o.store.EncodePortableKV(blockID)
	if err != nil {
		o.log.Warnf("graph-kv encode failed", "block_id", blockID, "err", err)
		return
	}
	pos := host.KVUsed()
	stream = stream.RebaseForReinjection(pos)
	enc := zfile.EncodeGraphKVStream(stream)
	if err := host.ReinjectPortableKV(pos, enc); err != nil {
		o.log.Warnf("graph-kv reinject failed", "block_id", blockID, "injection_pos", pos, "err", err)
		return
	}
	o.log.Infof("graph-kv reinjected", "block_id", blockID, "injection_pos", pos, "bytes", len(enc))
}

// lastQuery re-derives the query vector used for this step's injection. The
// prefetcher already holds q_curr from the matching PreDecodeHook call.
func (o *Orchestrator) lastQuery() []float32 {
	return o.prefetch.CurrentQuery()
}

// memoryContribution computes alpha * softmax(q·K^T/sqrt(d)) · V for one
// retrieved block, per the spec's per-block injection formula.
func memoryContribution(query, keys, values []float32, dim int, alpha float64) []float32 {
	if len(query) == 0 || dim == 0 {
		return make([]float32, dim)
	}
	tokenCount := len(keys) / dim
	scores := make([]float32, tokenCount)
	invSqrtD := float32(1 / math.Sqrt(float64(dim)))
	for t := 0; t < tokenCount; t++ {
		row := keys[t*dim : (t+1)*dim]
		var dot float32
		for j, v := range row {
			dot += query[j] * v
		}
		scores[t] = dot * invSqrtD
	}
	kernels.SparseSoftmax(scores, 1, tokenCount, 0)

	out := make([]float32, dim)
	for t := 0; t < tokenCount; t++ {
		w := scores[t]
		if w == 0 {
			continue
		}
		row := values[t*dim : (t+1)*dim]
		for j, v := range row {
			out[j] += w * v
		}
	}
	a := float32(alpha)
	for j := range out {
		out[j] *= a
	}
	return out
}

// Stats returns the store's cumulative cache-hit/miss counters and its block
// and active-set counts. It does not touch the Prometheus metrics.
func (o *Orchestrator) Stats() (hits, misses int64, blocks, active int) {
	return o.store.Stats()
}
