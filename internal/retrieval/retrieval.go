package retrieval

import (
	"math"
	"sort"
	"sync"

	"github.com/gammazero/deque"

	"zeta.dev/memory/internal/kernels"
	"zeta.dev/memory/internal/store"
)

const (
	predecessorLinkWeight = 0.8
	temporalPrevWeight    = 0.5
	recentWindowSize      = 7
)

// Candidate is one scored, admitted block.
type Candidate struct {
	BlockID int64
	Score   float64
	Hop     int // 0 for a direct (seed) match, >0 for graph-expanded hits
}

// recentEntry is one slot in the bounded recent-block window used for
// similarity-gated edge creation.
type recentEntry struct {
	blockID int64
	summary []float32
}

// Engine scores block summaries against a query, expands the seed set
// across the block graph, and maintains the adjacency as new blocks arrive.
type Engine struct {
	threshold float64
	graph     *Graph

	mu          sync.Mutex
	recent      deque.Deque[recentEntry]
	lastBlockID int64
	haveLastID  bool
}

// NewEngine returns an engine admitting candidates at or above
// retrieveThreshold (the spec's retrieve_threshold configuration value).
func NewEngine(retrieveThreshold float64) *Engine {
	return &Engine{
		threshold: retrieveThreshold,
		graph:     NewGraph(),
	}
}

// Score computes max(0, cos)^3 * zetaPotential, the sharpened-cosine
// ranking score shared by top-k retrieval and prefetch admission.
func Score(cos float32, zetaPotential float32) float64 {
	if cos < 0 {
		cos = 0
	}
	sharpened := float64(cos) * float64(cos) * float64(cos)
	return sharpened * float64(zetaPotential)
}

// Retrieve scores every block in blocks against query, keeps the top
// min(k, maxActive) direct matches at or above the configured threshold,
// then expands across graph edges up to hopBudget hops. currentStep is
// passed through to store.Touch for every admitted block (retrieval
// participation resets zeta_potential per the temporal-decay contract).
func (e *Engine) Retrieve(s *store.Store, query []float32, k, maxActive, hopBudget int, currentStep int64) []Candidate {
	if l2Norm(query) == 0 {
		return nil
	}

	blocks := s.AllBlocks()
	if len(blocks) == 0 {
		return nil
	}

	type scored struct {
		block store.Block
		score float64
	}
	var direct []scored
	for _, b := range blocks {
		sims := kernels.CosineSimilarity(query, b.Summary, 1, len(b.Summary))
		sc := Score(sims[0], b.ZetaPotential)
		if sc >= e.threshold {
			direct = append(direct, scored{block: b, score: sc})
		}
	}
	sort.Slice(direct, func(i, j int) bool {
		if direct[i].score != direct[j].score {
			return direct[i].score > direct[j].score
		}
		return direct[i].block.BlockID < direct[j].block.BlockID
	})

	limit := k
	if maxActive < limit {
		limit = maxActive
	}
	if limit < 0 {
		limit = 0
	}
	if len(direct) > limit {
		direct = direct[:limit]
	}

	seen := make(map[int64]bool, len(direct))
	result := make([]Candidate, 0, len(direct))
	frontier := make([]Candidate, 0, len(direct))
	for _, d := range direct {
		c := Candidate{BlockID: d.block.BlockID, Score: d.score, Hop: 0}
		seen[c.BlockID] = true
		result = append(result, c)
		frontier = append(frontier, c)
	}

	// hopBudget counts levels inclusive of the direct/seed level (hop 0), so
	// hopBudget=1 performs no expansion and hopBudget=2 reaches hop depth 1,
	// matching the worked example where "hop budget 2" is needed to surface
	// a block one edge away from a seed.
	admitThreshold := e.threshold / 2
	for hop := 1; hop < hopBudget && len(frontier) > 0; hop++ {
		var next []Candidate
		for _, parent := range frontier {
			for _, ed := range e.graph.outgoing(parent.BlockID) {
				if seen[ed.to] {
					continue
				}
				propagated := parent.Score * ed.weight * (1.0 / float64(hop+1))
				if propagated < admitThreshold {
					continue
				}
				seen[ed.to] = true
				c := Candidate{BlockID: ed.to, Score: propagated, Hop: hop}
				result = append(result, c)
				next = append(next, c)
			}
		}
		frontier = next
	}

	for _, c := range result {
		s.Touch(c.BlockID, currentStep)
	}
	return result
}

// AddBlock registers a newly ingested block in the adjacency: a bidirectional
// predecessor link to the previously added block, a temporal_prev pointer to
// that same predecessor, and bidirectional similarity-gated links to up to
// the seven most recently added blocks.
func (e *Engine) AddBlock(blockID int64, summary []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.haveLastID {
		e.graph.linkBidirectional(blockID, e.lastBlockID, predecessorLinkWeight)
		e.graph.setTemporalPrev(blockID, e.lastBlockID)
	}

	simThreshold := 0.7 * e.threshold
	for i := 0; i < e.recent.Len(); i++ {
		cand := e.recent.At(i)
		cos := cosine(summary, cand.summary)
		if float64(cos) > simThreshold {
			w := math.Min(1, float64(cos)*float64(cos))
			e.graph.linkBidirectional(blockID, cand.blockID, w)
		}
	}

	e.recent.PushBack(recentEntry{blockID: blockID, summary: summary})
	if e.recent.Len() > recentWindowSize {
		e.recent.PopFront()
	}
	e.lastBlockID = blockID
	e.haveLastID = true
}

func cosine(a, b []float32) float32 {
	sims := kernels.CosineSimilarity(a, b, 1, len(b))
	return sims[0]
}

func l2Norm(v []float32) float32 {
	var sumSq float32
	for _, x := range v {
		sumSq += x * x
	}
	return float32(math.Sqrt(float64(sumSq)))
}
