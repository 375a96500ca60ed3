// Package prefetch implements momentum-based prediction of the next query
// vector and issues best-effort MADV_WILLNEED hints for blocks likely to be
// retrieved next.
package prefetch

import (
	"math"

	"golang.org/x/time/rate"

	"zeta.dev/memory/internal/kernels"
	"zeta.dev/memory/internal/retrieval"
	"zeta.dev/memory/internal/store"
)

// admitFactor is the fraction of retrieve_threshold a block's predicted
// score must clear to be marked warm.
const admitFactor = 0.7

// Prefetcher holds the query-momentum state (q_prev, q_curr) and a rate
// limiter bounding how many MADV_WILLNEED hints are issued per second.
type Prefetcher struct {
	gamma             float64
	retrieveThreshold float64

	limiter *rate.Limiter

	qPrev, qCurr []float32
}

// New returns a Prefetcher with momentum factor gamma (momentum_gamma),
// admitting hints at admitFactor*retrieveThreshold and capping hint issuance
// at hintsPerSecond (0 disables the cap, issuing every admitted hint).
func New(gamma, retrieveThreshold, hintsPerSecond float64) *Prefetcher {
	var lim *rate.Limiter
	if hintsPerSecond > 0 {
		burst := int(math.Ceil(hintsPerSecond))
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(hintsPerSecond), burst)
	}
	return &Prefetcher{gamma: gamma, retrieveThreshold: retrieveThreshold, limiter: lim}
}

// Step shifts the momentum state to qNew, computes the extrapolated
// prediction, and warms every not-yet-warm block whose score against the
// prediction admits at admitFactor*retrieveThreshold. Hint failures
// (including a denied rate-limiter token) are silent: the caller gets no
// error, matching the best-effort contract: a missed hint only costs a
// later cache miss on activation, never correctness.
func (p *Prefetcher) Step(s *store.Store, qNew []float32) {
	dim := len(qNew)
	if p.qCurr == nil {
		p.qPrev = make([]float32, dim)
		p.qCurr = make([]float32, dim)
	}
	p.qPrev = p.qCurr
	p.qCurr = append([]float32(nil), qNew...)

	prediction := make([]float32, dim)
	for i := 0; i < dim; i++ {
		prediction[i] = p.qCurr[i] + float32(p.gamma)*(p.qCurr[i]-p.qPrev[i])
	}
	if l2Norm(prediction) == 0 {
		return
	}

	admit := admitFactor * p.retrieveThreshold
	for _, b := range s.AllBlocks() {
		if b.IsWarm {
			continue
		}
		sims := kernels.CosineSimilarity(prediction, b.Summary, 1, len(b.Summary))
		if retrieval.Score(sims[0], b.ZetaPotential) < admit {
			continue
		}
		if p.limiter != nil && !p.limiter.Allow() {
			continue
		}
		_ = s.Prefetch(b.BlockID)
	}
}

// CurrentQuery returns q_curr, the most recent query vector passed to Step.
// Nil until the first Step call.
func (p *Prefetcher) CurrentQuery() []float32 {
	return p.qCurr
}

func l2Norm(v []float32) float32 {
	var sumSq float32
	for _, x := range v {
		sumSq += x * x
	}
	return float32(math.Sqrt(float64(sumSq)))
}
