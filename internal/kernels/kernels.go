// Package kernels implements the CPU score-tile kernels applied to attention
// scores before softmax: temporal decay, sparse gating, the fused
// attention_modifier, sparse softmax, superposition injection, and cosine
// similarity. A score tile is addressed S[q*kvLen+k] for query row q, key
// column k, both zero-indexed.
package kernels

import "math"

var negInf = float32(math.Inf(-1))

// TemporalDecay multiplies S[q,k] by exp(-lambda*age) wherever
// age = currentPos - k > 0. lambda <= 0 is a no-op.
func TemporalDecay(s []float32, seqLen, kvLen int, currentPos int, lambda float64) {
	if lambda <= 0 {
		return
	}
	for q := 0; q < seqLen; q++ {
		row := s[q*kvLen : (q+1)*kvLen]
		for k := 0; k < kvLen; k++ {
			age := currentPos - k
			if age > 0 {
				row[k] *= float32(math.Exp(-lambda * float64(age)))
			}
		}
	}
}

// SparseGate sets every element strictly below tau to -Inf.
func SparseGate(s []float32, tau float32) {
	for i, v := range s {
		if v < tau {
			s[i] = negInf
		}
	}
}

// AttentionModifier fuses TemporalDecay then SparseGate, restoring each
// row's pre-gate maximum if gating would otherwise leave the entire row
// -Inf (softmax must never see an all--Inf row).
func AttentionModifier(s []float32, seqLen, kvLen int, currentPos int, lambda float64, tau float32) {
	TemporalDecay(s, seqLen, kvLen, currentPos, lambda)

	for q := 0; q < seqLen; q++ {
		row := s[q*kvLen : (q+1)*kvLen]
		rowMax := negInf
		maxIdx := -1
		for k, v := range row {
			if v > rowMax {
				rowMax = v
				maxIdx = k
			}
		}

		allGated := true
		for k, v := range row {
			if v < tau {
				row[k] = negInf
			} else {
				allGated = false
			}
		}
		if allGated && maxIdx >= 0 {
			row[maxIdx] = rowMax
		}
	}
}

// SparseSoftmax computes a numerically stable softmax per row, then zeroes
// any post-softmax probability strictly below minAttention, without
// renormalizing the remainder.
func SparseSoftmax(s []float32, seqLen, kvLen int, minAttention float32) {
	for q := 0; q < seqLen; q++ {
		row := s[q*kvLen : (q+1)*kvLen]
		rowMax := negInf
		for _, v := range row {
			if v > rowMax {
				rowMax = v
			}
		}
		var sum float64
		for k, v := range row {
			if math.IsInf(float64(v), -1) {
				row[k] = 0
				continue
			}
			e := math.Exp(float64(v - rowMax))
			row[k] = float32(e)
			sum += e
		}
		if sum == 0 {
			continue
		}
		for k, v := range row {
			p := float32(float64(v) / sum)
			if p < minAttention {
				p = 0
			}
			row[k] = p
		}
	}
}

// SuperpositionInjection computes O += alpha * OMem in place.
func SuperpositionInjection(o, oMem []float32, alpha float32) {
	for i := range o {
		o[i] += alpha * oMem[i]
	}
}

// CosineSimilarity computes cos(q, summaries[i]) for each of n rows of
// dimension d, with no sharpening (callers apply the ReLU-cube-and-decay
// sharpening themselves). A zero-norm query or row yields a similarity of 0.
func CosineSimilarity(q []float32, summaries []float32, n, d int) []float32 {
	qNorm := l2Norm(q)
	sims := make([]float32, n)
	if qNorm == 0 {
		return sims
	}
	for i := 0; i < n; i++ {
		row := summaries[i*d : (i+1)*d]
		rowNorm := l2Norm(row)
		if rowNorm == 0 {
			continue
		}
		var dot float32
		for j, v := range row {
			dot += q[j] * v
		}
		sims[i] = dot / (qNorm * rowNorm)
	}
	return sims
}

func l2Norm(v []float32) float32 {
	var sumSq float32
	for _, x := range v {
		sumSq += x * x
	}
	return float32(math.Sqrt(float64(sumSq)))
}
