package orchestrator

// Host is the boundary the orchestrator crosses to reach the LLM runtime's
// live KV cache and attention output. The runtime itself is out of scope;
// this interface is the seam a real host implementation plugs into.
type Host interface {
	// MeanQuery returns the current decode step's mean query vector across
	// attention heads, in summary space (length SummaryDim).
	MeanQuery() []float32
	// KVUsed returns the number of tokens currently resident in the live
	// KV cache.
	KVUsed() int64
	// ReadKV returns the row-major keys/values for token positions
	// [start,end) in summary space, for sublimation.
	ReadKV(start, end int64) (keys, values []float32, err error)
	// RemoveKV removes token positions [start,end) from the live KV cache
	// after they have been durably sublimated.
	RemoveKV(start, end int64) error
	// AttentionWeights returns the latest per-position attention weight
	// over the live KV cache (length KVUsed), used by the ATTENTION
	// sublimation policy's importance EMA. May return nil for policies
	// that don't need it.
	AttentionWeights() []float32
	// InjectOutput adds a memory contribution to the final sequence
	// position's attention output, in place.
	InjectOutput(oMem []float32)
}

// PortableKVHost is an optional Host extension for runtimes that expose a
// portable sequence-state blob, letting the orchestrator splice a retrieved
// block's captured KV rows directly into the live KV cache instead of (or
// alongside) the summed superposition contribution InjectOutput receives.
type PortableKVHost interface {
	Host
	// ReinjectPortableKV hands the runtime an encoded Graph-KV stream
	// already rebased to pos, the absolute position in the live KV
	// sequence its rows occupy once spliced in.
	ReinjectPortableKV(pos int64, stream []byte) error
}
