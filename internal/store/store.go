// Package store implements the on-disk block store: atomic ingest, mmap
// lifecycle, and LRU-bounded active-set residency for .zeta blocks.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"zeta.dev/memory/errs"
	"zeta.dev/memory/internal/zetalog"
	"zeta.dev/memory/internal/zfile"
)

// Config configures a Store.
type Config struct {
	// Dir is the storage directory; block_<id>.zeta files live here.
	Dir string
	// SummaryDim is the configured vector dimension every block must match.
	SummaryDim int
	// MaxBlocks caps the total number of blocks the store will ingest.
	// Zero means unlimited.
	MaxBlocks int
	// MaxActiveBlocks caps the mmap-resident active set.
	MaxActiveBlocks int
	// IndexPath is the bbolt side-index path for cross-session stats and
	// block metadata. Empty disables the side index.
	IndexPath string
	// Log receives a line for every corrupt/mismatched file LoadExisting
	// skips. Defaults to zetalog.Noop{} if nil.
	Log zetalog.Sink
}

// Block is a block's in-memory record. Keys/Values alias the block's mmap
// region once activated; they are nil while the block is cold.
type Block struct {
	BlockID       int64
	TokenStart    int64
	TokenCount    int64
	SummaryDim    int
	Summary       []float32
	SummaryNorm   float32
	ZetaPotential float32
	LastAccess    int64

	IsWarm   bool
	IsActive bool

	mapping *mapping // nil while cold
}

// Store is the coarse-grained-locked block store. A single mutex protects
// all mutable state, matching the single-writer-thread concurrency model the
// orchestrator runs under.
type Store struct {
	mu sync.Mutex

	cfg    Config
	nextID int64

	blocks map[int64]*Block
	active *lru.Cache[int64, struct{}]

	// generation guards against evicting a block activated in the very
	// same decode step the eviction decision is being made in.
	generation   int64
	touchedThisGen map[int64]int64

	idx *sideIndex
	log zetalog.Sink

	hits   int64
	misses int64
}

// Open creates or opens a store rooted at cfg.Dir, creating the directory if
// absent. It does not scan for existing blocks; call LoadExisting for that.
func Open(cfg Config) (*Store, error) {
	if cfg.SummaryDim <= 0 {
		return nil, errs.New(errs.Dim, "store: summary_dim must be > 0 (got %d)", cfg.SummaryDim)
	}
	if cfg.MaxActiveBlocks <= 0 {
		return nil, errs.New(errs.Dim, "store: max_active_blocks must be > 0 (got %d)", cfg.MaxActiveBlocks)
	}
	if cfg.Dir == "" {
		return nil, errs.New(errs.IO, "store: storage dir required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errs.New(errs.IO, "store: mkdir %s: %v", cfg.Dir, err)
	}

	log := cfg.Log
	if log == nil {
		log = zetalog.Noop{}
	}
	s := &Store{
		cfg:            cfg,
		nextID:         0,
		blocks:         make(map[int64]*Block),
		touchedThisGen: make(map[int64]int64),
		log:            log,
	}

	evict := func(id int64, _ struct{}) {
		s.evictLocked(id)
	}
	active, err := lru.NewWithEvict[int64, struct{}](cfg.MaxActiveBlocks, evict)
	if err != nil {
		return nil, fmt.Errorf("store: new lru: %w", err)
	}
	s.active = active

	if cfg.IndexPath != "" {
		idx, err := openSideIndex(cfg.IndexPath)
		if err != nil {
			return nil, errs.New(errs.IO, "store: open side index: %v", err)
		}
		s.idx = idx
	}

	return s, nil
}

// Close releases all mmap'd regions and the side index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, b := range s.blocks {
		if b.mapping != nil {
			if err := b.mapping.close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if s.idx != nil {
		prevHits, _ := s.idx.LifetimeCounter("cache_hits_total")
		prevMisses, _ := s.idx.LifetimeCounter("cache_misses_total")
		_ = s.idx.PutLifetimeCounter("cache_hits_total", prevHits+uint64(s.hits))
		_ = s.idx.PutLifetimeCounter("cache_misses_total", prevMisses+uint64(s.misses))
		if err := s.idx.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LoadExisting scans cfg.Dir for block_*.zeta files, validates each header,
// and registers blocks without mapping them. Corrupt or mismatched-dim files
// are skipped, not quarantined. next_id is set to max(loaded_id)+1.
func (s *Store) LoadExisting() (loaded, skipped int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, readErr := os.ReadDir(s.cfg.Dir)
	if readErr != nil {
		return 0, 0, errs.New(errs.IO, "store: read dir %s: %v", s.cfg.Dir, readErr)
	}

	var maxID int64 = -1
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		id, ok := parseBlockFileName(name)
		if !ok {
			continue
		}
		path := filepath.Join(s.cfg.Dir, name)
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			s.log.Warnf("skipping block file, read failed", "path", path, "err", readErr)
			skipped++
			continue
		}
		h, decErr := zfile.DecodeHeader(raw)
		if decErr != nil || h.Magic != zfile.Magic || h.Version != zfile.Version || int(h.SummaryDim) != s.cfg.SummaryDim {
			s.log.Warnf("skipping block file, bad header", "path", path, "err", decErr, "magic", h.Magic, "version", h.Version, "summary_dim", h.SummaryDim)
			skipped++
			continue
		}
		blk, decErr := zfile.DecodeBlock(raw)
		if decErr != nil {
			s.log.Warnf("skipping block file, decode failed", "path", path, "err", decErr)
			skipped++
			continue
		}
		s.registerLocked(blk, path)
		if s.idx != nil {
			if m, found, metaErr := s.idx.BlockMeta(blk.Header.BlockID); metaErr == nil && found {
				s.blocks[blk.Header.BlockID].LastAccess = m.LastAccess
			}
		}
		loaded++
		if id > maxID {
			maxID = id
		}
	}
	if maxID >= 0 {
		s.nextID = maxID + 1
	}
	return loaded, skipped, nil
}

func (s *Store) registerLocked(blk zfile.Block, path string) {
	var norm float32
	for _, v := range blk.Summary {
		norm += v * v
	}
	norm = sqrtF32(norm)

	b := &Block{
		BlockID:       blk.Header.BlockID,
		TokenStart:    blk.Header.TokenStart,
		TokenCount:    blk.Header.TokenCount,
		SummaryDim:    int(blk.Header.SummaryDim),
		Summary:       blk.Summary,
		SummaryNorm:   norm,
		ZetaPotential: 1,
		mapping:       &mapping{path: path},
	}
	s.blocks[b.BlockID] = b
}

// Ingest writes a new block atomically (header+summary+keys+values via
// write-then-rename), registers it, and returns its assigned id. Summary is
// computed by mean-pooling keys if not supplied.
func (s *Store) Ingest(tokenStart, tokenCount int64, keys, values, summary []float32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.MaxBlocks > 0 && len(s.blocks) >= s.cfg.MaxBlocks {
		return 0, errs.New(errs.Capacity, "store: block count %d at configured limit %d", len(s.blocks), s.cfg.MaxBlocks)
	}
	if len(keys) != len(values) {
		return 0, errs.New(errs.Dim, "store: keys len %d != values len %d", len(keys), len(values))
	}
	dim := s.cfg.SummaryDim
	if tokenCount <= 0 {
		return 0, errs.New(errs.Dim, "store: token_count must be >= 1 (got %d)", tokenCount)
	}
	if int64(len(keys)) != tokenCount*int64(dim) {
		return 0, errs.New(errs.Dim, "store: keys len %d != token_count(%d)*summary_dim(%d)", len(keys), tokenCount, dim)
	}
	if summary == nil {
		summary = meanPool(keys, int(tokenCount), dim)
	}
	if len(summary) != dim {
		return 0, errs.New(errs.Dim, "store: summary len %d != summary_dim %d", len(summary), dim)
	}

	id := s.nextID
	s.nextID++

	h := zfile.Header{
		Magic:      zfile.Magic,
		Version:    zfile.Version,
		BlockID:    id,
		TokenStart: tokenStart,
		TokenCount: tokenCount,
		SummaryDim: int32(dim),
	}
	raw := zfile.EncodeBlock(zfile.Block{Header: h, Summary: summary, Keys: keys, Values: values})

	path := filepath.Join(s.cfg.Dir, zfile.FileName(id))
	if err := writeFileAtomic(path, raw, 0o644); err != nil {
		return 0, errs.New(errs.IO, "store: ingest write %s: %v", path, err)
	}

	var norm float32
	for _, v := range summary {
		norm += v * v
	}
	norm = sqrtF32(norm)

	s.blocks[id] = &Block{
		BlockID:       id,
		TokenStart:    tokenStart,
		TokenCount:    tokenCount,
		SummaryDim:    dim,
		Summary:       summary,
		SummaryNorm:   norm,
		ZetaPotential: 1,
		LastAccess:    s.generation,
		mapping:       &mapping{path: path},
	}
	if s.idx != nil {
		_ = s.idx.PutBlockMeta(id, blockMeta{LastAccess: s.generation})
	}
	return id, nil
}

// Activate makes a block's keys/values resident, evicting the
// least-recently-activated block if the active set is full. It returns the
// block's keys and values slices (valid only until the next eviction of the
// same block).
func (s *Store) Activate(blockID int64) (keys, values []float32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blocks[blockID]
	if !ok {
		return nil, nil, errs.New(errs.IO, "store: activate: block %d not found", blockID)
	}

	s.touchedThisGen[blockID] = s.generation

	if b.IsActive {
		s.hits++
		s.active.Get(blockID) // bump recency
		return b.mapping.keys, b.mapping.values, nil
	}
	s.misses++

	if err := b.mapping.ensureOpen(b.TokenCount, b.SummaryDim); err != nil {
		return nil, nil, errs.New(errs.IO, "store: activate %d: %v", blockID, err)
	}
	if !b.IsWarm {
		b.mapping.adviseWillNeed()
		b.IsWarm = true
	}
	s.makeRoomLocked(blockID)
	b.IsActive = true
	s.active.Add(blockID, struct{}{})

	return b.mapping.keys, b.mapping.values, nil
}

// makeRoomLocked evicts one block to keep the active set within capacity,
// preferring the least-recently-activated block that was NOT touched in the
// current generation. If the active set is full of entries all touched this
// generation (every one activated in the same decode step, a pathological
// case), it falls back to the globally least-recently-activated entry rather
// than block the caller; the invariant this would violate is a SHOULD, not a
// correctness requirement, so exceeding it for one step is acceptable.
func (s *Store) makeRoomLocked(incoming int64) {
	if s.active.Contains(incoming) || s.active.Len() < s.cfg.MaxActiveBlocks {
		return
	}
	keys := s.active.Keys() // oldest to newest
	for _, k := range keys {
		if gen, touched := s.touchedThisGen[k]; touched && gen == s.generation {
			continue
		}
		s.active.Remove(k)
		return
	}
	if len(keys) > 0 {
		s.active.Remove(keys[0])
	}
}

// evictLocked is the LRU's OnEvict callback, invoked synchronously from
// makeRoomLocked/Add/Remove while s.mu is already held.
func (s *Store) evictLocked(id int64) {
	b, ok := s.blocks[id]
	if !ok {
		return
	}
	if b.mapping != nil {
		b.mapping.adviseDontNeed()
	}
	b.IsWarm = false
	b.IsActive = false
}

// Prefetch mmaps a block and hints MADV_WILLNEED without adding it to the
// active set or touching hit/miss counters. A warm, non-active block still
// requires a later Activate call to be dereferenced. A no-op if the block
// is already warm. Callers (the prefetcher) treat errors as best-effort and
// typically discard them.
func (s *Store) Prefetch(blockID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[blockID]
	if !ok {
		return errs.New(errs.IO, "store: prefetch: block %d not found", blockID)
	}
	if b.IsWarm {
		return nil
	}
	if err := b.mapping.ensureOpen(b.TokenCount, b.SummaryDim); err != nil {
		return errs.New(errs.IO, "store: prefetch %d: %v", blockID, err)
	}
	b.mapping.adviseWillNeed()
	b.IsWarm = true
	return nil
}

// AdvanceGeneration marks the start of a new decode step, clearing the
// eviction-immunity set from the previous step.
func (s *Store) AdvanceGeneration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.touchedThisGen = make(map[int64]int64)
}

// Stats returns cache-hit/miss counters and the current block/active counts.
func (s *Store) Stats() (hits, misses int64, blocks, activeCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.misses, len(s.blocks), s.active.Len()
}

// Block returns a snapshot copy of a block's metadata (not its mmap'd
// payload), or false if unknown.
func (s *Store) Block(blockID int64) (Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[blockID]
	if !ok {
		return Block{}, false
	}
	cp := *b
	cp.mapping = nil
	return cp, ok
}

// AllBlocks returns metadata snapshots for every registered block, in no
// particular order. Used by the retrieval engine to score candidates.
func (s *Store) AllBlocks() []Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Block, 0, len(s.blocks))
	for _, b := range s.blocks {
		cp := *b
		cp.mapping = nil
		out = append(out, cp)
	}
	return out
}

// EncodePortableKV quantizes a block's keys into a Graph-KV stream, for
// hosts that expose a portable sequence-state blob to reinject a block's
// captured KV rows into a live KV cache. The returned stream carries
// InjectionPos 0 (block-relative); callers rebase it before reinjecting.
func (s *Store) EncodePortableKV(blockID int64) (zfile.GraphKVStream, error) {
	keys, _, err := s.Activate(blockID)
	if err != nil {
		return zfile.GraphKVStream{}, err
	}
	blk, _ := s.Block(blockID) // guaranteed present: Activate just found it
	return zfile.GraphKVStream{
		Magic:      zfile.GraphKVMagic,
		Version:    zfile.GraphKVVersion,
		TokenCount: blk.TokenCount,
		Dim:        int32(blk.SummaryDim),
		Blocks:     zfile.QuantizeQ8_0(keys),
	}, nil
}

// Touch resets a block's zeta_potential to 1 and last_access to step,
// recording that it participated in retrieval or injection this step.
func (s *Store) Touch(blockID int64, step int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.blocks[blockID]; ok {
		b.ZetaPotential = 1
		b.LastAccess = step
		if s.idx != nil {
			_ = s.idx.PutBlockMeta(blockID, blockMeta{LastAccess: step})
		}
	}
}

// ApplyTemporalDecay sets zeta_potential = exp(-lambda*(step-last_access))
// for every block. lambda == 0 disables decay (zeta_potential stays as is).
func (s *Store) ApplyTemporalDecay(step int64, lambda float64) {
	if lambda == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blocks {
		b.ZetaPotential = expDecay(lambda, step-b.LastAccess)
	}
}

func meanPool(keys []float32, tokenCount, dim int) []float32 {
	out := make([]float32, dim)
	if tokenCount == 0 {
		return out
	}
	for t := 0; t < tokenCount; t++ {
		row := keys[t*dim : t*dim+dim]
		for i, v := range row {
			out[i] += v
		}
	}
	inv := float32(1) / float32(tokenCount)
	for i := range out {
		out[i] *= inv
	}
	return out
}

func parseBlockFileName(name string) (int64, bool) {
	const prefix, suffix = "block_", ".zeta"
	if len(name) <= len(prefix)+len(suffix) || name[:len(prefix)] != prefix || name[len(name)-len(suffix):] != suffix {
		return 0, false
	}
	digits := name[len(prefix) : len(name)-len(suffix)]
	var id int64
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
		id = id*10 + int64(c-'0')
	}
	return id, true
}
