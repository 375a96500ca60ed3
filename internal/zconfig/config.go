// Package zconfig defines the configuration surface for a memory session:
// every recognized option from the configuration enumeration, plus the
// structural knobs (store capacity, retrieval fan-out) the orchestrator
// needs to wire components together.
package zconfig

import (
	"errors"
	"fmt"
	"strings"
)

// SublimatePolicy selects when the orchestrator moves tokens out of the
// host's live KV cache and into the block store.
type SublimatePolicy string

const (
	// Manual means sublimation only happens when explicitly requested.
	Manual SublimatePolicy = "MANUAL"
	// Window sublimates once the live window has grown by
	// SublimateWindowSize tokens since the last sublimation.
	Window SublimatePolicy = "WINDOW"
	// Pressure sublimates once kv_used/kv_max crosses SublimatePressurePct.
	Pressure SublimatePolicy = "PRESSURE"
	// Attention sublimates the least-important tokens by an importance EMA.
	Attention SublimatePolicy = "ATTENTION"
)

var allowedPolicies = map[SublimatePolicy]struct{}{
	Manual:    {},
	Window:    {},
	Pressure:  {},
	Attention: {},
}

// Config is the full configuration surface for one memory session.
type Config struct {
	// TemporalLambda is the per-step attention-decay rate λ; 0 disables decay.
	TemporalLambda float64
	// TunnelingThreshold is the pre-softmax sparse-gating cutoff τ.
	TunnelingThreshold float64
	// RetrieveThreshold is the minimum sharpened-cosine × zeta-potential
	// score required to admit a block.
	RetrieveThreshold float64
	// MomentumGamma is the coefficient in q_curr + γ(q_curr - q_prev).
	MomentumGamma float64

	// StorageDir is the directory .zeta files live in.
	StorageDir string
	// SummaryDim is the vector dimension of keys, values, and summaries.
	SummaryDim int
	// MaxBlocks caps the total block count the store will ingest. Zero
	// means unlimited.
	MaxBlocks int
	// MaxActiveBlocks caps the mmap-resident active set.
	MaxActiveBlocks int

	// ConstitutionPath, if set, names the policy document to hash at init.
	ConstitutionPath string
	// ConstitutionBytes is used directly when ConstitutionPath is empty. No
	// default policy document is embedded: when ConstitutionBytes is nil,
	// cmd/zeta-host hashes a fixed placeholder and sets DevModeEnv.
	ConstitutionBytes []byte

	// SublimatePolicy selects the trigger for moving tokens into the store.
	SublimatePolicy SublimatePolicy
	// SublimateWindowSize is the live-window growth that triggers WINDOW.
	// PRESSURE sizes its sublimations in whole BlockSize blocks instead.
	SublimateWindowSize int
	// SublimatePressurePct is the kv_used/kv_max trigger ratio for
	// PRESSURE/ATTENTION, in (0,1].
	SublimatePressurePct float64
	// AttentionDecay is the importance EMA coefficient for ATTENTION.
	AttentionDecay float64

	// BlockSize is the token count per sublimated block.
	BlockSize int
	// KVMax is the host's live KV cache capacity in tokens, used by
	// PRESSURE/ATTENTION to compute kv_used/kv_max.
	KVMax int

	// TopK is the maximum number of direct matches top-k retrieval returns
	// before multi-hop expansion.
	TopK int
	// HopBudget bounds multi-hop graph expansion (1 disables expansion).
	HopBudget int
	// PrefetchHintsPerSecond rate-limits MADV_WILLNEED issuance; 0 disables
	// the cap.
	PrefetchHintsPerSecond float64

	// DevModeEnv names the environment variable that, if non-empty and not
	// "0", bypasses the policy hash check.
	DevModeEnv string
	// DisableAccelEnv names the environment variable that, if set, forces
	// CPU-only kernel paths.
	DisableAccelEnv string
	// NoLoadExistingEnv names the environment variable that, if set, skips
	// scanning StorageDir at init.
	NoLoadExistingEnv string

	// IndexPath is the bbolt side-index path for cross-session stats and
	// block metadata. Empty disables the side index.
	IndexPath string
}

// DefaultConfig returns the out-of-the-box configuration: decay and gating
// disabled, a conservative active-set size, and MANUAL sublimation so a
// host must opt in to automatic triggers.
func DefaultConfig() Config {
	return Config{
		TemporalLambda:         0,
		TunnelingThreshold:     0,
		RetrieveThreshold:      0.2,
		MomentumGamma:          0.5,
		StorageDir:             ".zeta",
		SummaryDim:             128,
		MaxBlocks:              0,
		MaxActiveBlocks:        64,
		SublimatePolicy:        Manual,
		SublimateWindowSize:    512,
		SublimatePressurePct:   0.8,
		AttentionDecay:         0.9,
		BlockSize:              64,
		KVMax:                  4096,
		TopK:                   8,
		HopBudget:              2,
		PrefetchHintsPerSecond: 32,
		DevModeEnv:             "ZETA_DEV_MODE",
		DisableAccelEnv:        "ZETA_DISABLE_ACCEL",
		NoLoadExistingEnv:      "ZETA_NO_LOAD_EXISTING",
	}
}

// Validate rejects configurations that would make the session unsafe or
// meaningless to start.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.StorageDir) == "" {
		return errors.New("storage_dir is required")
	}
	if cfg.SummaryDim <= 0 {
		return errors.New("summary_dim must be > 0")
	}
	if cfg.MaxActiveBlocks <= 0 {
		return errors.New("max_active_blocks must be > 0")
	}
	if cfg.MaxBlocks < 0 {
		return errors.New("max_blocks must be >= 0 (0 means unlimited)")
	}
	if cfg.TemporalLambda < 0 {
		return errors.New("temporal_lambda must be >= 0")
	}
	if cfg.RetrieveThreshold < 0 {
		return errors.New("retrieve_threshold must be >= 0")
	}
	if cfg.MomentumGamma < 0 || cfg.MomentumGamma > 1 {
		return errors.New("momentum_gamma must be in [0,1]")
	}
	if len(cfg.ConstitutionPath) > 0 && len(cfg.ConstitutionBytes) > 0 {
		return errors.New("constitution_path and constitution_bytes are mutually exclusive")
	}
	if _, ok := allowedPolicies[cfg.SublimatePolicy]; !ok {
		return fmt.Errorf("invalid sublimate_policy %q", cfg.SublimatePolicy)
	}
	switch cfg.SublimatePolicy {
	case Window:
		if cfg.SublimateWindowSize <= 0 {
			return errors.New("sublimate_window_size must be > 0 for WINDOW policy")
		}
	case Pressure:
		if cfg.SublimatePressurePct <= 0 || cfg.SublimatePressurePct > 1 {
			return errors.New("sublimate_pressure_pct must be in (0,1] for PRESSURE policy")
		}
	case Attention:
		if cfg.SublimatePressurePct <= 0 || cfg.SublimatePressurePct > 1 {
			return errors.New("sublimate_pressure_pct must be in (0,1] for ATTENTION policy")
		}
		if cfg.AttentionDecay <= 0 || cfg.AttentionDecay >= 1 {
			return errors.New("attention_decay must be in (0,1) for ATTENTION policy")
		}
	}
	if cfg.BlockSize <= 0 {
		return errors.New("block_size must be > 0")
	}
	if cfg.KVMax <= 0 {
		return errors.New("kv_max must be > 0")
	}
	if cfg.TopK <= 0 {
		return errors.New("top_k must be > 0")
	}
	if cfg.HopBudget <= 0 {
		return errors.New("hop_budget must be >= 1")
	}
	if cfg.PrefetchHintsPerSecond < 0 {
		return errors.New("prefetch_hints_per_second must be >= 0")
	}
	return nil
}
