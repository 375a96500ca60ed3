package zconfig

import "testing"

func TestValidate_DefaultConfigIsValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestValidate_RejectsEmptyStorageDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDir = "  "
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for blank storage_dir")
	}
}

func TestValidate_RejectsBadSummaryDim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SummaryDim = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for summary_dim=0")
	}
}

func TestValidate_RejectsMomentumGammaOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MomentumGamma = 1.5
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for momentum_gamma > 1")
	}
}

func TestValidate_RejectsBothConstitutionSources(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConstitutionPath = "/etc/zeta/policy.json"
	cfg.ConstitutionBytes = []byte("{}")
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error when both constitution sources are set")
	}
}

func TestValidate_RejectsUnknownSublimatePolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SublimatePolicy = "BOGUS"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for unknown sublimate_policy")
	}
}

func TestValidate_WindowPolicyRequiresWindowSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SublimatePolicy = Window
	cfg.SublimateWindowSize = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for WINDOW policy with window_size=0")
	}
}

func TestValidate_PressurePolicyRequiresPctInRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SublimatePolicy = Pressure
	cfg.SublimatePressurePct = 1.5
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for PRESSURE policy with pressure_pct > 1")
	}
}

func TestValidate_AttentionPolicyRequiresDecayInOpenRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SublimatePolicy = Attention
	cfg.AttentionDecay = 1
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for ATTENTION policy with attention_decay=1")
	}
}

func TestValidate_RejectsHopBudgetBelowOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HopBudget = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for hop_budget=0")
	}
}
