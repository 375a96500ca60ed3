package main

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"zeta.dev/memory/internal/binding"
	"zeta.dev/memory/internal/orchestrator"
	"zeta.dev/memory/internal/store"
	"zeta.dev/memory/internal/zconfig"
	"zeta.dev/memory/internal/zetalog"
	"zeta.dev/memory/internal/zfile"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := zconfig.DefaultConfig()
	cfg := defaults

	var (
		constitutionPath string
		dryRun           bool
		decodeSteps      int
		useZap           bool
		policy           string
	)

	root := &cobra.Command{
		Use:           "zeta-host",
		Short:         "run an orchestrator session against a demo host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	var fs *pflag.FlagSet = root.Flags()
	fs.Float64Var(&cfg.TemporalLambda, "zeta-lambda", defaults.TemporalLambda, "temporal decay rate")
	fs.Float64Var(&cfg.TunnelingThreshold, "zeta-tau", defaults.TunnelingThreshold, "tunneling threshold")
	fs.Float64Var(&cfg.RetrieveThreshold, "zeta-retrieve", defaults.RetrieveThreshold, "retrieval admission threshold")
	fs.Float64Var(&cfg.MomentumGamma, "zeta-momentum", defaults.MomentumGamma, "prefetch momentum gamma")
	fs.StringVar(&cfg.StorageDir, "zeta-storage", defaults.StorageDir, "block storage directory")
	fs.StringVar(&constitutionPath, "zeta-constitution", "", "path to the policy document bytes")
	fs.IntVar(&cfg.SummaryDim, "zeta-summary-dim", defaults.SummaryDim, "summary vector dimension")
	fs.IntVar(&cfg.MaxActiveBlocks, "zeta-max-active-blocks", defaults.MaxActiveBlocks, "mmap-resident active block cap")
	fs.IntVar(&cfg.TopK, "zeta-topk", defaults.TopK, "direct retrieval top-k")
	fs.IntVar(&cfg.HopBudget, "zeta-hop-budget", defaults.HopBudget, "multi-hop expansion budget")
	fs.IntVar(&cfg.BlockSize, "zeta-block-size", defaults.BlockSize, "sublimation block size in tokens")
	fs.IntVar(&cfg.KVMax, "zeta-kv-max", defaults.KVMax, "host KV cache capacity in tokens")
	fs.Float64Var(&cfg.PrefetchHintsPerSecond, "zeta-prefetch-rate", defaults.PrefetchHintsPerSecond, "MADV_WILLNEED hints per second (0 disables the cap)")
	fs.StringVar(&policy, "zeta-sublimate-policy", string(defaults.SublimatePolicy), "sublimation policy: MANUAL|WINDOW|PRESSURE|ATTENTION")
	fs.IntVar(&cfg.SublimateWindowSize, "zeta-window-size", defaults.SublimateWindowSize, "WINDOW policy trigger size in tokens")
	fs.Float64Var(&cfg.SublimatePressurePct, "zeta-pressure-pct", defaults.SublimatePressurePct, "PRESSURE/ATTENTION policy trigger fraction of kv_max")
	fs.Float64Var(&cfg.AttentionDecay, "zeta-attention-decay", defaults.AttentionDecay, "ATTENTION policy importance EMA decay")
	fs.BoolVar(&dryRun, "dry-run", false, "print effective config and exit")
	fs.IntVar(&decodeSteps, "decode-steps", 8, "number of demo decode steps to run against a stub host")
	fs.BoolVar(&useZap, "zap-log", false, "use structured zap logging instead of plain text")

	exitCode := 0
	root.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg.SublimatePolicy = zconfig.SublimatePolicy(strings.ToUpper(policy))
		if constitutionPath != "" {
			raw, err := os.ReadFile(constitutionPath)
			if err != nil {
				cmd.PrintErrf("constitution read failed: %v\n", err)
				exitCode = 2
				return nil
			}
			cfg.ConstitutionBytes = raw
		}
		exitCode = runHost(cmd, cfg, dryRun, decodeSteps, useZap)
		return nil
	}

	if err := root.Execute(); err != nil {
		io.WriteString(stderr, err.Error()+"\n")
		return 2
	}
	return exitCode
}

func runHost(cmd *cobra.Command, cfg zconfig.Config, dryRun bool, decodeSteps int, useZap bool) int {
	stdout := cmd.OutOrStdout()

	if err := zconfig.Validate(cfg); err != nil {
		cmd.PrintErrf("invalid config: %v\n", err)
		return 2
	}
	if err := printConfig(stdout, cfg); err != nil {
		cmd.PrintErrf("config encode failed: %v\n", err)
		return 1
	}
	if dryRun {
		return 0
	}

	var log zetalog.Sink
	if useZap {
		zl, err := zetalog.NewZap()
		if err != nil {
			cmd.PrintErrf("zap init failed: %v\n", err)
			return 2
		}
		log = zl
	} else {
		log = zetalog.Plain{Out: stdout}
	}
	defer log.Sync()

	policyBytes := cfg.ConstitutionBytes
	if policyBytes == nil {
		policyBytes = []byte("zeta-host dev-mode placeholder policy")
		os.Setenv(cfg.DevModeEnv, "1")
	}
	const nVocab = 32000
	b, err := binding.Init(policyBytes, binding.Options{NVocab: nVocab, NEmbd: cfg.SummaryDim, DevModeEnv: cfg.DevModeEnv})
	if err != nil {
		cmd.PrintErrf("binding init failed: %v\n", err)
		return 1
	}

	st, err := store.Open(store.Config{
		Dir:             cfg.StorageDir,
		SummaryDim:      cfg.SummaryDim,
		MaxBlocks:       cfg.MaxBlocks,
		MaxActiveBlocks: cfg.MaxActiveBlocks,
		IndexPath:       cfg.IndexPath,
		Log:             log,
	})
	if err != nil {
		cmd.PrintErrf("store open failed: %v\n", err)
		return 2
	}
	defer st.Close()

	if os.Getenv(cfg.NoLoadExistingEnv) == "" {
		loaded, skipped, err := st.LoadExisting()
		if err != nil {
			cmd.PrintErrf("store load failed: %v\n", err)
			return 2
		}
		cmd.Printf("store: loaded=%d skipped=%d\n", loaded, skipped)
	}

	host := newDemoHost(cfg.SummaryDim, int64(cfg.KVMax/2))
	orch := orchestrator.New(cfg, b, st, host, log, nil)
	orch.RestoreGraph()
	cmd.Printf("session: %s\n", orch.SessionID())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for i := 0; i < decodeSteps; i++ {
		select {
		case <-ctx.Done():
			io.WriteString(stdout, "zeta-host: shutdown requested\n")
			return 0
		default:
		}
		host.stepQuery()
		if err := orch.PreDecodeHook(); err != nil {
			cmd.PrintErrf("pre-decode hook failed: %v\n", err)
			return 1
		}
		host.stepAttention()
		if err := orch.PostAttentionHook(); err != nil {
			cmd.PrintErrf("post-attention hook failed: %v\n", err)
			return 1
		}
		hits, misses, blocks, active := orch.Stats()
		cmd.Printf("step=%d kv_used=%d hits=%d misses=%d blocks=%d active=%d\n", i+1, host.kvUsed, hits, misses, blocks, active)
	}
	return 0
}

func printConfig(w io.Writer, cfg zconfig.Config) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

// demoHost is a minimal in-memory Host standing in for a real LLM runtime,
// letting the CLI exercise the full decode-loop wiring without one.
type demoHost struct {
	dim     int
	kvUsed  int64
	keys    map[int64][]float32
	values  map[int64][]float32
	query   []float32
	weights []float32
	rng     *rand.Rand
}

func newDemoHost(dim int, seedTokens int64) *demoHost {
	h := &demoHost{
		dim:    dim,
		keys:   make(map[int64][]float32),
		values: make(map[int64][]float32),
		rng:    rand.New(rand.NewSource(1)),
	}
	for i := int64(0); i < seedTokens; i++ {
		h.keys[i] = h.randRow()
		h.values[i] = h.randRow()
		h.kvUsed++
	}
	return h
}

func (h *demoHost) randRow() []float32 {
	row := make([]float32, h.dim)
	for j := range row {
		row[j] = float32(h.rng.NormFloat64())
	}
	return row
}

func (h *demoHost) stepQuery() {
	h.query = h.randRow()
	h.keys[h.kvUsed] = h.randRow()
	h.values[h.kvUsed] = h.randRow()
	h.kvUsed++
}

func (h *demoHost) stepAttention() {
	h.weights = make([]float32, h.kvUsed)
	for i := range h.weights {
		h.weights[i] = h.rng.Float32()
	}
}

func (h *demoHost) MeanQuery() []float32 { return h.query }
func (h *demoHost) KVUsed() int64        { return h.kvUsed }

func (h *demoHost) ReadKV(start, end int64) (keys, values []float32, err error) {
	n := int(end - start)
	keys = make([]float32, 0, n*h.dim)
	values = make([]float32, 0, n*h.dim)
	for i := start; i < end; i++ {
		keys = append(keys, h.keys[i]...)
		values = append(values, h.values[i]...)
	}
	return keys, values, nil
}

func (h *demoHost) RemoveKV(start, end int64) error {
	for i := start; i < end; i++ {
		delete(h.keys, i)
		delete(h.values, i)
	}
	h.kvUsed -= end - start
	return nil
}

func (h *demoHost) AttentionWeights() []float32 { return h.weights }

func (h *demoHost) InjectOutput(oMem []float32) {}

// ReinjectPortableKV decodes a Graph-KV stream and splices its rows back
// into the live KV cache at the positions the stream carries, standing in
// for a real runtime's portable-sequence-state splice.
func (h *demoHost) ReinjectPortableKV(pos int64, stream []byte) error {
	s, err := zfile.DecodeGraphKVStream(stream)
	if err != nil {
		return err
	}
	rows := zfile.Dequantize(s.Blocks, int(s.TokenCount)*int(s.Dim))
	for i, p := range s.Positions() {
		row := make([]float32, s.Dim)
		copy(row, rows[i*int(s.Dim):(i+1)*int(s.Dim)])
		h.keys[p] = row
		h.values[p] = row
	}
	return nil
}
