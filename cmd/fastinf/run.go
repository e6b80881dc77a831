package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Harshitk-cp/fastinf/internal/config"
	"github.com/Harshitk-cp/fastinf/internal/domain"
	"github.com/Harshitk-cp/fastinf/internal/graph"
	"github.com/Harshitk-cp/fastinf/internal/service"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run inference on a model file and print the result as JSON",
		Example: `  fastinf run --model grid.yaml --algorithm gbp --regions bethe
  fastinf run --model chain.json --evidence 0=1 --evidence 3=0 --max-product
  fastinf run --request job.yaml`,
		RunE: runInference,
	}
	f := runCmd.Flags()
	f.String("model", "", "Model file (.json, .yaml)")
	f.String("request", "", "Full request file (.json, .yaml) with model, evidence and options")
	f.String("algorithm", "bp", "Inference algorithm (bp, gbp)")
	f.String("regions", "bethe", "Region graph for gbp (bethe, two-layer, cluster)")
	f.StringArray("evidence", nil, "Observed variable as var=value; repeatable")
	f.String("queue", "", "Message schedule (weighted, unweighted)")
	f.Float64("smoothing", -1, "Message damping in [0,1); negative keeps the default")
	f.Float64("threshold", -1, "Convergence threshold; negative keeps the default")
	f.Int("max-messages", 0, "Message budget; 0 keeps the default")
	f.Int64("seed", 0, "Seed for random message initialisation")
	f.Bool("random-init", false, "Start from random messages")
	f.Bool("max-product", false, "Max-product propagation with MAP decoding")
	f.Bool("log-space", false, "Propagate in log space")
	f.Bool("pretty", false, "Indent the JSON output")
	return runCmd
}

func runInference(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if err := config.Load(); err != nil {
		return err
	}

	req, err := buildRequest(cmd)
	if err != nil {
		return err
	}

	svc := service.NewInferenceService(nil, logger)
	svc.SetDefaults(config.Inference())
	run, err := svc.Run(cmd.Context(), req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if pretty, _ := cmd.Flags().GetBool("pretty"); pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(run)
}

// buildRequest merges the request file, if any, with the flags. Flags that
// were set explicitly win.
func buildRequest(cmd *cobra.Command) (service.RunRequest, error) {
	var req service.RunRequest
	f := cmd.Flags()

	requestPath, _ := f.GetString("request")
	modelPath, _ := f.GetString("model")
	switch {
	case requestPath != "":
		if err := decodeFile(requestPath, &req); err != nil {
			return req, err
		}
	case modelPath == "":
		return req, fmt.Errorf("one of --model or --request is required")
	}
	if modelPath != "" {
		spec, err := graph.LoadSpec(modelPath)
		if err != nil {
			return req, err
		}
		req.Model = spec
	}

	if f.Changed("algorithm") || req.Algorithm == "" {
		req.Algorithm, _ = f.GetString("algorithm")
	}
	if f.Changed("regions") || req.Regions == "" {
		req.Regions, _ = f.GetString("regions")
	}
	if f.Changed("evidence") {
		pairs, _ := f.GetStringArray("evidence")
		ev, err := parseEvidence(pairs)
		if err != nil {
			return req, err
		}
		req.Evidence = ev
	}

	o := &req.Options
	if f.Changed("queue") {
		q, _ := f.GetString("queue")
		o.Queue = &q
	}
	if s, _ := f.GetFloat64("smoothing"); s >= 0 {
		o.Smoothing = &s
	}
	if th, _ := f.GetFloat64("threshold"); th >= 0 {
		o.Threshold = &th
	}
	if n, _ := f.GetInt("max-messages"); n > 0 {
		o.MaxMessages = &n
	}
	if f.Changed("seed") {
		seed, _ := f.GetInt64("seed")
		o.Seed = &seed
	}
	if random, _ := f.GetBool("random-init"); random {
		policy := string(domain.InitRandom)
		o.Init = &policy
	}
	if f.Changed("max-product") {
		b, _ := f.GetBool("max-product")
		o.MaxProduct = &b
	}
	if f.Changed("log-space") {
		b, _ := f.GetBool("log-space")
		o.LogSpace = &b
	}
	return req, nil
}

// parseEvidence turns "var=value" pairs into evidence.
func parseEvidence(pairs []string) (domain.Evidence, error) {
	ev := domain.Evidence{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("evidence %q: want var=value", p)
		}
		variable, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("evidence %q: bad variable: %w", p, err)
		}
		value, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("evidence %q: bad value: %w", p, err)
		}
		ev[variable] = value
	}
	return ev, nil
}

func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	case ".json":
		err = json.Unmarshal(data, v)
	default:
		return fmt.Errorf("unsupported file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
