package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medirun/medisuite/internal/agent"
	"github.com/medirun/medisuite/internal/api"
	"github.com/medirun/medisuite/internal/artifact"
	"github.com/medirun/medisuite/internal/audit"
	"github.com/medirun/medisuite/internal/chat"
	"github.com/medirun/medisuite/internal/claim"
	"github.com/medirun/medisuite/internal/config"
	"github.com/medirun/medisuite/internal/inference"
	"github.com/medirun/medisuite/internal/kb"
	"github.com/medirun/medisuite/internal/orchestrator"
	"github.com/medirun/medisuite/internal/refdata"
	"github.com/medirun/medisuite/internal/service"
	"github.com/medirun/medisuite/internal/triage"
	"github.com/shopspring/decimal"
)

// CLI flags parsed from command line.
type cliFlags struct {
	Submission string
	ConfigDir  string
	Serve      bool
	Listen     string
	Version    bool
}

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var flags cliFlags

	fs := flag.NewFlagSet("medisuite", flag.ContinueOnError)
	fs.StringVar(&flags.Submission, "submission", "", "path to a claim submission JSON file to process")
	fs.StringVar(&flags.ConfigDir, "config-dir", ".", "directory containing medisuite.yml")
	fs.BoolVar(&flags.Serve, "serve", false, "run the HTTP API server")
	fs.StringVar(&flags.Listen, "listen", "", "HTTP bind address (overrides config)")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(flags.ConfigDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	svc, tables, cleanup, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	switch {
	case flags.Serve:
		addr := flags.Listen
		if addr == "" {
			addr = cfg.Listen
		}
		if addr == "" {
			addr = ":8080"
		}
		return serve(svc, tables, addr)
	case flags.Submission != "":
		return processFile(ctx, svc, flags.Submission)
	default:
		fs.Usage()
		return fmt.Errorf("nothing to do: pass -submission or -serve")
	}
}

// wire assembles the full pipeline from configuration.
func wire(ctx context.Context, cfg *config.Config) (*service.Service, *refdata.Tables, func(), error) {
	tables, err := refdata.Load(cfg.DataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load reference data: %w", err)
	}

	var client inference.Client
	if cfg.Inference.Endpoint != "" {
		opts := []inference.ClientOption{}
		if cfg.Inference.Model != "" {
			opts = append(opts, inference.WithModel(cfg.Inference.Model))
		}
		if cfg.Inference.TimeoutSeconds > 0 {
			opts = append(opts, inference.WithTimeout(cfg.Inference.Timeout()))
		}
		client = inference.NewHTTPClient(cfg.Inference.Endpoint, opts...)
	}

	var store artifact.Store = artifact.NewMemStore()
	if cfg.OutputDir != "" {
		store = artifact.NewFSStore(cfg.OutputDir)
	}

	cleanup := func() {}
	var sink audit.Sink = audit.NewMemorySink()
	if cfg.Audit.PostgresDSN != "" {
		pg, err := audit.OpenPG(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open audit store: %w", err)
		}
		sink = pg
		cleanup = pg.Close
	}

	engine := triage.NewEngine(triage.Config{
		HighCostThreshold: decimal.NewFromFloat(cfg.Triage.HighCostThreshold),
		FallbackPenalty:   cfg.Triage.FallbackPenalty,
		RulePenalty:       cfg.Triage.RulePenalty,
	})

	timeout := cfg.Inference.Timeout()
	agents := []agent.StageAgent{
		agent.NewPatientDataAgent(client, timeout),
		agent.NewDocumentCodeAgent(client, timeout, tables),
		agent.NewCoverageValidationAgent(tables),
		agent.NewClaimGenerationAgent(store, cfg.Triage.ArtifactAdvisory),
		agent.NewTriageAgent(client, timeout, engine),
	}
	runner, err := orchestrator.NewRunner(agents, sink)
	if err != nil {
		return nil, nil, nil, err
	}

	go func() {
		for ev := range runner.Progress() {
			log.Println(orchestrator.FormatProgress(ev))
		}
	}()

	return service.New(runner, sink, service.WithKnowledgeBase(kb.NewStore())), tables, cleanup, nil
}

// processFile runs a single submission from disk and prints the outcome.
func processFile(ctx context.Context, svc *service.Service, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read submission: %w", err)
	}
	var sub claim.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return fmt.Errorf("parse submission: %w", err)
	}

	run, err := svc.Submit(ctx, sub)
	if err != nil {
		return err
	}

	fmt.Printf("run %s: %s\n", run.ID, run.Status)
	for _, res := range run.Results {
		if res == nil {
			continue
		}
		fmt.Printf("  %-20s %s\n", res.Stage, res.Status)
	}
	if run.Assessment != nil {
		fmt.Printf("decision: %s (confidence %.2f)\n", run.Assessment.Decision, run.Assessment.Confidence)
		fmt.Printf("justification: %s\n", run.Assessment.Justification)
		for _, f := range run.Assessment.RiskFactors {
			fmt.Printf("  risk: %s [%s] %s\n", f.Name, f.Severity, f.Detail)
		}
	}
	return nil
}

// serve runs the HTTP API until interrupted.
func serve(svc *service.Service, tables *refdata.Tables, addr string) error {
	srv := api.NewServer(svc, chat.NewRouter(tables, svc))
	if err := srv.Start(context.Background(), addr); err != nil {
		return err
	}
	log.Printf("medisuite: listening on %s", addr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}
