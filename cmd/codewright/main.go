// codewright takes a natural-language change request, plans it into
// tasks, and runs each task through generation, import validation,
// consent-gated dependency installation, and review before staging the
// accepted changes onto the project.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"codewright/pkg/agents"
	"codewright/pkg/config"
	"codewright/pkg/consent"
	"codewright/pkg/exec"
	"codewright/pkg/logx"
	"codewright/pkg/metrics"
	"codewright/pkg/persistence"
	"codewright/pkg/pipeline"
	"codewright/pkg/pkgmgr"
	"codewright/pkg/plan"
	"codewright/pkg/proto"
	"codewright/pkg/registry"
	"codewright/pkg/stage"
)

func main() {
	var (
		projectDir     string
		request        string
		planPath       string
		savePlanPath   string
		dryRun         bool
		nonInteractive bool
		historyLimit   int
	)
	flag.StringVar(&projectDir, "project", "", "Project root (default: current directory)")
	flag.StringVar(&request, "request", "", "Natural-language change request")
	flag.StringVar(&planPath, "plan", "", "Run a previously saved plan file instead of planning")
	flag.StringVar(&savePlanPath, "save-plan", "", "Write the generated plan to this path")
	flag.BoolVar(&dryRun, "dry-run", false, "Stage and print changes without writing them")
	flag.BoolVar(&nonInteractive, "non-interactive", false, "Auto-reject all consent prompts")
	flag.IntVar(&historyLimit, "history", 0, "Print the last N runs and exit")
	metricsSummary := flag.Bool("metrics-summary", false, "Print aggregated pipeline metrics from Prometheus and exit")
	initProject := flag.Bool("init", false, "Write a default config (and encrypted secrets, if provider keys are set) and exit")
	flag.Parse()

	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			log.Fatalf("determining working directory: %v", err)
		}
		projectDir = wd
	}

	if historyLimit > 0 {
		if err := printHistory(projectDir, historyLimit); err != nil {
			log.Fatalf("reading run history: %v", err)
		}
		return
	}

	if *metricsSummary {
		if err := printMetricsSummary(projectDir); err != nil {
			log.Fatalf("querying metrics: %v", err)
		}
		return
	}

	if *initProject {
		if err := runInit(projectDir); err != nil {
			log.Fatalf("initializing project: %v", err)
		}
		return
	}

	if request == "" && planPath == "" {
		fmt.Fprintln(os.Stderr, "usage: codewright -request \"...\" [flags], or -plan plan.yaml")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load(projectDir)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	secrets, err := loadSecrets(projectDir)
	if err != nil {
		log.Fatalf("loading secrets: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logx.NewLogger("main")

	recorder := newRecorder(cfg, logger)

	tasks, planRequest, err := resolvePlan(ctx, cfg, secrets, request, planPath, savePlanPath)
	if err != nil {
		log.Fatalf("planning: %v", err)
	}
	logger.Info("plan has %d task(s)", len(tasks))

	pipe, err := buildPipeline(projectDir, cfg, secrets, recorder, nonInteractive)
	if err != nil {
		log.Fatalf("setting up pipeline: %v", err)
	}

	result := pipe.Run(ctx, planRequest, tasks)

	if err := stageChanges(projectDir, &result, dryRun); err != nil {
		log.Fatalf("staging changes: %v", err)
	}

	recordHistory(projectDir, &result, logger)
	printOutcomes(&result)

	if !result.Success {
		os.Exit(1)
	}
}

// runInit writes a default config file and, when provider API keys are
// present in the environment, captures them into the encrypted secrets
// file so later runs need no exported keys.
func runInit(projectDir string) error {
	if _, err := os.Stat(config.ConfigPath(projectDir)); err == nil {
		fmt.Printf("config already exists at %s\n", config.ConfigPath(projectDir))
	} else {
		if err := config.Save(projectDir, config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", config.ConfigPath(projectDir))
	}

	keys := map[string]string{}
	for _, env := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"} {
		if v := os.Getenv(env); v != "" {
			keys[env] = v
		}
	}
	if len(keys) == 0 {
		return nil
	}

	password := os.Getenv("CODEWRIGHT_SECRETS_PASSWORD")
	if password == "" {
		if !consent.StdinIsTerminal() {
			fmt.Println("provider keys found in environment but no password available; skipping secrets file")
			return nil
		}
		fmt.Fprint(os.Stderr, "Choose a secrets password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		password = string(raw)
	}

	if err := config.EncryptSecretsFile(projectDir, password, keys); err != nil {
		return err
	}
	fmt.Printf("stored %d provider key(s) in the encrypted secrets file\n", len(keys))
	return nil
}

// loadSecrets decrypts the project secrets file when one exists,
// otherwise falls back to environment variables only. The password comes
// from CODEWRIGHT_SECRETS_PASSWORD or an interactive prompt.
func loadSecrets(projectDir string) (*config.Secrets, error) {
	if !config.SecretsFileExists(projectDir) {
		return config.NewSecrets(nil), nil
	}

	password := os.Getenv("CODEWRIGHT_SECRETS_PASSWORD")
	if password == "" {
		if !consent.StdinIsTerminal() {
			return nil, fmt.Errorf("secrets file present but no CODEWRIGHT_SECRETS_PASSWORD set and stdin is not a terminal")
		}
		fmt.Fprint(os.Stderr, "Secrets password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		password = string(raw)
	}

	return config.DecryptSecretsFile(projectDir, password)
}

func newRecorder(cfg config.Config, logger *logx.Logger) metrics.Recorder {
	if !cfg.Metrics.Enabled {
		return metrics.NoopRecorder{}
	}
	recorder := metrics.NewPrometheusRecorder()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
			logger.Warn("metrics listener stopped: %v", err)
		}
	}()
	logger.Info("serving metrics on %s", cfg.Metrics.ListenAddr)
	return recorder
}

// resolvePlan loads a saved plan or asks the planner to produce one.
func resolvePlan(ctx context.Context, cfg config.Config, secrets *config.Secrets, request, planPath, savePlanPath string) ([]proto.Task, string, error) {
	if planPath != "" {
		doc, err := plan.Load(planPath)
		if err != nil {
			return nil, "", err
		}
		return doc.Tasks, doc.Request, nil
	}

	client, err := agents.NewClient(cfg.Agents.PlannerModel, secrets, cfg.Agents)
	if err != nil {
		return nil, "", fmt.Errorf("creating planner client: %w", err)
	}
	tasks, err := agents.NewPlanner(client, cfg.Agents).Plan(ctx, request)
	if err != nil {
		return nil, "", err
	}

	if savePlanPath != "" {
		if err := plan.Save(savePlanPath, plan.Document{Request: request, Tasks: tasks}); err != nil {
			return nil, "", fmt.Errorf("saving plan: %w", err)
		}
	}
	return tasks, request, nil
}

func buildPipeline(projectDir string, cfg config.Config, secrets *config.Secrets, recorder metrics.Recorder, nonInteractive bool) (*pipeline.Pipeline, error) {
	genClient, err := agents.NewClient(cfg.Agents.GeneratorModel, secrets, cfg.Agents)
	if err != nil {
		return nil, fmt.Errorf("creating generator client: %w", err)
	}
	revClient, err := agents.NewClient(cfg.Agents.ReviewerModel, secrets, cfg.Agents)
	if err != nil {
		return nil, fmt.Errorf("creating reviewer client: %w", err)
	}

	manager, err := pkgmgr.DetectManager(projectDir)
	if err != nil {
		return nil, err
	}

	gate := consent.NewGate(
		consent.NewStore(projectDir),
		consent.NewTerminalPrompter(),
		nonInteractive || !consent.StdinIsTerminal(),
	)

	return pipeline.New(projectDir, cfg, pipeline.Deps{
		Generator: agents.NewGenerator(genClient, cfg.Agents),
		Reviewer:  agents.NewReviewer(revClient, cfg.Agents),
		Gate:      gate,
		Installer: pkgmgr.NewInstaller(projectDir, manager, exec.NewLocalExec()),
		Registry:  registry.NewChecker(),
		Recorder:  recorder,
	}), nil
}

// stageChanges stages every passed task's files (last write per path
// wins) and applies them unless this is a dry run.
func stageChanges(projectDir string, result *proto.RunResult, dryRun bool) error {
	byPath := make(map[string]int)
	var changes []proto.FileChange
	for _, outcome := range result.Outcomes {
		if outcome.Status != proto.TaskStatusPassed {
			continue
		}
		for _, change := range outcome.Changes {
			if i, seen := byPath[change.Path]; seen {
				changes[i] = change
				continue
			}
			byPath[change.Path] = len(changes)
			changes = append(changes, change)
		}
	}
	if len(changes) == 0 {
		fmt.Println("No accepted changes to stage.")
		return nil
	}

	stager := stage.NewStager(projectDir)
	staged, err := stager.Stage(changes)
	if err != nil {
		return logx.Wrap(err, "computing staged changes")
	}

	fmt.Println(stage.Summary(staged))
	fmt.Println(stage.CombinedDiff(staged))

	if dryRun {
		fmt.Println("Dry run: nothing written.")
		return nil
	}

	failures := 0
	for _, applied := range stager.Apply(staged) {
		if applied.Err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "failed to apply %s: %v\n", applied.Path, applied.Err)
		}
	}
	if failures > 0 {
		return logx.Errorf("%d file(s) failed to apply", failures)
	}
	return nil
}

// recordHistory is best-effort: a history failure is logged, never fatal.
func recordHistory(projectDir string, result *proto.RunResult, logger *logx.Logger) {
	store, err := persistence.Open(projectDir)
	if err != nil {
		logger.Warn("run history unavailable: %v", err)
		return
	}
	defer store.Close()

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.SaveRun(saveCtx, result); err != nil {
		logger.Warn("failed to record run: %v", err)
	}
}

func printHistory(projectDir string, limit int) error {
	store, err := persistence.Open(projectDir)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}
	for _, run := range runs {
		status := "FAILED"
		if run.Success {
			status = "OK"
		}
		fmt.Printf("%s  %-6s  %2d task(s)  %8s  %s\n",
			run.StartedAt.Format(time.RFC3339), status, run.Tasks, run.Duration.Round(time.Second), run.Request)
	}
	return nil
}

func printMetricsSummary(projectDir string) error {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return err
	}
	if cfg.Metrics.PrometheusURL == "" {
		return fmt.Errorf("no prometheus_url configured under %s", config.ConfigPath(projectDir))
	}

	svc, err := metrics.NewQueryService(cfg.Metrics.PrometheusURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	summary, err := svc.GetRunMetrics(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("tasks passed:     %d\n", summary.TasksPassed)
	fmt.Printf("tasks failed:     %d\n", summary.TasksFailed)
	fmt.Printf("install attempts: %d\n", summary.InstallAttempts)
	fmt.Printf("consent rejects:  %d\n", summary.ConsentRejects)
	return nil
}

func printOutcomes(result *proto.RunResult) {
	fmt.Printf("\nRun %s: ", result.RunID)
	if result.Success {
		fmt.Println("all tasks passed")
	} else {
		fmt.Println("some tasks failed")
	}
	for _, outcome := range result.Outcomes {
		fmt.Printf("  [%s] %s (%s): %d attempt(s), %d file(s)\n",
			outcome.Status, outcome.Task.ID, outcome.Task.Title, outcome.Attempts, len(outcome.Changes))
		if outcome.FailureReason != "" {
			fmt.Printf("      reason: %s\n", outcome.FailureReason)
		}
		for _, issue := range outcome.Issues {
			fmt.Printf("      %s %s: %s\n", issue.Severity, issue.File, issue.Description)
		}
	}
}
