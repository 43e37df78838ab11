package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/XiaoConstantine/gepa-go/pkg/archive"
	"github.com/XiaoConstantine/gepa-go/pkg/evolve"
	"github.com/XiaoConstantine/gepa-go/pkg/llms"
	"github.com/XiaoConstantine/gepa-go/pkg/logging"
	"github.com/XiaoConstantine/gepa-go/pkg/runners"
	"github.com/XiaoConstantine/gepa-go/pkg/suite"
)

func main() {
	apiKey := flag.String("api-key", "", "Anthropic API key (falls back to ANTHROPIC_API_KEY)")
	model := flag.String("model", string(anthropic.ModelClaudeSonnet4_5_20250929), "Model for mutation and reflection")
	suitePath := flag.String("suite", "", "Path to the YAML scenario suite")
	seed := flag.String("seed", "", "Seed instruction text to optimize")
	maxRollouts := flag.Int("max-rollouts", 100, "Hard ceiling on scenario executions")
	children := flag.Int("children", 2, "Children per parent per generation")
	stagnation := flag.Int("stagnation", 3, "Generations without frontier improvement before stopping")
	concurrency := flag.Int("concurrency", 4, "Concurrent scenario evaluations")
	timeout := flag.Duration("timeout", 2*time.Minute, "Per-scenario execution timeout")
	archivePath := flag.String("archive", "", "Optional SQLite file to export the run history to")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *suitePath == "" || *seed == "" {
		fmt.Fprintln(os.Stderr, "usage: gepa -suite scenarios.yaml -seed \"instruction text\" [-api-key KEY]")
		os.Exit(2)
	}

	logLevel := logging.INFO
	if *verbose {
		logLevel = logging.DEBUG
	}
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logLevel,
		Outputs:  []logging.Output{logging.NewConsoleOutput(true, logging.WithColor(true))},
	}))

	if err := run(*apiKey, *model, *suitePath, *seed, *maxRollouts, *children, *stagnation, *concurrency, *timeout, *archivePath); err != nil {
		fmt.Fprintf(os.Stderr, "gepa: %v\n", err)
		os.Exit(1)
	}
}

func run(apiKey, model, suitePath, seed string, maxRollouts, children, stagnation, concurrency int, timeout time.Duration, archivePath string) error {
	ctx := context.Background()

	scenarios, err := suite.Load(suitePath)
	if err != nil {
		return err
	}

	llm, err := llms.NewAnthropicLLM(apiKey, anthropic.Model(model))
	if err != nil {
		return err
	}

	runner, err := runners.NewLLMRunner(llm)
	if err != nil {
		return err
	}

	cfg := &evolve.EngineConfig{
		SeedInstruction:       seed,
		MaxRollouts:           maxRollouts,
		ChildrenPerGeneration: children,
		StagnationGenerations: stagnation,
		EvaluationConcurrency: concurrency,
		ScenarioTimeout:       timeout,
	}

	engine, err := evolve.NewEngine(cfg, scenarios, runner, llm)
	if err != nil {
		return err
	}
	defer engine.Close()

	result, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	if archivePath != "" {
		if err := archive.Save(archivePath, engine.Store(), result); err != nil {
			return err
		}
	}

	fmt.Printf("terminal state:   %s\n", result.State)
	fmt.Printf("generations:      %d\n", result.Generations)
	fmt.Printf("rollouts used:    %d / %d\n", result.RolloutsConsumed, maxRollouts)
	fmt.Printf("pass rate:        %.2f  mean score: %.2f  worst case: %.2f\n",
		result.Scores.PassRate, result.Scores.MeanScore, result.Scores.WorstCase)
	fmt.Printf("lineage depth:    %d\n", len(result.Lineage))
	fmt.Printf("\nbest instruction:\n%s\n", result.BestInstruction)

	return nil
}
