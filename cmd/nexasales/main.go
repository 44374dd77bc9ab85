package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nexasales/nexasales/internal/docsource"
	"github.com/nexasales/nexasales/internal/reasoning"
	"github.com/nexasales/nexasales/internal/runstore"
	"github.com/nexasales/nexasales/internal/segmentation"
)

func main() {
	serviceFile := flag.String("service", "", "Path to the service description text (required)")
	marketFile := flag.String("market", "", "Path to supporting market data text")
	docURL := flag.String("doc-url", "", "URL of a business reference document")
	dbPath := flag.String("db", "nexasales.db", "SQLite run store path")
	outPath := flag.String("out", "report.md", "Markdown report output path")
	maxInFlight := flag.Int("max-in-flight", 2, "Concurrent stages per wave")
	pollInterval := flag.Duration("poll-interval", 2*time.Second, "Reasoning session poll interval")
	stageTimeout := flag.Duration("stage-timeout", 3*time.Minute, "Per-stage completion timeout")
	retryBudget := flag.Int("retry-budget", 2, "Retries per failure class per stage")
	flag.Parse()

	if *serviceFile == "" {
		log.Fatal("missing required flag -service")
	}
	serviceText := readFile(*serviceFile)
	marketText := ""
	if *marketFile != "" {
		marketText = readFile(*marketFile)
	}

	client, err := reasoning.NewSessionClientFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	runner := segmentation.NewRunner(client, segmentation.RunnerConfig{
		PollInterval: *pollInterval,
		StageTimeout: *stageTimeout,
		RetryBudget:  *retryBudget,
	})
	pipeline := segmentation.NewPipeline(segmentation.NewLLMStageRunner(runner), segmentation.Config{
		MaxInFlight: *maxInFlight,
	})

	store, err := runstore.Open(*dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	req := segmentation.Request{
		RunID:              uuid.NewString(),
		ServiceDescription: serviceText,
		MarketData:         marketText,
		BusinessDocument:   docsource.NewFetcher(*docURL).GetDocument(ctx),
	}

	log.Printf("starting segmentation run %s (model=%s)", req.RunID, client.ModelName())
	res, runErr := pipeline.Run(ctx, req)
	res.Metadata.Model = client.ModelName()

	report := segmentation.AssembleReport(res)
	if err := store.Save(report); err != nil {
		log.Printf("run store save failed: %v", err)
	}
	if err := os.WriteFile(*outPath, []byte(report.Markdown), 0o644); err != nil {
		log.Printf("write %s: %v", *outPath, err)
	}

	printSummary(report)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatal(runErr)
	}
}

func printSummary(rep segmentation.Report) {
	fmt.Printf("run %s finished %s\n", rep.RunID, rep.Mode)
	for _, p := range rep.Priorities {
		fmt.Printf("  #%d %-28s potential=%.0f allocation=%d%%\n",
			p.Rank, p.SegmentName, p.TotalPotential, p.ResourceAllocationPercent)
	}
}

func readFile(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}
