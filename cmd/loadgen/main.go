package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"ledgercore/internal/loadgen/config"
	"ledgercore/internal/loadgen/generator"
	"ledgercore/internal/loadgen/metrics"
	"ledgercore/internal/loadgen/reporter"
)

func main() {
	var (
		apiURL       = flag.String("api-url", "http://localhost:8080", "ledger API URL")
		workers      = flag.Int("workers", 100, "number of concurrent workers")
		duration     = flag.Duration("duration", 60*time.Second, "test duration")
		rampUp       = flag.Duration("ramp-up", 10*time.Second, "ramp-up period")
		scenarioFile = flag.String("scenario", "", "path to scenario file")
		scenarioName = flag.String("scenario-preset", "default", "built-in scenario when -scenario is unset: default or high-concurrency")
		reportPath   = flag.String("report", "./reports", "directory to save reports")
	)
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutting down...")
		cancel()
	}()

	cfg := &config.Config{
		APIURL:     *apiURL,
		Workers:    *workers,
		Duration:   *duration,
		RampUp:     *rampUp,
		ReportPath: *reportPath,
	}

	scenario, err := loadScenario(*scenarioFile, *scenarioName)
	if err != nil {
		log.Fatalf("failed to load scenario: %v", err)
	}

	log.Printf("starting load test with %d workers for %v", cfg.Workers, cfg.Duration)
	log.Printf("scenario: %s", scenario.Name)

	collector := metrics.NewCollector()
	gen := generator.New(cfg, scenario, collector)

	testCtx, testCancel := context.WithTimeout(ctx, cfg.Duration)
	defer testCancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		gen.Run(testCtx)
	}()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				stats := collector.GetStats()
				fmt.Printf("requests=%d success=%.2f%% p99=%s rps=%.2f\n",
					stats.TotalRequests, stats.SuccessRate*100, stats.P99Latency, stats.RequestsPerSecond)
			case <-testCtx.Done():
				return
			}
		}
	}()

	wg.Wait()

	report := reporter.Generate(collector.GetStats(), scenario)
	reportFile := fmt.Sprintf("%s/report_%d.json", cfg.ReportPath, time.Now().Unix())
	if err := reporter.SaveReport(report, reportFile); err != nil {
		log.Printf("failed to save report: %v", err)
	}
	reporter.PrintSummary(report)
}

func loadScenario(path, preset string) (*generator.Scenario, error) {
	if path != "" {
		return generator.LoadScenario(path)
	}
	if preset == "high-concurrency" {
		return generator.HighConcurrencyScenario(), nil
	}
	return generator.DefaultScenario(), nil
}
