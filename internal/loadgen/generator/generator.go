// Package generator drives concurrent workers against the executor,
// grounded on the teacher's perf-test/internal/generator.Generator
// (account bootstrap, ramp-up, worker pool racing to a target operation
// count), retargeted at holder ids and credit/debit/transfer instead of
// the teacher's numeric account ids and deposit/withdraw.
package generator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"ledgercore/internal/loadgen/config"
	"ledgercore/internal/loadgen/executor"
	"ledgercore/internal/loadgen/metrics"
)

type Generator struct {
	config         *config.Config
	scenario       *Scenario
	executor       *executor.Executor
	collector      *metrics.Collector
	holders        []string
	stopChan       chan struct{}
	wg             sync.WaitGroup
	operationCount int64
	opSeq          int64
	targetOps      int64
	stopOnce       sync.Once
}

func New(cfg *config.Config, scenario *Scenario, collector *metrics.Collector) *Generator {
	return &Generator{
		config:    cfg,
		scenario:  scenario,
		executor:  executor.New(cfg.APIURL),
		collector: collector,
		stopChan:  make(chan struct{}),
		targetOps: scenario.TargetOperations,
	}
}

func (g *Generator) Run(ctx context.Context) {
	log.Printf("Setting up %d accounts with initial balance %d", g.scenario.Accounts, g.scenario.InitialBalance)

	if err := g.setupAccounts(ctx); err != nil {
		log.Printf("Failed to setup accounts: %v", err)
		return
	}

	log.Printf("Starting load generation with %d workers", g.config.Workers)

	if g.config.RampUp > 0 {
		g.rampUp(ctx)
	} else {
		g.startWorkers(ctx, g.config.Workers)
	}

	<-ctx.Done()
	g.stopOnce.Do(func() { close(g.stopChan) })
	g.wg.Wait()
}

func (g *Generator) setupAccounts(ctx context.Context) error {
	g.holders = make([]string, 0, g.scenario.Accounts)

	setupStart := time.Now()
	var setupWg sync.WaitGroup
	holderChan := make(chan string, g.scenario.Accounts)
	errorChan := make(chan error, g.scenario.Accounts)

	concurrency := g.scenario.Accounts
	if concurrency > 50 {
		concurrency = 50
	}
	semaphore := make(chan struct{}, concurrency)

	stamp := time.Now().UnixNano()
	for i := 0; i < g.scenario.Accounts; i++ {
		setupWg.Add(1)
		go func(index int) {
			defer setupWg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			holder := fmt.Sprintf("loadgen-%d-%d", stamp, index)
			if err := g.executor.CreateAccount(ctx, holder, "USD"); err != nil {
				errorChan <- fmt.Errorf("failed to create account %s: %w", holder, err)
				return
			}
			if g.scenario.InitialBalance > 0 {
				if err := g.executor.Credit(ctx, holder, g.scenario.InitialBalance, "loadgen-seed-"+holder); err != nil {
					errorChan <- fmt.Errorf("failed to seed balance for %s: %w", holder, err)
					return
				}
			}
			holderChan <- holder
		}(i)
	}

	go func() {
		setupWg.Wait()
		close(holderChan)
		close(errorChan)
	}()

	for holder := range holderChan {
		g.holders = append(g.holders, holder)
	}

	var errs []error
	for err := range errorChan {
		errs = append(errs, err)
		log.Printf("Account setup error: %v", err)
	}

	if len(g.holders) == 0 {
		return fmt.Errorf("failed to create any accounts, last errors: %v", errs)
	}
	if len(errs) > 0 {
		log.Printf("Account setup completed with %d errors, continuing with %d accounts", len(errs), len(g.holders))
	}
	log.Printf("Created %d accounts in %.2fs", len(g.holders), time.Since(setupStart).Seconds())
	return nil
}

func (g *Generator) rampUp(ctx context.Context) {
	steps := g.config.Workers
	if steps > 10 {
		steps = 10
	}
	if steps == 0 {
		steps = 1
	}

	stepDuration := g.config.RampUp / time.Duration(steps)
	perStep := g.config.Workers / steps
	if perStep < 1 {
		perStep = 1
	}

	started := 0
	for i := 1; i <= steps; i++ {
		target := perStep * i
		if target > g.config.Workers {
			target = g.config.Workers
		}
		toStart := target - started
		if toStart > 0 {
			log.Printf("Ramping up: %d/%d workers", target, g.config.Workers)
			g.startWorkers(ctx, toStart)
			started = target
		}
		if started >= g.config.Workers {
			break
		}
		select {
		case <-time.After(stepDuration):
		case <-ctx.Done():
			return
		}
	}
}

func (g *Generator) startWorkers(ctx context.Context, count int) {
	for i := 0; i < count; i++ {
		g.wg.Add(1)
		go g.worker(ctx)
	}
}

func (g *Generator) worker(ctx context.Context) {
	defer g.wg.Done()

	for {
		if atomic.LoadInt64(&g.operationCount) >= g.targetOps {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-g.stopChan:
			return
		default:
		}

		seq := atomic.AddInt64(&g.opSeq, 1)
		op := g.scenario.GenerateOperation(g.holders, seq)

		start := time.Now()
		err := g.executeOperation(ctx, op)
		latency := time.Since(start)

		g.collector.RecordOperation(string(op.Type), latency, err == nil, err)

		newCount := atomic.AddInt64(&g.operationCount, 1)
		if newCount >= g.targetOps {
			g.stopOnce.Do(func() { close(g.stopChan) })
			return
		}
		if g.scenario.ThinkTime > 0 {
			time.Sleep(g.scenario.ThinkTime)
		}
	}
}

func (g *Generator) executeOperation(ctx context.Context, op Operation) error {
	switch op.Type {
	case OpCredit:
		return g.executor.Credit(ctx, op.Holder, op.Amount, op.Reference)
	case OpDebit:
		return g.executor.Debit(ctx, op.Holder, op.Amount, op.Reference)
	case OpTransfer:
		return g.executor.Transfer(ctx, op.SrcHolder, op.DstHolder, op.Amount, op.Reference)
	case OpBalance:
		_, err := g.executor.Balance(ctx, op.Holder)
		return err
	default:
		return fmt.Errorf("unknown operation type: %s", op.Type)
	}
}
