// Grounded on the teacher's perf-test/internal/generator.Scenario (weighted
// operation mix, JSON-loadable, int64 amounts instead of the teacher's
// float64 dollars since the core already deals exclusively in minor units).
package generator

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"
)

type OperationType string

const (
	OpCredit   OperationType = "credit"
	OpDebit    OperationType = "debit"
	OpTransfer OperationType = "transfer"
	OpBalance  OperationType = "balance"
)

type Scenario struct {
	Name             string                    `json:"name"`
	Description      string                    `json:"description"`
	Accounts         int                       `json:"accounts"`
	TargetOperations int64                     `json:"target_operations"`
	Distribution     map[OperationType]float64 `json:"distribution"`
	InitialBalance   int64                     `json:"initial_balance"`
	MinAmount        int64                     `json:"min_amount"`
	MaxAmount        int64                     `json:"max_amount"`
	ThinkTime        time.Duration             `json:"think_time"`
}

type Operation struct {
	Type      OperationType
	Holder    string
	SrcHolder string
	DstHolder string
	Amount    int64
	Reference string
}

func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var scenario Scenario
	if err := json.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func (s *Scenario) Validate() error {
	if s.Accounts <= 0 {
		return fmt.Errorf("accounts must be positive")
	}
	total := 0.0
	for _, weight := range s.Distribution {
		total += weight
	}
	if total < 0.99 || total > 1.01 {
		return fmt.Errorf("distribution weights must sum to 1.0")
	}
	return nil
}

func (s *Scenario) GenerateOperation(holders []string, seq int64) Operation {
	r := rand.Float64()
	cumulative := 0.0
	for opType, weight := range s.Distribution {
		cumulative += weight
		if r <= cumulative {
			return s.createOperation(opType, holders, seq)
		}
	}
	return s.createOperation(OpBalance, holders, seq)
}

func (s *Scenario) createOperation(opType OperationType, holders []string, seq int64) Operation {
	op := Operation{Type: opType, Reference: fmt.Sprintf("loadgen-%s-%d", opType, seq)}

	switch opType {
	case OpCredit, OpDebit:
		op.Holder = holders[rand.Intn(len(holders))]
		op.Amount = s.generateValidAmount()
	case OpTransfer:
		srcIdx := rand.Intn(len(holders))
		dstIdx := rand.Intn(len(holders))
		for dstIdx == srcIdx && len(holders) > 1 {
			dstIdx = rand.Intn(len(holders))
		}
		op.SrcHolder = holders[srcIdx]
		op.DstHolder = holders[dstIdx]
		op.Amount = s.generateValidAmount()
	case OpBalance:
		op.Holder = holders[rand.Intn(len(holders))]
	}
	return op
}

func (s *Scenario) generateValidAmount() int64 {
	min, max := s.MinAmount, s.MaxAmount
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	return min + rand.Int63n(max-min+1)
}

func DefaultScenario() *Scenario {
	return &Scenario{
		Name:        "Default Ledger Load Test",
		Description: "Balanced mix of credit/debit/transfer operations with realistic amounts",
		Accounts:    1000,
		Distribution: map[OperationType]float64{
			OpCredit:   0.25,
			OpDebit:    0.25,
			OpTransfer: 0.35,
			OpBalance:  0.15,
		},
		TargetOperations: 100000,
		InitialBalance:   100000,
		MinAmount:        100,
		MaxAmount:        10000,
		ThinkTime:        10 * time.Millisecond,
	}
}

func HighConcurrencyScenario() *Scenario {
	return &Scenario{
		Name:        "High Concurrency Transfer Test",
		Description: "Heavy transfer load to exercise ascending-id lock ordering under contention",
		Accounts:    100,
		Distribution: map[OperationType]float64{
			OpCredit:   0.10,
			OpDebit:    0.10,
			OpTransfer: 0.70,
			OpBalance:  0.10,
		},
		TargetOperations: 200000,
		InitialBalance:   500000,
		MinAmount:        1000,
		MaxAmount:        50000,
		ThinkTime:        time.Millisecond,
	}
}
