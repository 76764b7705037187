// Package executor drives the ledger's HTTP surface from the load
// generator. Grounded on the teacher's perf-test/internal/executor.Executor
// (pooled *http.Client, JSON post/get helpers), retargeted from the
// teacher's /accounts/{id}/deposit|withdraw endpoints onto /credit,
// /debit and /transfer.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Executor struct {
	client  *http.Client
	baseURL string
}

func New(baseURL string) *Executor {
	return &Executor{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        1000,
				MaxIdleConnsPerHost: 100,
				MaxConnsPerHost:     100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: baseURL,
	}
}

func (e *Executor) CreateAccount(ctx context.Context, holderID, currency string) error {
	_, err := e.post(ctx, "/accounts", map[string]interface{}{
		"holderId": holderID,
		"currency": currency,
	})
	return err
}

func (e *Executor) Credit(ctx context.Context, holder string, amount int64, reference string) error {
	_, err := e.post(ctx, "/credit", map[string]interface{}{
		"holder":    holder,
		"amount":    amount,
		"reference": reference,
	})
	return err
}

func (e *Executor) Debit(ctx context.Context, holder string, amount int64, reference string) error {
	_, err := e.post(ctx, "/debit", map[string]interface{}{
		"holder":    holder,
		"amount":    amount,
		"reference": reference,
	})
	return err
}

func (e *Executor) Transfer(ctx context.Context, srcHolder, dstHolder string, amount int64, reference string) error {
	_, err := e.post(ctx, "/transfer", map[string]interface{}{
		"srcHolder": srcHolder,
		"dstHolder": dstHolder,
		"amount":    amount,
		"reference": reference,
	})
	return err
}

func (e *Executor) Balance(ctx context.Context, holder string) (int64, error) {
	body, err := e.get(ctx, "/accounts/"+holder)
	if err != nil {
		return 0, err
	}
	var result struct {
		Balance int64 `json:"balance"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to parse balance response: %w", err)
	}
	return result.Balance, nil
}

func (e *Executor) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Load-Test", "true")

	return e.do(req)
}

func (e *Executor) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Load-Test", "true")

	return e.do(req)
}

func (e *Executor) do(req *http.Request) ([]byte, error) {
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var respBody bytes.Buffer
	if _, err := respBody.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, respBody.String())
	}
	return respBody.Bytes(), nil
}
