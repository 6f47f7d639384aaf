// Package llmtest provides shared contract tests that verify any
// llm.Provider implementation behaves correctly. Every adapter's test
// file should call TestProviderContract to ensure conformance.
package llmtest

import (
	"context"
	"testing"

	"github.com/sensorvision/pilot/pkg/llm"
)

// TestProviderContract runs a suite of behavioral contract tests against
// any llm.Provider implementation. The factory must return a provider
// whose Complete succeeds (point it at a mock vendor server). Call this
// from each adapter's _test.go:
//
//	func TestContract(t *testing.T) {
//	    llmtest.TestProviderContract(t, func() llm.Provider { return newTestProvider(t, srv.URL) })
//	}
func TestProviderContract(t *testing.T, factory func() llm.Provider) {
	t.Helper()

	t.Run("complete_never_returns_nil", func(t *testing.T) {
		p := factory()
		resp := p.Complete(context.Background(), &llm.Request{UserMessage: "hello"})
		if resp == nil {
			t.Fatal("Complete() returned nil response")
		}
		if resp.Provider != p.ID() {
			t.Errorf("Response.Provider = %q, want %q", resp.Provider, p.ID())
		}
	})

	t.Run("token_total_is_input_plus_output", func(t *testing.T) {
		p := factory()
		resp := p.Complete(context.Background(), &llm.Request{UserMessage: "hello"})
		if !resp.Success {
			t.Fatalf("Complete() failed: %s", resp.ErrorMessage)
		}
		if resp.TotalTokens != resp.InputTokens+resp.OutputTokens {
			t.Errorf("TotalTokens = %d, want %d", resp.TotalTokens, resp.InputTokens+resp.OutputTokens)
		}
	})

	t.Run("cost_estimate_monotone_and_rounds_up", func(t *testing.T) {
		p := factory()
		pairs := [][2]int{{0, 0}, {1, 1}, {1000, 500}, {1_000_000, 0}, {0, 1_000_000}, {5_000_000, 2_000_000}}
		prev := -1
		for _, pair := range pairs {
			c := p.EstimateCostCents(pair[0], pair[1])
			if c < 0 {
				t.Errorf("EstimateCostCents(%d, %d) = %d, want >= 0", pair[0], pair[1], c)
			}
			if pair[0]+pair[1] > 0 && c == 0 {
				t.Errorf("EstimateCostCents(%d, %d) = 0, nonzero usage must never round to free", pair[0], pair[1])
			}
			if c < prev {
				t.Errorf("EstimateCostCents(%d, %d) = %d decreased from %d", pair[0], pair[1], c, prev)
			}
			prev = c
		}
	})

	t.Run("default_model_not_empty", func(t *testing.T) {
		p := factory()
		if p.DefaultModel() == "" {
			t.Error("DefaultModel() must not be empty")
		}
	})
}
