package pilot

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sensorvision/pilot/pkg/llm"
)

// testEnv wires a Service against fake sources, a single fake provider,
// and a real in-memory ledger.
type testEnv struct {
	fake     *fakeSources
	provider *fakeProvider
	ledger   *Ledger
	convs    *ConversationStore
	svc      *Service
}

// newTestService builds a Service whose provider answers every call with
// the given content.
func newTestService(t *testing.T, content string) *testEnv {
	t.Helper()

	fake := newFakeSources()
	provider := &fakeProvider{id: llm.ProviderClaude, available: true}
	if content != "" {
		resp := llm.NewSuccess(llm.ProviderClaude, "fake-model", content, 100, 50, 12)
		resp.CostCents = 1
		provider.resp = resp
	}

	ledger := newTestLedger(t)
	router := NewRouter(map[llm.ProviderID]llm.Provider{llm.ProviderClaude: provider},
		llm.ProviderClaude, time.Minute, ledger, nil, zap.NewNop())

	cfg := DefaultConfig()
	convs := NewConversationStore(cfg.ConversationTTL, cfg.MaxConversationMessages, zap.NewNop())
	svc := NewService(cfg, fake.sources(), router,
		NewSanitizer(zap.NewNop(), nil), NewPool(4), convs, zap.NewNop())

	return &testEnv{fake: fake, provider: provider, ledger: ledger, convs: convs, svc: svc}
}

func (e *testEnv) usageRows(t *testing.T, orgID string) []UsageRecord {
	t.Helper()
	rows, err := e.ledger.HistoryByOrg(t.Context(), orgID, 50, 0)
	if err != nil {
		t.Fatalf("usage history: %v", err)
	}
	return rows
}
