package pilot

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sensorvision/pilot/internal/provider/claude"
	"github.com/sensorvision/pilot/internal/provider/gemini"
	"github.com/sensorvision/pilot/internal/provider/openai"
	"github.com/sensorvision/pilot/pkg/llm"
	"github.com/sensorvision/pilot/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

// RoleTelemetry names plugins that can serve device and telemetry
// lookups to the pilot pipelines.
const RoleTelemetry = "telemetry"

// TelemetryProvider is implemented by plugins that expose device,
// variable, anomaly, and dashboard access. Pilot resolves one from the
// registry at init unless sources were injected directly.
type TelemetryProvider interface {
	TelemetrySources() Sources
}

// Module implements the pilot LLM orchestration plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config

	src           Sources
	router        *Router
	ledger        *Ledger
	sanitizer     *Sanitizer
	conversations *ConversationStore
	svc           *Service
	bus           plugin.EventBus
	orgLimiter    *orgRateLimiter

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new pilot plugin instance.
func New() *Module {
	return &Module{}
}

// SetSources injects telemetry sources directly, bypassing registry
// resolution. Must be called before Init.
func (m *Module) SetSources(src Sources) {
	m.src = src
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "pilot",
		Version:     "0.1.0",
		Description: "LLM orchestration: anomaly explanations, NL queries, reports, root cause, widget assistant",
		Roles:       []string{"llm", "assistant"},
		Required:    false,
		APIVersion:  plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("unmarshal pilot config: %w", err)
		}
	}

	defaultProvider := llm.ProviderID(m.cfg.DefaultProvider)
	if !validProviderID(defaultProvider) {
		m.logger.Warn("unknown default provider, falling back",
			zap.String("configured", m.cfg.DefaultProvider),
			zap.String("fallback", string(llm.ProviderClaude)))
		defaultProvider = llm.ProviderClaude
	}

	if deps.Store == nil {
		return fmt.Errorf("pilot requires the shared store for its usage ledger")
	}
	if err := deps.Store.Migrate(ctx, "pilot", migrations()); err != nil {
		return fmt.Errorf("pilot migrations: %w", err)
	}
	m.ledger = NewLedger(deps.Store.DB())
	m.bus = deps.Bus

	providers := m.buildProviders(deps.Config)
	m.router = NewRouter(providers, defaultProvider, m.cfg.RequestTimeout, m.ledger, deps.Bus, m.logger)
	m.sanitizer = NewSanitizer(m.logger, m.flagSuspicious)
	m.conversations = NewConversationStore(m.cfg.ConversationTTL, m.cfg.MaxConversationMessages, m.logger)
	m.orgLimiter = newOrgRateLimiter(m.cfg.RateLimitPerMinute, m.cfg.RateLimitBurst)

	if m.src.Devices == nil && deps.Plugins != nil {
		for _, p := range deps.Plugins.ResolveByRole(RoleTelemetry) {
			if tp, ok := p.(TelemetryProvider); ok {
				m.src = tp.TelemetrySources()
				break
			}
		}
	}
	if m.src.Devices == nil {
		m.logger.Warn("no telemetry provider found, device-backed features will report not found")
	}

	m.svc = NewService(m.cfg, m.src, m.router, m.sanitizer, NewPool(m.cfg.WorkerPoolSize), m.conversations, m.logger)

	m.logger.Info("pilot module initialized",
		zap.String("default_provider", string(defaultProvider)),
		zap.Any("available_providers", m.router.AvailableProviders()),
		zap.Int64("monthly_quota_tokens", m.cfg.MonthlyQuotaTokens),
		zap.Duration("request_timeout", m.cfg.RequestTimeout))
	return nil
}

func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.conversations.RunSweeper(ctx, m.cfg.ConversationSweepInterval)
	}()

	m.logger.Info("pilot module started")
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.logger.Info("pilot module stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	available := m.router.AvailableProviders()

	status := "healthy"
	message := ""
	if len(available) == 0 {
		status = "degraded"
		message = "no LLM provider is configured"
	}

	names := make([]string, len(available))
	for i, id := range available {
		names[i] = string(id)
	}

	return plugin.HealthStatus{
		Status:  status,
		Message: message,
		Details: map[string]string{
			"providers":            fmt.Sprintf("%v", names),
			"default_provider":     string(m.router.DefaultProvider()),
			"active_conversations": strconv.Itoa(m.conversations.Len()),
		},
	}
}

// buildProviders constructs all three adapters. Adapters without an API
// key stay registered but report unavailable, so the router can skip them.
func (m *Module) buildProviders(cfg plugin.Config) map[llm.ProviderID]llm.Provider {
	providers := make(map[llm.ProviderID]llm.Provider, 3)

	oa := openai.DefaultConfig()
	oaKey := m.providerSection(cfg, "openai", &oa)
	providers[llm.ProviderOpenAI] = openai.New(oa, oaKey, m.logger.Named("openai"))

	cl := claude.DefaultConfig()
	clKey := m.providerSection(cfg, "claude", &cl)
	providers[llm.ProviderClaude] = claude.New(cl, clKey, m.logger.Named("claude"))

	ge := gemini.DefaultConfig()
	geKey := m.providerSection(cfg, "gemini", &ge)
	providers[llm.ProviderGemini] = gemini.New(ge, geKey, m.logger.Named("gemini"))

	return providers
}

// providerSection unmarshals providers.<name> into target and returns
// the configured API key, if any. A malformed section is logged and the
// adapter keeps its defaults.
func (m *Module) providerSection(cfg plugin.Config, name string, target any) string {
	if cfg == nil {
		return ""
	}
	sub := cfg.Sub("providers." + name)
	if sub == nil {
		return ""
	}
	if err := sub.Unmarshal(target); err != nil {
		m.logger.Warn("invalid provider config section, using defaults",
			zap.String("provider", name),
			zap.Error(err),
		)
	}
	return sub.GetString("api_key")
}

func (m *Module) flagSuspicious(field string) {
	if m.bus == nil {
		return
	}
	m.bus.PublishAsync(context.Background(), plugin.Event{
		Topic:     TopicInputSuspicious,
		Source:    "pilot",
		Timestamp: time.Now(),
		Payload:   map[string]any{"field": field},
	})
}

func validProviderID(id llm.ProviderID) bool {
	for _, known := range llm.AllProviders() {
		if id == known {
			return true
		}
	}
	return false
}
