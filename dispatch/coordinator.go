package dispatch

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shorelinehq/dispatch/identity"
	"github.com/shorelinehq/dispatch/internal/metrics"
	"github.com/shorelinehq/dispatch/types"
)

// tracerName is the instrumentation scope for coordinator spans.
const tracerName = "github.com/shorelinehq/dispatch"

// Config holds coordinator configuration.
type Config struct {
	// DefaultMaxLoad is the session capacity assigned to agents that
	// register without an explicit limit.
	DefaultMaxLoad int `yaml:"default_max_load"`

	// MaxAgentsPerPurpose caps spawn-on-demand growth per purpose pool.
	// Zero means unlimited, which preserves total routing availability.
	MaxAgentsPerPurpose int `yaml:"max_agents_per_purpose"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultMaxLoad:      10,
		MaxAgentsPerPurpose: 0,
	}
}

// Coordinator owns the agent registry, purpose pools, and session
// table. All mutating operations serialize on its lock; queries return
// deep copies and never expose internal state.
type Coordinator struct {
	mu sync.RWMutex

	// agents maps identity address to agent record.
	agents map[string]*types.Agent

	// order holds agent ids in registration order. Filtering iterates
	// it so strategy selection and the round-robin cursor see a stable
	// sequence rather than map iteration order.
	order []string

	// pools groups live agents by purpose.
	pools map[types.Purpose][]*types.Agent

	// sessions maps session id to session. Sessions are never deleted.
	sessions map[string]*types.Session

	// rrCursor holds one round-robin cursor per requested service.
	rrCursor map[string]int

	activeSessions int

	entropy *ulid.MonotonicEntropy

	minter    identity.Minter
	config    *Config
	logger    *zap.Logger
	collector *metrics.Collector
	tracer    trace.Tracer
	events    *EventBus
	now       func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(coord *Coordinator) { coord.collector = c }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(coord *Coordinator) { coord.now = now }
}

// NewCoordinator creates a coordinator. The minter is required: spawn
// on demand must be able to mint identities. A nil config or logger
// falls back to defaults.
func NewCoordinator(config *Config, minter identity.Minter, logger *zap.Logger, opts ...Option) *Coordinator {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Coordinator{
		agents:   make(map[string]*types.Agent),
		pools:    make(map[types.Purpose][]*types.Agent),
		sessions: make(map[string]*types.Session),
		rrCursor: make(map[string]int),
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		minter:   minter,
		config:   config,
		logger:   logger.With(zap.String("component", "coordinator")),
		tracer:   otel.Tracer(tracerName),
		events:   NewEventBus(logger),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger.Info("coordinator initialized",
		zap.Int("default_max_load", config.DefaultMaxLoad),
		zap.Int("max_agents_per_purpose", config.MaxAgentsPerPurpose),
	)

	return c
}

// Events returns the coordinator's outbound event bus.
func (c *Coordinator) Events() *EventBus {
	return c.events
}

// newID allocates a monotonic, time-sortable ULID for sessions and
// transactions. Callers must hold the coordinator lock: the entropy
// source is not safe for concurrent use.
func (c *Coordinator) newID() string {
	return ulid.MustNew(ulid.Timestamp(c.now()), c.entropy).String()
}

// NetworkStats is an aggregate view of the dispatch network.
type NetworkStats struct {
	TotalAgents    int             `json:"total_agents"`
	ActiveAgents   int             `json:"active_agents"`
	IdleAgents     int             `json:"idle_agents"`
	BusyAgents     int             `json:"busy_agents"`
	TotalSessions  int             `json:"total_sessions"`
	ActiveSessions int             `json:"active_sessions"`
	AvgLoad        float64         `json:"avg_load"`
	AvgPerformance float64         `json:"avg_performance"`
	Purposes       []types.Purpose `json:"purposes"`
}

// GetNetworkStats returns aggregate statistics over agents and sessions.
func (c *Coordinator) GetNetworkStats() NetworkStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := NetworkStats{
		TotalAgents:    len(c.agents),
		TotalSessions:  len(c.sessions),
		ActiveSessions: c.activeSessions,
	}

	var loadSum, perfSum float64
	for _, agent := range c.agents {
		loadSum += float64(agent.CurrentLoad)
		perfSum += agent.PerformanceScore

		if agent.Status == types.AgentStatusActive {
			stats.ActiveAgents++
			if agent.CurrentLoad == 0 {
				stats.IdleAgents++
			}
		}
		if agent.CurrentLoad > 0 {
			stats.BusyAgents++
		}
	}

	if len(c.agents) > 0 {
		stats.AvgLoad = loadSum / float64(len(c.agents))
		stats.AvgPerformance = perfSum / float64(len(c.agents))
	}

	stats.Purposes = make([]types.Purpose, 0, len(c.pools))
	for purpose := range c.pools {
		stats.Purposes = append(stats.Purposes, purpose)
	}
	sort.Slice(stats.Purposes, func(i, j int) bool {
		return stats.Purposes[i] < stats.Purposes[j]
	})

	return stats
}

// Snapshot is a serializable copy of coordinator state for the
// persistence adapter.
type Snapshot struct {
	TakenAt  time.Time        `json:"taken_at"`
	Agents   []*types.Agent   `json:"agents"`
	Sessions []*types.Session `json:"sessions"`
	Order    []string         `json:"order"`
	Cursors  map[string]int   `json:"cursors"`
}

// Snapshot captures the full network state under the read lock.
func (c *Coordinator) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := &Snapshot{
		TakenAt: c.now(),
		Order:   append([]string(nil), c.order...),
		Cursors: make(map[string]int, len(c.rrCursor)),
	}
	for _, id := range c.order {
		snap.Agents = append(snap.Agents, c.agents[id].Clone())
	}
	for _, session := range c.sessions {
		snap.Sessions = append(snap.Sessions, session.Clone())
	}
	sort.Slice(snap.Sessions, func(i, j int) bool {
		return snap.Sessions[i].ID < snap.Sessions[j].ID
	})
	for service, cursor := range c.rrCursor {
		snap.Cursors[service] = cursor
	}
	return snap
}

// Restore replaces coordinator state with a snapshot, re-deriving pool
// membership and clamping loads into [0, MaxLoad] so the load
// invariants hold even against a snapshot taken by an older build.
func (c *Coordinator) Restore(snap *Snapshot) error {
	if snap == nil {
		return types.NewError(types.ErrValidation, "nil snapshot")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.agents = make(map[string]*types.Agent, len(snap.Agents))
	c.pools = make(map[types.Purpose][]*types.Agent)
	c.order = nil
	for _, agent := range snap.Agents {
		clone := agent.Clone()
		if clone.CurrentLoad < 0 {
			clone.CurrentLoad = 0
		}
		if clone.MaxLoad > 0 && clone.CurrentLoad > clone.MaxLoad {
			clone.CurrentLoad = clone.MaxLoad
		}
		c.agents[clone.ID] = clone
		c.order = append(c.order, clone.ID)
		c.pools[clone.Purpose] = append(c.pools[clone.Purpose], clone)
	}

	c.sessions = make(map[string]*types.Session, len(snap.Sessions))
	c.activeSessions = 0
	for _, session := range snap.Sessions {
		clone := session.Clone()
		c.sessions[clone.ID] = clone
		if clone.Active() {
			c.activeSessions++
		}
	}

	c.rrCursor = make(map[string]int, len(snap.Cursors))
	for service, cursor := range snap.Cursors {
		c.rrCursor[service] = cursor
	}

	c.logger.Info("state restored from snapshot",
		zap.Int("agents", len(c.agents)),
		zap.Int("sessions", len(c.sessions)),
		zap.Time("taken_at", snap.TakenAt),
	)

	c.updateGaugesLocked()
	return nil
}

// updateGaugesLocked refreshes metric gauges; callers hold the lock.
func (c *Coordinator) updateGaugesLocked() {
	if c.collector == nil {
		return
	}
	c.collector.SetActiveAgents(len(c.agents))
	c.collector.SetActiveSessions(c.activeSessions)
}
