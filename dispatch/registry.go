package dispatch

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shorelinehq/dispatch/types"
)

// AgentOptions carries optional registration parameters.
type AgentOptions struct {
	// Role is a human-readable label; defaults to the purpose string.
	Role string

	// MaxLoad caps concurrent sessions; defaults to the coordinator's
	// DefaultMaxLoad.
	MaxLoad int

	Location    *types.GeoPoint
	ServiceArea *types.GeoFence
	Metadata    map[string]string
}

// RegisterAgent creates or overwrites an agent record and appends it to
// its purpose pool. The identity comes from the external identity
// layer; the coordinator treats it as opaque.
func (c *Coordinator) RegisterAgent(ctx context.Context, id types.Identity, purpose types.Purpose, capabilities []string, opts *AgentOptions) (*types.Agent, error) {
	if id.Address == "" {
		return nil, types.NewError(types.ErrValidation, "identity address is empty")
	}
	if purpose == "" {
		return nil, types.NewError(types.ErrValidation, "purpose is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	agent := c.registerLocked(id, purpose, capabilities, opts)
	return agent.Clone(), nil
}

// registerLocked performs registration with the lock held.
func (c *Coordinator) registerLocked(id types.Identity, purpose types.Purpose, capabilities []string, opts *AgentOptions) *types.Agent {
	if opts == nil {
		opts = &AgentOptions{}
	}

	role := opts.Role
	if role == "" {
		role = string(purpose)
	}
	maxLoad := opts.MaxLoad
	if maxLoad <= 0 {
		maxLoad = c.config.DefaultMaxLoad
	}

	agent := &types.Agent{
		ID:               id.Address,
		Identity:         id,
		Purpose:          purpose,
		Role:             role,
		Capabilities:     types.NormalizeCapabilities(capabilities),
		Status:           types.AgentStatusActive,
		CurrentLoad:      0,
		MaxLoad:          maxLoad,
		Location:         opts.Location,
		ServiceArea:      opts.ServiceArea,
		PerformanceScore: 100,
		LastActivity:     c.now(),
		Metadata:         opts.Metadata,
	}

	// Re-registration overwrites the record in place: drop the old
	// entry from its pool but keep the registration-order position.
	if previous, exists := c.agents[agent.ID]; exists {
		c.removeFromPoolLocked(previous)
	} else {
		c.order = append(c.order, agent.ID)
	}

	c.agents[agent.ID] = agent
	c.pools[purpose] = append(c.pools[purpose], agent)

	c.logger.Info("agent registered",
		zap.String("agent_id", agent.ID),
		zap.String("purpose", string(purpose)),
		zap.Strings("capabilities", agent.Capabilities),
	)
	if c.collector != nil {
		c.collector.RecordRegistration(string(purpose))
	}
	c.updateGaugesLocked()

	c.events.Publish(&Event{Type: EventAgentRegistered, AgentID: agent.ID})

	return agent
}

// SpawnAgent mints a fresh identity and registers a new agent for the
// purpose. The mint is awaited before the agent is considered live.
func (c *Coordinator) SpawnAgent(ctx context.Context, purpose types.Purpose, location *types.GeoPoint) (*types.Agent, error) {
	id, err := c.minter.Mint(ctx, purpose)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	agent := c.spawnRegisteredLocked(id, purpose, location)
	return agent.Clone(), nil
}

// spawnLocked mints and registers with the lock held. Minting is the
// only blocking call made under the lock; the single-coordinator model
// requires spawn and assignment to be one linearizable step.
func (c *Coordinator) spawnLocked(ctx context.Context, purpose types.Purpose, location *types.GeoPoint) (*types.Agent, error) {
	id, err := c.minter.Mint(ctx, purpose)
	if err != nil {
		return nil, err
	}
	return c.spawnRegisteredLocked(id, purpose, location), nil
}

func (c *Coordinator) spawnRegisteredLocked(id types.Identity, purpose types.Purpose, location *types.GeoPoint) *types.Agent {
	c.logger.Info("spawning agent on demand", zap.String("purpose", string(purpose)))
	if c.collector != nil {
		c.collector.RecordSpawn(string(purpose))
	}

	return c.registerLocked(id, purpose, DefaultCapabilities(purpose), &AgentOptions{
		Location: location,
		Role:     "Dynamic " + string(purpose) + " agent",
	})
}

// defaultCapabilityTable maps well-known purpose categories to their
// default capability sets for spawned agents.
var defaultCapabilityTable = map[types.Purpose][]string{
	types.PurposeSales:       {"product-presentation", "negotiation", "closing"},
	types.PurposeSupport:     {"troubleshooting", "refunds", "escalation"},
	types.PurposeConcierge:   {"booking", "recommendations", "coordination"},
	types.PurposeDevelopment: {"code-generation", "testing", "deployment"},
	types.PurposeAnalytics:   {"data-collection", "reporting", "insights"},
}

// DefaultCapabilities returns the capability set for a spawned agent of
// the given purpose. Purposes are matched by category substring, so
// "sales-west" inherits the sales capabilities; anything unmatched
// falls back to general assistance.
func DefaultCapabilities(purpose types.Purpose) []string {
	lowered := strings.ToLower(string(purpose))
	for category, capabilities := range defaultCapabilityTable {
		if strings.Contains(lowered, string(category)) {
			return append([]string(nil), capabilities...)
		}
	}
	return []string{"general-assistance"}
}

// DecommissionAgent gracefully retires an agent: active sessions are
// migrated to other agents first, then the record is removed from the
// registry and its pool. Unknown agents are a logged no-op.
func (c *Coordinator) DecommissionAgent(ctx context.Context, agentID string) error {
	ctx, span := c.tracer.Start(ctx, "dispatch.DecommissionAgent",
		trace.WithAttributes(attribute.String("agent.id", agentID)))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	agent, exists := c.agents[agentID]
	if !exists {
		c.logger.Warn("agent not found for decommission", zap.String("agent_id", agentID))
		return nil
	}

	if agent.CurrentLoad > 0 {
		c.migrateSessionsLocked(ctx, agentID)
	}

	agent.Status = types.AgentStatusDecommissioned
	delete(c.agents, agentID)
	c.removeFromPoolLocked(agent)
	for i, id := range c.order {
		if id == agentID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}

	c.logger.Info("agent decommissioned", zap.String("agent_id", agentID))
	if c.collector != nil {
		c.collector.RecordDecommission()
	}
	c.updateGaugesLocked()

	c.events.Publish(&Event{Type: EventAgentDecommissioned, AgentID: agentID})
	return nil
}

// removeFromPoolLocked drops the agent from its purpose pool.
func (c *Coordinator) removeFromPoolLocked(agent *types.Agent) {
	pool := c.pools[agent.Purpose]
	for i, a := range pool {
		if a.ID == agent.ID {
			c.pools[agent.Purpose] = append(pool[:i], pool[i+1:]...)
			break
		}
	}
	if len(c.pools[agent.Purpose]) == 0 {
		delete(c.pools, agent.Purpose)
	}
}

// UpdatePerformanceScore sets an agent's rating, clamped to [0, 100].
// Unknown agents are a logged no-op.
func (c *Coordinator) UpdatePerformanceScore(ctx context.Context, agentID string, score float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	agent, exists := c.agents[agentID]
	if !exists {
		c.logger.Warn("agent not found for performance update", zap.String("agent_id", agentID))
		return nil
	}

	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}
	agent.PerformanceScore = score

	c.events.Publish(&Event{Type: EventAgentPerformanceUpdated, AgentID: agentID})
	return nil
}

// GetAgent returns a copy of the agent, or a NOT_FOUND error.
func (c *Coordinator) GetAgent(agentID string) (*types.Agent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	agent, exists := c.agents[agentID]
	if !exists {
		return nil, types.NewErrorf(types.ErrNotFound, "agent %s not found", agentID)
	}
	return agent.Clone(), nil
}

// GetAgents returns copies of all registered agents in registration order.
func (c *Coordinator) GetAgents() []*types.Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	agents := make([]*types.Agent, 0, len(c.agents))
	for _, id := range c.order {
		agents = append(agents, c.agents[id].Clone())
	}
	return agents
}

// GetAgentsByPurpose returns copies of the agents in a purpose pool.
func (c *Coordinator) GetAgentsByPurpose(purpose types.Purpose) []*types.Agent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pool := c.pools[purpose]
	agents := make([]*types.Agent, 0, len(pool))
	for _, agent := range pool {
		agents = append(agents, agent.Clone())
	}
	return agents
}
