package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shorelinehq/dispatch/geo"
	"github.com/shorelinehq/dispatch/types"
)

// Priority expresses request urgency; it selects the default routing
// strategy when none is set explicitly.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Strategy is a routing policy for choosing among eligible agents.
type Strategy string

const (
	// StrategyLeastLoad picks the agent with the fewest active sessions.
	StrategyLeastLoad Strategy = "least-load"
	// StrategyNearestLocation picks the closest located agent; agents
	// without a location are considered only when none have one.
	StrategyNearestLocation Strategy = "nearest-location"
	// StrategyHighestRating picks the best performance score.
	StrategyHighestRating Strategy = "highest-rating"
	// StrategyRoundRobin cycles a per-service cursor over the eligible
	// set.
	StrategyRoundRobin Strategy = "round-robin"
)

func validStrategy(s Strategy) bool {
	switch s {
	case StrategyLeastLoad, StrategyNearestLocation, StrategyHighestRating, StrategyRoundRobin:
		return true
	}
	return false
}

// ServiceRequest is an inbound request for an agent.
type ServiceRequest struct {
	// Service is the capability being requested.
	Service string

	// Location, when set, enables location-aware strategies.
	Location *types.GeoPoint

	// Priority defaults to normal. Urgent requests route by rating.
	Priority Priority

	// Strategy overrides the priority-derived policy when set.
	Strategy Strategy

	Context map[string]string
}

// RouteRequest selects an agent for the request. Eligible agents have
// the requested service in their capability set (or as their purpose),
// are active, and have spare load. When no agent qualifies a new one is
// spawned, so dispatch never fails for lack of availability unless a
// spawn quota is configured. The selected agent's load is incremented.
func (c *Coordinator) RouteRequest(ctx context.Context, req ServiceRequest) (*types.Agent, error) {
	start := time.Now()

	if req.Service == "" {
		return nil, types.NewError(types.ErrValidation, "service is empty")
	}
	if req.Strategy != "" && !validStrategy(req.Strategy) {
		return nil, types.NewErrorf(types.ErrValidation, "unknown routing strategy %q", req.Strategy)
	}

	ctx, span := c.tracer.Start(ctx, "dispatch.RouteRequest",
		trace.WithAttributes(
			attribute.String("request.service", req.Service),
			attribute.String("request.priority", string(req.Priority)),
		))
	defer span.End()

	c.mu.Lock()
	agent, spawned, err := c.routeLocked(ctx, req, true, "")
	c.mu.Unlock()

	outcome := "assigned"
	switch {
	case err != nil:
		outcome = "rejected"
	case spawned:
		outcome = "spawned"
	}
	if c.collector != nil {
		strategy := req.Strategy
		if strategy == "" {
			strategy = defaultStrategy(req.Priority)
		}
		c.collector.RecordRouting(req.Service, string(strategy), outcome, time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("agent.id", agent.ID),
		attribute.Bool("agent.spawned", spawned),
	)

	return agent.Clone(), nil
}

// defaultStrategy derives the routing policy from request priority.
func defaultStrategy(priority Priority) Strategy {
	if priority == PriorityUrgent {
		return StrategyHighestRating
	}
	return StrategyLeastLoad
}

// routeLocked performs filtering, selection, and spawn-on-demand with
// the lock held. When charge is set the chosen agent's load is
// incremented; session migration passes charge=false because the
// subsequent handoff performs the increment. excludeID removes one
// agent from consideration, used to keep a decommissioning agent from
// receiving its own sessions back.
func (c *Coordinator) routeLocked(ctx context.Context, req ServiceRequest, charge bool, excludeID string) (*types.Agent, bool, error) {
	filtered := c.eligibleLocked(req.Service, excludeID)

	if len(filtered) == 0 {
		purpose := types.Purpose(req.Service)
		if quota := c.config.MaxAgentsPerPurpose; quota > 0 && len(c.pools[purpose]) >= quota {
			return nil, false, types.NewErrorf(types.ErrCapacityExhausted,
				"purpose %s at spawn quota %d with no available agents", purpose, quota)
		}

		c.logger.Info("no agents available, spawning",
			zap.String("service", req.Service),
		)
		agent, err := c.spawnLocked(ctx, purpose, req.Location)
		if err != nil {
			return nil, false, err
		}
		if charge {
			c.chargeLocked(agent)
		}
		return agent, true, nil
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = defaultStrategy(req.Priority)
	}

	selected := c.selectLocked(filtered, strategy, req.Location, req.Service)
	if charge {
		c.chargeLocked(selected)
	}
	return selected, false, nil
}

// eligibleLocked returns agents able to serve the service, in
// registration order: active, under max load, and either advertising
// the service as a capability or registered under it as a purpose.
func (c *Coordinator) eligibleLocked(service, excludeID string) []*types.Agent {
	var filtered []*types.Agent
	for _, id := range c.order {
		if id == excludeID {
			continue
		}
		agent := c.agents[id]
		if !agent.Available() {
			continue
		}
		if agent.HasCapability(service) || string(agent.Purpose) == service {
			filtered = append(filtered, agent)
		}
	}
	return filtered
}

// selectLocked applies the routing strategy to a non-empty candidate set.
func (c *Coordinator) selectLocked(agents []*types.Agent, strategy Strategy, location *types.GeoPoint, service string) *types.Agent {
	switch strategy {
	case StrategyLeastLoad:
		best := agents[0]
		for _, agent := range agents[1:] {
			if agent.CurrentLoad < best.CurrentLoad {
				best = agent
			}
		}
		return best

	case StrategyNearestLocation:
		if location == nil {
			return agents[0]
		}
		return nearestAgent(agents, *location)

	case StrategyHighestRating:
		best := agents[0]
		for _, agent := range agents[1:] {
			if agent.PerformanceScore > best.PerformanceScore {
				best = agent
			}
		}
		return best

	case StrategyRoundRobin:
		cursor := c.rrCursor[service]
		c.rrCursor[service] = cursor + 1
		return agents[cursor%len(agents)]
	}

	return agents[0]
}

// nearestAgent picks the located agent closest to the customer. When
// no candidate has a location the first one wins.
func nearestAgent(agents []*types.Agent, location types.GeoPoint) *types.Agent {
	var nearest *types.Agent
	var nearestDistance float64

	for _, agent := range agents {
		if agent.Location == nil {
			continue
		}
		d := geo.Distance(location, *agent.Location)
		if nearest == nil || d < nearestDistance {
			nearest = agent
			nearestDistance = d
		}
	}

	if nearest == nil {
		return agents[0]
	}
	return nearest
}

// chargeLocked increments the agent's load for a new assignment.
func (c *Coordinator) chargeLocked(agent *types.Agent) {
	agent.CurrentLoad++
	agent.LastActivity = c.now()
}
