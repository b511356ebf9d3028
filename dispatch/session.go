package dispatch

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/shorelinehq/dispatch/types"
)

// CreateSession opens a session binding a customer to an agent chosen
// by RouteRequest. Routing already charged the agent's load; creating
// the session attaches that charge to a concrete session record.
func (c *Coordinator) CreateSession(ctx context.Context, customerID, agentID, service string) (*types.Session, error) {
	if customerID == "" {
		return nil, types.NewError(types.ErrValidation, "customer id is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	agent, exists := c.agents[agentID]
	if !exists {
		return nil, types.NewErrorf(types.ErrNotFound, "agent %s not found", agentID)
	}

	session := &types.Session{
		ID:         c.newID(),
		CustomerID: customerID,
		AgentID:    agentID,
		Service:    service,
		StartTime:  c.now(),
		Status:     types.SessionStatusActive,
		Context:    make(map[string]string),
	}

	c.sessions[session.ID] = session
	c.activeSessions++
	agent.SessionsHandled++

	c.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("customer_id", customerID),
		zap.String("agent_id", agentID),
	)
	if c.collector != nil {
		c.collector.RecordSessionCreated()
	}
	c.updateGaugesLocked()

	c.events.Publish(&Event{Type: EventSessionCreated, SessionID: session.ID, AgentID: agentID})

	return session.Clone(), nil
}

// HandoffSession reassigns an active session from one agent to another
// without ending it. The source agent's load drops (floored at zero)
// and the target's rises, so exactly one agent keeps accounting for the
// session. An unknown or non-active session is a logged no-op.
func (c *Coordinator) HandoffSession(ctx context.Context, sessionID, fromAgentID, toAgentID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, exists := c.sessions[sessionID]
	if !exists {
		c.logger.Warn("session not found for handoff", zap.String("session_id", sessionID))
		return nil
	}
	if !session.Active() {
		c.logger.Warn("handoff of non-active session ignored",
			zap.String("session_id", sessionID),
			zap.String("status", string(session.Status)),
		)
		return nil
	}

	c.handoffLocked(session, fromAgentID, toAgentID, reason)
	return nil
}

// handoffLocked moves session ownership and rebalances load counters.
func (c *Coordinator) handoffLocked(session *types.Session, fromAgentID, toAgentID, reason string) {
	now := c.now()
	session.PreviousAgent = fromAgentID
	session.AgentID = toAgentID
	session.HandoffReason = reason
	session.HandoffTime = &now

	if from, ok := c.agents[fromAgentID]; ok {
		if from.CurrentLoad > 0 {
			from.CurrentLoad--
		}
	} else {
		c.logger.Warn("handoff source agent unknown", zap.String("agent_id", fromAgentID))
	}

	if to, ok := c.agents[toAgentID]; ok {
		to.CurrentLoad++
		to.LastActivity = now
		to.SessionsHandled++
	} else {
		c.logger.Warn("handoff target agent unknown", zap.String("agent_id", toAgentID))
	}

	c.logger.Info("session handed off",
		zap.String("session_id", session.ID),
		zap.String("from", fromAgentID),
		zap.String("to", toAgentID),
		zap.String("reason", reason),
	)
	if c.collector != nil {
		c.collector.RecordHandoff(reason)
	}

	c.events.Publish(&Event{
		Type:      EventSessionHandoff,
		SessionID: session.ID,
		AgentID:   toAgentID,
		Reason:    reason,
	})
}

// migrateSessionsLocked re-routes every active session off an agent
// being decommissioned. Replacement routing runs at high priority and
// may spawn; the route does not charge load because the handoff does.
func (c *Coordinator) migrateSessionsLocked(ctx context.Context, fromAgentID string) {
	var toMigrate []*types.Session
	for _, session := range c.sessions {
		if session.AgentID == fromAgentID && session.Active() {
			toMigrate = append(toMigrate, session)
		}
	}
	// Session ids are time-ordered ULIDs; migrate oldest first.
	sort.Slice(toMigrate, func(i, j int) bool { return toMigrate[i].ID < toMigrate[j].ID })

	c.logger.Info("migrating sessions",
		zap.Int("count", len(toMigrate)),
		zap.String("from", fromAgentID),
	)

	for _, session := range toMigrate {
		target, _, err := c.routeLocked(ctx, ServiceRequest{
			Service:  session.Service,
			Priority: PriorityHigh,
		}, false, fromAgentID)
		if err != nil {
			c.logger.Error("session migration failed, session stays on agent",
				zap.String("session_id", session.ID),
				zap.Error(err),
			)
			continue
		}
		c.handoffLocked(session, fromAgentID, target.ID, "agent-decommission")
	}
}

// CompleteSession ends a session normally and releases its load charge.
// Unknown or non-active sessions are a logged no-op.
func (c *Coordinator) CompleteSession(ctx context.Context, sessionID string) error {
	return c.endSession(sessionID, types.SessionStatusCompleted)
}

// AbandonSession marks a session abandoned by the customer and releases
// its load charge. Unknown or non-active sessions are a logged no-op.
func (c *Coordinator) AbandonSession(ctx context.Context, sessionID string) error {
	return c.endSession(sessionID, types.SessionStatusAbandoned)
}

func (c *Coordinator) endSession(sessionID string, status types.SessionStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, exists := c.sessions[sessionID]
	if !exists {
		c.logger.Warn("session not found", zap.String("session_id", sessionID))
		return nil
	}
	if !session.Active() {
		// Already ended; ending twice must not decrement load again.
		c.logger.Warn("session already ended",
			zap.String("session_id", sessionID),
			zap.String("status", string(session.Status)),
		)
		return nil
	}

	now := c.now()
	session.Status = status
	session.EndTime = &now
	c.activeSessions--

	if agent, ok := c.agents[session.AgentID]; ok {
		if agent.CurrentLoad > 0 {
			agent.CurrentLoad--
		}
		if status == types.SessionStatusCompleted {
			agent.SessionsCompleted++
		}
	}

	eventType := EventSessionCompleted
	if status == types.SessionStatusAbandoned {
		eventType = EventSessionAbandoned
	}

	c.logger.Info("session ended",
		zap.String("session_id", sessionID),
		zap.String("status", string(status)),
	)
	if c.collector != nil {
		if status == types.SessionStatusCompleted {
			c.collector.RecordSessionCompleted()
		} else {
			c.collector.RecordSessionAbandoned()
		}
	}
	c.updateGaugesLocked()

	c.events.Publish(&Event{Type: eventType, SessionID: sessionID, AgentID: session.AgentID})
	return nil
}

// RecordTransaction appends a pending transaction to a session.
func (c *Coordinator) RecordTransaction(ctx context.Context, sessionID string, amount float64, currency string) (*types.Transaction, error) {
	if amount <= 0 {
		return nil, types.NewErrorf(types.ErrValidation, "non-positive amount %f", amount)
	}
	if currency == "" {
		return nil, types.NewError(types.ErrValidation, "currency is empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	session, exists := c.sessions[sessionID]
	if !exists {
		return nil, types.NewErrorf(types.ErrNotFound, "session %s not found", sessionID)
	}

	tx := types.Transaction{
		ID:        c.newID(),
		SessionID: sessionID,
		Amount:    amount,
		Currency:  currency,
		Status:    types.TransactionPending,
		Timestamp: c.now(),
	}
	session.Transactions = append(session.Transactions, tx)

	return &tx, nil
}

// SettleTransaction moves a pending transaction to completed or failed.
// Transactions are otherwise immutable.
func (c *Coordinator) SettleTransaction(ctx context.Context, sessionID, transactionID string, status types.TransactionStatus) error {
	if status != types.TransactionCompleted && status != types.TransactionFailed {
		return types.NewErrorf(types.ErrValidation, "invalid settlement status %q", status)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	session, exists := c.sessions[sessionID]
	if !exists {
		return types.NewErrorf(types.ErrNotFound, "session %s not found", sessionID)
	}

	for i := range session.Transactions {
		if session.Transactions[i].ID != transactionID {
			continue
		}
		if session.Transactions[i].Status != types.TransactionPending {
			return types.NewErrorf(types.ErrValidation,
				"transaction %s already settled as %s", transactionID, session.Transactions[i].Status)
		}
		session.Transactions[i].Status = status
		return nil
	}

	return types.NewErrorf(types.ErrNotFound, "transaction %s not found in session %s", transactionID, sessionID)
}

// GetSession returns a copy of a session, or a NOT_FOUND error.
func (c *Coordinator) GetSession(sessionID string) (*types.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	session, exists := c.sessions[sessionID]
	if !exists {
		return nil, types.NewErrorf(types.ErrNotFound, "session %s not found", sessionID)
	}
	return session.Clone(), nil
}

// GetActiveSessions returns copies of all active sessions ordered by
// creation (session ids are time-ordered).
func (c *Coordinator) GetActiveSessions() []*types.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var active []*types.Session
	for _, session := range c.sessions {
		if session.Active() {
			active = append(active, session.Clone())
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	return active
}

// GetLastCompletedSession returns a copy of the completed session with
// the greatest end time, or nil when none completed yet. Ties on end
// time resolve to any session achieving the maximum.
func (c *Coordinator) GetLastCompletedSession() *types.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var last *types.Session
	for _, session := range c.sessions {
		if session.Status != types.SessionStatusCompleted || session.EndTime == nil {
			continue
		}
		if last == nil || session.EndTime.After(*last.EndTime) {
			last = session
		}
	}
	return last.Clone()
}
