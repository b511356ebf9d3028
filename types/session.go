package types

import "time"

// SessionStatus represents the lifecycle status of a session.
type SessionStatus string

const (
	// SessionStatusActive indicates the session is owned by an agent.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusCompleted indicates the session finished normally.
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusAbandoned indicates the customer walked away.
	SessionStatusAbandoned SessionStatus = "abandoned"
)

// TransactionStatus represents the settlement status of a transaction.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is an append-only monetary record attached to a session.
// Once created it is immutable except for the pending -> completed and
// pending -> failed transitions.
type Transaction struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Amount    float64           `json:"amount"`
	Currency  string            `json:"currency"`
	Status    TransactionStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
}

// Session is a bounded interaction between a customer and the agent
// currently assigned to it. While active, exactly one agent's
// CurrentLoad accounts for this session. Sessions are never physically
// deleted; completion and abandonment only change status.
type Session struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`

	// AgentID is the current owner; it changes on handoff.
	AgentID string `json:"agent_id"`

	Service   string        `json:"service"`
	StartTime time.Time     `json:"start_time"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Status    SessionStatus `json:"status"`

	Context map[string]string `json:"context,omitempty"`

	// Transactions is append-only and ordered by creation.
	Transactions []Transaction `json:"transactions,omitempty"`

	// Handoff trail. PreviousAgent is the owner before the most recent
	// handoff; the full chain is recoverable from emitted events.
	PreviousAgent string     `json:"previous_agent,omitempty"`
	HandoffReason string     `json:"handoff_reason,omitempty"`
	HandoffTime   *time.Time `json:"handoff_time,omitempty"`
}

// Active reports whether the session still charges an agent's load.
func (s *Session) Active() bool {
	return s.Status == SessionStatusActive
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if s.EndTime != nil {
		end := *s.EndTime
		clone.EndTime = &end
	}
	if s.HandoffTime != nil {
		ht := *s.HandoffTime
		clone.HandoffTime = &ht
	}
	if s.Context != nil {
		clone.Context = make(map[string]string, len(s.Context))
		for k, v := range s.Context {
			clone.Context[k] = v
		}
	}
	if s.Transactions != nil {
		clone.Transactions = append([]Transaction(nil), s.Transactions...)
	}
	return &clone
}
