package types

import (
	"strings"
	"time"
)

// Identity is an opaque agent identity minted by the external identity
// layer. The dispatch core never interprets it beyond using Address as
// the agent's registry key.
type Identity struct {
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
}

// Purpose is an agent's capability namespace. Well-known purposes have
// constants below; free-form values are accepted for dynamic pools.
type Purpose string

const (
	PurposeSales       Purpose = "sales"
	PurposeSupport     Purpose = "support"
	PurposeConcierge   Purpose = "concierge"
	PurposeDevelopment Purpose = "development"
	PurposeAnalytics   Purpose = "analytics"
)

// GeoServicePurpose returns the purpose used for agents backing a
// geo-fenced service listing of the given category.
func GeoServicePurpose(category string) Purpose {
	return Purpose("geo-service-" + category)
}

// AgentStatus represents the lifecycle status of an agent.
type AgentStatus string

const (
	// AgentStatusActive indicates the agent is serving requests.
	AgentStatusActive AgentStatus = "active"
	// AgentStatusPaused indicates the agent is temporarily not accepting work.
	AgentStatusPaused AgentStatus = "paused"
	// AgentStatusIdle indicates the agent is registered but dormant.
	AgentStatusIdle AgentStatus = "idle"
	// AgentStatusDecommissioned indicates the agent has been retired.
	AgentStatusDecommissioned AgentStatus = "decommissioned"
)

// Agent is a registered worker able to serve one or more request
// purposes. CurrentLoad counts the active sessions charged to it and
// satisfies 0 <= CurrentLoad <= MaxLoad while the agent is active.
type Agent struct {
	// ID is the identity address; it doubles as the registry key.
	ID       string   `json:"id"`
	Identity Identity `json:"identity"`

	Purpose Purpose `json:"purpose"`

	// Role is a human-readable label for the purpose.
	Role string `json:"role,omitempty"`

	// Capabilities is the validated set of services this agent can handle.
	Capabilities []string `json:"capabilities"`

	Status      AgentStatus `json:"status"`
	CurrentLoad int         `json:"current_load"`
	MaxLoad     int         `json:"max_load"`

	Location    *GeoPoint `json:"location,omitempty"`
	ServiceArea *GeoFence `json:"service_area,omitempty"`

	// PerformanceScore is a 0..100 rating used by the highest-rating
	// routing strategy.
	PerformanceScore float64 `json:"performance_score"`

	LastActivity time.Time `json:"last_activity"`

	Metadata map[string]string `json:"metadata,omitempty"`

	// SessionsHandled counts sessions ever assigned to this agent,
	// including ones received via handoff.
	SessionsHandled int64 `json:"sessions_handled"`
	// SessionsCompleted counts sessions that finished while owned by
	// this agent.
	SessionsCompleted int64 `json:"sessions_completed"`
}

// HasCapability reports whether the agent's capability set contains the
// given service.
func (a *Agent) HasCapability(service string) bool {
	for _, c := range a.Capabilities {
		if c == service {
			return true
		}
	}
	return false
}

// Available reports whether the agent can accept another session.
func (a *Agent) Available() bool {
	return a.Status == AgentStatusActive && a.CurrentLoad < a.MaxLoad
}

// Clone returns a deep copy of the agent.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Capabilities != nil {
		clone.Capabilities = append([]string(nil), a.Capabilities...)
	}
	if a.Location != nil {
		loc := *a.Location
		clone.Location = &loc
	}
	if a.ServiceArea != nil {
		area := *a.ServiceArea
		if a.ServiceArea.Center != nil {
			center := *a.ServiceArea.Center
			area.Center = &center
		}
		if a.ServiceArea.Points != nil {
			area.Points = append([]GeoPoint(nil), a.ServiceArea.Points...)
		}
		clone.ServiceArea = &area
	}
	if a.Metadata != nil {
		clone.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			clone.Metadata[k] = v
		}
	}
	return &clone
}

// NormalizeCapabilities trims and deduplicates a capability set,
// dropping empty entries. Order of first appearance is preserved.
func NormalizeCapabilities(capabilities []string) []string {
	seen := make(map[string]struct{}, len(capabilities))
	out := make([]string, 0, len(capabilities))
	for _, c := range capabilities {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
