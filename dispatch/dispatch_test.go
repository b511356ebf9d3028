package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/shorelinehq/dispatch/types"
)

// seqMinter mints deterministic identities for tests.
type seqMinter struct {
	mu  sync.Mutex
	n   int
	err error
}

func (m *seqMinter) Mint(_ context.Context, _ types.Purpose) (types.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return types.Identity{}, m.err
	}
	m.n++
	return types.Identity{
		Address:   fmt.Sprintf("0xspawn%03d", m.n),
		PublicKey: fmt.Sprintf("0x04spawn%03d", m.n),
	}, nil
}

func newTestCoordinator(config *Config) *Coordinator {
	return NewCoordinator(config, &seqMinter{}, zap.NewNop())
}

func ident(address string) types.Identity {
	return types.Identity{Address: address, PublicKey: "0x04" + address}
}

// sumLoad totals current load across the registry.
func sumLoad(c *Coordinator) int {
	total := 0
	for _, agent := range c.GetAgents() {
		total += agent.CurrentLoad
	}
	return total
}
