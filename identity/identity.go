// Package identity is the boundary to the external identity layer.
// The dispatch core consumes identities as opaque address/public-key
// pairs; minting new ones for spawned agents is the only blocking call
// in the core, so it is isolated behind the Minter interface and
// guarded by a circuit breaker.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/shorelinehq/dispatch/types"
)

// Minter mints a fresh identity for an agent being spawned on demand.
// Implementations must be safe for concurrent use. Registration waits
// for Mint to return before the agent is considered live.
type Minter interface {
	Mint(ctx context.Context, purpose types.Purpose) (types.Identity, error)
}

// LocalMinter generates identities locally from random bytes. It stands
// in for the production identity service in tests and single-node
// deployments.
type LocalMinter struct{}

// NewLocalMinter creates a local identity minter.
func NewLocalMinter() *LocalMinter {
	return &LocalMinter{}
}

// Mint returns a random 20-byte address and 65-byte public key, both
// hex-encoded with the conventional prefixes.
func (m *LocalMinter) Mint(_ context.Context, _ types.Purpose) (types.Identity, error) {
	addr := make([]byte, 20)
	if _, err := rand.Read(addr); err != nil {
		return types.Identity{}, types.NewError(types.ErrIdentityUnavailable, "entropy read failed").WithCause(err)
	}
	key := make([]byte, 64)
	if _, err := rand.Read(key); err != nil {
		return types.Identity{}, types.NewError(types.ErrIdentityUnavailable, "entropy read failed").WithCause(err)
	}
	return types.Identity{
		Address:   "0x" + hex.EncodeToString(addr),
		PublicKey: "0x04" + hex.EncodeToString(key),
	}, nil
}

// Default circuit breaker settings.
const (
	defaultMaxFailures uint32        = 5
	defaultTimeout     time.Duration = 30 * time.Second
	defaultInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the minting circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the
	// circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning
	// to half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing
	// failure counts. If 0, failures never reset until the circuit opens.
	Interval time.Duration `yaml:"interval"`
}

// BreakerMinter wraps a Minter with circuit breaker protection. When
// the identity layer fails repeatedly, the circuit opens and spawn
// attempts fail fast instead of piling up on a dead dependency.
type BreakerMinter struct {
	inner   Minter
	breaker *gobreaker.CircuitBreaker[types.Identity]
	logger  *zap.Logger
}

// NewBreakerMinter wraps inner with a circuit breaker. Zero-valued
// config fields fall back to defaults.
func NewBreakerMinter(inner Minter, cfg BreakerConfig, logger *zap.Logger) *BreakerMinter {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "identity_minter"))

	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultInterval
	}

	cb := gobreaker.NewCircuitBreaker[types.Identity](gobreaker.Settings{
		Name:        "identity-minter",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &BreakerMinter{inner: inner, breaker: cb, logger: logger}
}

// Mint delegates to the wrapped minter through the breaker.
func (m *BreakerMinter) Mint(ctx context.Context, purpose types.Purpose) (types.Identity, error) {
	id, err := m.breaker.Execute(func() (types.Identity, error) {
		return m.inner.Mint(ctx, purpose)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return types.Identity{}, types.NewError(types.ErrIdentityUnavailable, "identity minter circuit open").WithCause(err)
		}
		return types.Identity{}, err
	}
	return id, nil
}
