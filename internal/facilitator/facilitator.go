// Package facilitator defines the verify-and-settle boundary the payment
// gate depends on, with two interchangeable backends: a remote facilitator
// service and direct on-chain verification.
package facilitator

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openclaw/x402gate/internal/x402"
)

// Expectation pins what the route demands so a backend cannot be tricked
// into accepting a weaker payment: amount is a floor, recipient must match.
type Expectation struct {
	PayTo     common.Address
	Recipient common.Address
	Amount    *big.Int // smallest units
	Token     string
	Network   string
}

// Proof carries both the raw X-Payment header (forwarded verbatim to remote
// facilitators) and its decoded envelope.
type Proof struct {
	Header   string
	Envelope *x402.Envelope
}

// Facilitator validates a payment proof against an expectation and executes
// settlement. Implementations must be idempotent per authorization nonce or
// transaction hash: repeated calls with the same proof settle at most once.
// A non-settled result with a reason is a normal rejection; an error means
// the backend itself was unreachable or misbehaving.
type Facilitator interface {
	VerifyAndSettle(ctx context.Context, proof *Proof, expect Expectation) (*x402.SettlementResult, error)
}

// ReplayConsumer is implemented by backends that consume replay identifiers
// themselves as part of settlement. Exactly one layer may own the mark for a
// given id: when a backend reports true here, the caller must not mark the
// id again, or the backend's own mark would make every first settlement look
// like a replay to the caller.
type ReplayConsumer interface {
	ConsumesReplayIDs() bool
}
