package x402

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Payment schemes carried in the X-Payment envelope.
const (
	// SchemeExact is a signed EIP-3009 authorization for the exact amount.
	SchemeExact = "exact"
	// SchemeOnchain is a proof referencing an already-executed transfer by
	// transaction hash, verified directly against the chain.
	SchemeOnchain = "onchain"
)

// Header names on the wire.
const (
	HeaderPayment         = "X-Payment"
	HeaderPaymentResponse = "X-Payment-Response"
)

// Version is the x402 protocol version this gate speaks.
const Version = 1

// Requirement describes what a protected route demands. Amount is in the
// asset's smallest units; a zero (or nil) amount marks the route free.
type Requirement struct {
	Amount       *big.Int
	Token        string // symbol, e.g. "USDC"
	Network      string // CAIP-2, e.g. "eip155:8453"
	Asset        common.Address
	AssetName    string // EIP-712 domain name, e.g. "USD Coin"
	AssetVersion string // EIP-712 domain version, e.g. "2"
	PayTo        common.Address // sign-to address; may be an intermediate relay
	Recipient    common.Address // final recipient, disclosed via extra
	Scheme       string         // defaults to SchemeExact
	Description  string
}

// Free reports whether the route needs no payment at all.
func (r *Requirement) Free() bool {
	return r == nil || r.Amount == nil || r.Amount.Sign() == 0
}

// AcceptsEntry is one accepted payment option in a 402 challenge body.
// MaxAmountRequired is the smallest-unit amount as a decimal string.
type AcceptsEntry struct {
	Scheme            string            `json:"scheme"`
	Network           string            `json:"network"`
	MaxAmountRequired string            `json:"maxAmountRequired"`
	PayTo             string            `json:"payTo"`
	Asset             string            `json:"asset"`
	Description       string            `json:"description,omitempty"`
	Extra             map[string]string `json:"extra,omitempty"`
}

// ChallengeBody is the JSON body of a 402 Payment Required response. It is
// the complete contract the payer needs to construct a valid authorization.
type ChallengeBody struct {
	X402Version int            `json:"x402Version"`
	Error       string         `json:"error"`
	Reason      string         `json:"reason,omitempty"`
	Accepts     []AcceptsEntry `json:"accepts,omitempty"`
}

// Envelope is the decoded X-Payment header.
type Envelope struct {
	X402Version int      `json:"x402Version"`
	Scheme      string   `json:"scheme"`
	Network     string   `json:"network"`
	Payload     *Payload `json:"payload"`
}

// Payload is the scheme-specific proof. SchemeExact carries a signature plus
// authorization; SchemeOnchain carries the settled transaction hash.
type Payload struct {
	Signature     string             `json:"signature,omitempty"`
	Authorization *WireAuthorization `json:"authorization,omitempty"`
	Transaction   string             `json:"transaction,omitempty"`
}

// WireAuthorization is the JSON form of an EIP-3009 authorization.
// Numeric fields are decimal strings, nonce is 0x-prefixed 32-byte hex.
type WireAuthorization struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	ValidAfter  string `json:"validAfter"`
	ValidBefore string `json:"validBefore"`
	Nonce       string `json:"nonce"`
}

// SettlementResult is the outcome of a verify-and-settle call.
type SettlementResult struct {
	Settled     bool   `json:"settled"`
	TxHash      string `json:"txHash,omitempty"`
	Facilitator string `json:"facilitator,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Payer       string `json:"payer,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
