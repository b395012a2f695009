package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeEnvelope parses an X-Payment header value: base64-encoded JSON.
// Version and scheme are checked before the payload is interpreted, since
// the payload shape is scheme-specific.
func DecodeEnvelope(header string) (*Envelope, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrMalformedProof, err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedProof, err)
	}
	if env.X402Version != Version {
		return nil, fmt.Errorf("%w: unsupported x402Version %d", ErrMalformedProof, env.X402Version)
	}
	if env.Payload == nil {
		return nil, fmt.Errorf("%w: missing payload", ErrMalformedProof)
	}
	switch env.Scheme {
	case SchemeExact:
		if env.Payload.Signature == "" || env.Payload.Authorization == nil {
			return nil, fmt.Errorf("%w: exact scheme requires signature and authorization", ErrMalformedProof)
		}
	case SchemeOnchain:
		if env.Payload.Transaction == "" {
			return nil, fmt.Errorf("%w: onchain scheme requires transaction hash", ErrMalformedProof)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrMalformedProof, env.Scheme)
	}
	return &env, nil
}

// EncodeEnvelope renders an envelope into an X-Payment header value.
func EncodeEnvelope(env *Envelope) (string, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// ReplayID returns the identifier the replay guard tracks for an envelope:
// the transaction hash for on-chain proofs, the authorization nonce otherwise.
// Identifiers are lowercased so lookups are case-insensitive.
func (e *Envelope) ReplayID() string {
	if e.Scheme == SchemeOnchain {
		return strings.ToLower(e.Payload.Transaction)
	}
	return strings.ToLower(e.Payload.Authorization.Nonce)
}

// BuildChallenge renders the 402 body advertising a requirement.
func BuildChallenge(req *Requirement) *ChallengeBody {
	scheme := req.Scheme
	if scheme == "" {
		scheme = SchemeExact
	}
	extra := map[string]string{
		"recipient": req.Recipient.Hex(),
	}
	if req.AssetName != "" {
		extra["name"] = req.AssetName
	}
	if req.AssetVersion != "" {
		extra["version"] = req.AssetVersion
	}
	return &ChallengeBody{
		X402Version: Version,
		Error:       "Payment Required",
		Accepts: []AcceptsEntry{{
			Scheme:            scheme,
			Network:           req.Network,
			MaxAmountRequired: req.Amount.String(),
			PayTo:             req.PayTo.Hex(),
			Asset:             req.Asset.Hex(),
			Description:       req.Description,
			Extra:             extra,
		}},
	}
}

// ParseChallenge extracts the first usable accepted option from a 402 body.
func ParseChallenge(body []byte) (*AcceptsEntry, error) {
	var ch ChallengeBody
	if err := json.Unmarshal(body, &ch); err != nil {
		return nil, fmt.Errorf("parse 402 body: %w", err)
	}
	if len(ch.Accepts) == 0 {
		return nil, fmt.Errorf("402 response carries no accepts[] payment options")
	}
	first := ch.Accepts[0]
	if first.MaxAmountRequired == "" || first.PayTo == "" {
		return nil, fmt.Errorf("402 accepts[0] is missing maxAmountRequired or payTo")
	}
	return &first, nil
}

// EncodeSettlementReceipt renders a settlement result for the
// X-Payment-Response header.
func EncodeSettlementReceipt(res *SettlementResult) string {
	raw, err := json.Marshal(res)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(raw)
}
