// Package client makes the x402 challenge/response cycle transparent to a
// caller that just wants "fetch this URL, pay if asked".
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/openclaw/x402gate/internal/authz"
	"github.com/openclaw/x402gate/internal/keys"
	"github.com/openclaw/x402gate/internal/x402"
)

// Authorization validity window: generous skew tolerance into the past and a
// short forward window to keep the replay surface narrow.
const (
	validAfterSkew   = 10 * time.Minute
	validBeforeLimit = 5 * time.Minute
)

// Policy is the caller's willingness to pay and how to sign for it.
type Policy struct {
	// MaxAmount is the payment ceiling in decimal units ("2.50"). Empty
	// means refuse to pay anything.
	MaxAmount string
	Decimals  int // asset decimals, 0 means USDC's 6

	// Key resolution, in order: PrivateKey (hex), then the environment,
	// then the encrypted keystore unlocked with Passphrase.
	PrivateKey   string
	KeystorePath string
	Passphrase   string

	// Timeout bounds each HTTP round-trip. Zero means 30s.
	Timeout time.Duration
}

// Client performs x402-aware HTTP requests.
type Client struct {
	policy Policy
	http   *http.Client
	log    *zap.Logger
}

func New(policy Policy, log *zap.Logger) *Client {
	if policy.Decimals == 0 {
		policy.Decimals = x402.USDCDecimals
	}
	timeout := policy.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		policy: policy,
		http:   &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Fetch issues the request and, if the server answers 402, signs the
// advertised requirement and retries once with the payment attached.
// Non-402 responses pass through untouched; every payment failure is a
// terminal error. Network errors propagate as-is.
func (c *Client) Fetch(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, error) {
	resp, err := c.do(ctx, method, url, header, body, "")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	challenge, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read 402 body: %w", err)
	}
	accept, err := x402.ParseChallenge(challenge)
	if err != nil {
		return nil, err
	}

	paymentHeader, err := c.signPayment(accept)
	if err != nil {
		return nil, err
	}

	paid, err := c.do(ctx, method, url, header, body, paymentHeader)
	if err != nil {
		return nil, err
	}
	if paid.StatusCode == http.StatusPaymentRequired {
		rejected, _ := io.ReadAll(paid.Body)
		paid.Body.Close()
		return nil, fmt.Errorf("%w: %s", x402.ErrPaymentRejected, bytes.TrimSpace(rejected))
	}
	return paid, nil
}

// signPayment enforces the budget ceiling, resolves the signing key, and
// builds the X-Payment header for the accepted requirement.
func (c *Client) signPayment(accept *x402.AcceptsEntry) (string, error) {
	required, ok := new(big.Int).SetString(accept.MaxAmountRequired, 10)
	if !ok || required.Sign() < 0 {
		return "", fmt.Errorf("invalid maxAmountRequired %q", accept.MaxAmountRequired)
	}

	// Hard safety boundary: checked before any key is touched.
	if c.policy.MaxAmount == "" {
		return "", fmt.Errorf("%w: no maxAmount configured", x402.ErrBudgetExceeded)
	}
	ceiling, err := x402.ParseUnits(c.policy.MaxAmount, c.policy.Decimals)
	if err != nil {
		return "", fmt.Errorf("invalid maxAmount %q: %w", c.policy.MaxAmount, err)
	}
	if required.Cmp(ceiling) > 0 {
		return "", fmt.Errorf("%w: requires %s but ceiling is %s", x402.ErrBudgetExceeded,
			x402.FormatUnits(required, c.policy.Decimals), c.policy.MaxAmount)
	}

	privKey, err := keys.Resolve(c.policy.PrivateKey, c.policy.KeystorePath, c.policy.Passphrase)
	if err != nil {
		return "", fmt.Errorf("%w: %v", x402.ErrSigningFailure, err)
	}

	chainID, err := x402.ChainID(accept.Network)
	if err != nil {
		return "", err
	}
	nonce, err := authz.NewNonce()
	if err != nil {
		return "", fmt.Errorf("%w: %v", x402.ErrSigningFailure, err)
	}

	now := time.Now()
	auth := &authz.Authorization{
		From: crypto.PubkeyToAddress(privKey.PublicKey),
		// Sign to exactly the advertised address, which may be an
		// intermediate relay and not the disclosed final recipient.
		To:          common.HexToAddress(accept.PayTo),
		Value:       required,
		ValidAfter:  now.Add(-validAfterSkew).Unix(),
		ValidBefore: now.Add(validBeforeLimit).Unix(),
		Nonce:       nonce,
	}
	domain := authz.Domain{
		Name:              accept.Extra["name"],
		Version:           accept.Extra["version"],
		ChainID:           chainID,
		VerifyingContract: common.HexToAddress(accept.Asset),
	}
	if domain.Name == "" {
		domain.Name = "USD Coin"
	}
	if domain.Version == "" {
		domain.Version = "2"
	}

	sig, err := authz.Sign(auth, privKey, domain)
	if err != nil {
		return "", fmt.Errorf("%w: %v", x402.ErrSigningFailure, err)
	}

	c.log.Info("paying x402 challenge",
		zap.String("amount", x402.FormatUnits(required, c.policy.Decimals)),
		zap.String("network", accept.Network),
		zap.String("payTo", accept.PayTo),
	)

	env := &x402.Envelope{
		X402Version: x402.Version,
		Scheme:      x402.SchemeExact,
		Network:     accept.Network,
		Payload: &x402.Payload{
			Signature:     "0x" + common.Bytes2Hex(sig),
			Authorization: auth.ToWire(),
		},
	}
	return x402.EncodeEnvelope(env)
}

func (c *Client) do(ctx context.Context, method, url string, header http.Header, body []byte, paymentHeader string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if paymentHeader != "" {
		req.Header.Set(x402.HeaderPayment, paymentHeader)
	}
	return c.http.Do(req)
}
