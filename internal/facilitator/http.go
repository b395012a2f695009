package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/openclaw/x402gate/internal/x402"
)

// payRequest is the body of POST /v1/pay on the facilitator service.
type payRequest struct {
	PaymentHeader  string `json:"paymentHeader"`
	To             string `json:"to"`
	Network        string `json:"network"`
	ExpectedAmount string `json:"expectedAmount"`
	ExpectedToken  string `json:"expectedToken"`
}

type payResponse struct {
	Data *struct {
		Settled     bool   `json:"settled"`
		TxHash      string `json:"txHash"`
		Facilitator string `json:"facilitator"`
		Amount      string `json:"amount"`
	} `json:"data"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HTTPClient settles payments through a remote facilitator service. The
// facilitator owns nonce consumption, so replayed authorizations are
// rejected on its side as well.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) VerifyAndSettle(ctx context.Context, proof *Proof, expect Expectation) (*x402.SettlementResult, error) {
	body, err := json.Marshal(payRequest{
		PaymentHeader:  proof.Header,
		To:             expect.Recipient.Hex(),
		Network:        expect.Network,
		ExpectedAmount: expect.Amount.String(),
		ExpectedToken:  expect.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal pay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/pay", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build pay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	var out payResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", x402.ErrFacilitatorUnavailable, err)
	}

	if resp.StatusCode == http.StatusOK && out.Data != nil && out.Data.Settled {
		return &x402.SettlementResult{
			Settled:     true,
			TxHash:      out.Data.TxHash,
			Facilitator: out.Data.Facilitator,
			Amount:      out.Data.Amount,
		}, nil
	}

	reason := out.Error
	if reason == "" {
		reason = out.Message
	}
	if reason == "" {
		reason = fmt.Sprintf("facilitator returned %d", resp.StatusCode)
	}
	return &x402.SettlementResult{Settled: false, Reason: reason}, nil
}
