package x402

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func testRequirement() *Requirement {
	return &Requirement{
		Amount:       big.NewInt(2_000_000),
		Token:        "USDC",
		Network:      "eip155:8453",
		Asset:        common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		AssetName:    "USD Coin",
		AssetVersion: "2",
		PayTo:        common.HexToAddress("0xfeb1F8F7F9ff37B94D14c88DE9282DA56b3B1Cb1"),
		Recipient:    common.HexToAddress("0x1Af5f519DC738aC0f3B58B19A4bB8A8441937e78"),
		Description:  "full report",
	}
}

func validEnvelope() *Envelope {
	return &Envelope{
		X402Version: Version,
		Scheme:      SchemeExact,
		Network:     "eip155:8453",
		Payload: &Payload{
			Signature: "0xabcd",
			Authorization: &WireAuthorization{
				From:        "0x1111111111111111111111111111111111111111",
				To:          "0x2222222222222222222222222222222222222222",
				Value:       "2000000",
				ValidAfter:  "1700000000",
				ValidBefore: "1700000900",
				Nonce:       "0x" + strings.Repeat("ab", 32),
			},
		},
	}
}

// ── Envelope codec ─────────────────────────────────────────────────────────

func TestEnvelope_RoundTrip(t *testing.T) {
	header, err := EncodeEnvelope(validEnvelope())
	if err != nil {
		t.Fatal(err)
	}
	env, err := DecodeEnvelope(header)
	if err != nil {
		t.Fatal(err)
	}
	if env.Scheme != SchemeExact {
		t.Errorf("scheme = %q", env.Scheme)
	}
	if env.Payload.Authorization.Value != "2000000" {
		t.Errorf("value = %q", env.Payload.Authorization.Value)
	}
}

func TestDecodeEnvelope_InvalidBase64(t *testing.T) {
	_, err := DecodeEnvelope("not base64!!!")
	if !errors.Is(err, ErrMalformedProof) {
		t.Fatalf("expected ErrMalformedProof, got %v", err)
	}
}

func TestDecodeEnvelope_InvalidJSON(t *testing.T) {
	_, err := DecodeEnvelope(base64.StdEncoding.EncodeToString([]byte("{nope")))
	if !errors.Is(err, ErrMalformedProof) {
		t.Fatalf("expected ErrMalformedProof, got %v", err)
	}
}

func TestDecodeEnvelope_WrongVersion(t *testing.T) {
	env := validEnvelope()
	env.X402Version = 7
	header, _ := EncodeEnvelope(env)
	_, err := DecodeEnvelope(header)
	if !errors.Is(err, ErrMalformedProof) {
		t.Fatalf("expected ErrMalformedProof, got %v", err)
	}
}

func TestDecodeEnvelope_UnknownScheme(t *testing.T) {
	env := validEnvelope()
	env.Scheme = "stream"
	header, _ := EncodeEnvelope(env)
	_, err := DecodeEnvelope(header)
	if !errors.Is(err, ErrMalformedProof) {
		t.Fatalf("expected ErrMalformedProof, got %v", err)
	}
}

func TestDecodeEnvelope_ExactMissingAuthorization(t *testing.T) {
	env := validEnvelope()
	env.Payload.Authorization = nil
	header, _ := EncodeEnvelope(env)
	_, err := DecodeEnvelope(header)
	if !errors.Is(err, ErrMalformedProof) {
		t.Fatalf("expected ErrMalformedProof, got %v", err)
	}
}

func TestDecodeEnvelope_OnchainRequiresTransaction(t *testing.T) {
	env := &Envelope{X402Version: Version, Scheme: SchemeOnchain, Payload: &Payload{}}
	header, _ := EncodeEnvelope(env)
	if _, err := DecodeEnvelope(header); !errors.Is(err, ErrMalformedProof) {
		t.Fatalf("expected ErrMalformedProof, got %v", err)
	}

	env.Payload.Transaction = "0x" + strings.Repeat("11", 32)
	header, _ = EncodeEnvelope(env)
	if _, err := DecodeEnvelope(header); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReplayID_CaseNormalized(t *testing.T) {
	env := validEnvelope()
	env.Payload.Authorization.Nonce = "0x" + strings.Repeat("AB", 32)
	want := "0x" + strings.Repeat("ab", 32)
	if got := env.ReplayID(); got != want {
		t.Errorf("ReplayID = %q, want %q", got, want)
	}
}

func TestReplayID_OnchainUsesTxHash(t *testing.T) {
	tx := "0x" + strings.Repeat("CD", 32)
	env := &Envelope{Scheme: SchemeOnchain, Payload: &Payload{Transaction: tx}}
	if got := env.ReplayID(); got != strings.ToLower(tx) {
		t.Errorf("ReplayID = %q", got)
	}
}

// ── Challenge ──────────────────────────────────────────────────────────────

func TestBuildChallenge_SelfDescribing(t *testing.T) {
	ch := BuildChallenge(testRequirement())
	if len(ch.Accepts) != 1 {
		t.Fatalf("accepts len = %d", len(ch.Accepts))
	}
	a := ch.Accepts[0]
	if a.MaxAmountRequired != "2000000" {
		t.Errorf("maxAmountRequired = %q", a.MaxAmountRequired)
	}
	if a.Scheme != SchemeExact {
		t.Errorf("scheme = %q", a.Scheme)
	}
	if a.Extra["recipient"] == "" || a.Extra["name"] != "USD Coin" || a.Extra["version"] != "2" {
		t.Errorf("extra incomplete: %v", a.Extra)
	}
	if a.PayTo == a.Extra["recipient"] {
		t.Error("payTo should be the intermediate, not the recipient")
	}
}

func TestChallenge_RoundTrip(t *testing.T) {
	raw, err := json.Marshal(BuildChallenge(testRequirement()))
	if err != nil {
		t.Fatal(err)
	}
	accept, err := ParseChallenge(raw)
	if err != nil {
		t.Fatal(err)
	}
	if accept.MaxAmountRequired != "2000000" {
		t.Errorf("maxAmountRequired = %q", accept.MaxAmountRequired)
	}
	if accept.Network != "eip155:8453" {
		t.Errorf("network = %q", accept.Network)
	}
}

func TestParseChallenge_NoAccepts(t *testing.T) {
	if _, err := ParseChallenge([]byte(`{"error":"Payment Required"}`)); err == nil {
		t.Fatal("expected error for missing accepts[]")
	}
}

func TestParseChallenge_IncompleteEntry(t *testing.T) {
	body := []byte(`{"accepts":[{"scheme":"exact","network":"eip155:8453"}]}`)
	if _, err := ParseChallenge(body); err == nil {
		t.Fatal("expected error for incomplete accepts entry")
	}
}

// ── Requirement ────────────────────────────────────────────────────────────

func TestRequirement_Free(t *testing.T) {
	var nilReq *Requirement
	if !nilReq.Free() {
		t.Error("nil requirement should be free")
	}
	if !(&Requirement{Amount: big.NewInt(0)}).Free() {
		t.Error("zero amount should be free")
	}
	if (&Requirement{Amount: big.NewInt(1)}).Free() {
		t.Error("nonzero amount should not be free")
	}
}
