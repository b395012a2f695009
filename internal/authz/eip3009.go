package authz

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/openclaw/x402gate/internal/x402"
)

var transferTypeHash = crypto.Keccak256Hash([]byte(
	"TransferWithAuthorization(address from,address to,uint256 value,uint256 validAfter,uint256 validBefore,bytes32 nonce)",
))

// Domain identifies the EIP-712 signing domain: the asset contract's
// name/version/chainId/address. Binding signatures to the domain prevents
// cross-contract reuse.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Authorization is an EIP-3009 transfer authorization. Value is in the
// asset's smallest units; ValidAfter/ValidBefore are Unix seconds.
type Authorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  int64
	ValidBefore int64
	Nonce       [32]byte
}

// NewNonce draws a fresh random 32-byte authorization nonce.
func NewNonce() ([32]byte, error) {
	var n [32]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("draw nonce: %w", err)
	}
	return n, nil
}

// domainSeparator computes the EIP-712 domain separator.
func domainSeparator(d Domain) [32]byte {
	domainTypeHash := crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	nameHash := crypto.Keccak256Hash([]byte(d.Name))
	versionHash := crypto.Keccak256Hash([]byte(d.Version))

	// ABI-encode: each element padded to a 32-byte slot, addresses right-aligned.
	encoded := make([]byte, 5*32)
	copy(encoded[0:32], domainTypeHash[:])
	copy(encoded[32:64], nameHash[:])
	copy(encoded[64:96], versionHash[:])
	d.ChainID.FillBytes(encoded[96:128])
	copy(encoded[140:160], d.VerifyingContract.Bytes())

	return crypto.Keccak256Hash(encoded)
}

// Digest computes the final EIP-712 signing digest:
// keccak256(0x1901 || domainSeparator || structHash).
func Digest(a *Authorization, d Domain) [32]byte {
	// structHash = keccak256(typeHash || abi.encode(fields))
	encoded := make([]byte, 7*32)
	copy(encoded[0:32], transferTypeHash[:])
	copy(encoded[44:64], a.From.Bytes())
	copy(encoded[76:96], a.To.Bytes())
	a.Value.FillBytes(encoded[96:128])
	big.NewInt(a.ValidAfter).FillBytes(encoded[128:160])
	big.NewInt(a.ValidBefore).FillBytes(encoded[160:192])
	copy(encoded[192:224], a.Nonce[:])

	structHash := crypto.Keccak256Hash(encoded)
	sep := domainSeparator(d)

	msg := make([]byte, 2+32+32)
	msg[0] = 0x19
	msg[1] = 0x01
	copy(msg[2:34], sep[:])
	copy(msg[34:66], structHash[:])
	return crypto.Keccak256Hash(msg)
}

// Sign produces a 65-byte R||S||V signature over the authorization, with V
// in {27,28} for Solidity ecrecover compatibility.
func Sign(a *Authorization, privKey *ecdsa.PrivateKey, d Domain) ([]byte, error) {
	digest := Digest(a, d)
	sig, err := crypto.Sign(digest[:], privKey)
	if err != nil {
		return nil, fmt.Errorf("sign authorization: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// RecoverSigner extracts the signer address from a signed authorization.
func RecoverSigner(a *Authorization, sig []byte, d Domain) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}
	digest := Digest(a, d)
	sigCopy := make([]byte, 65)
	copy(sigCopy, sig)
	if sigCopy[64] >= 27 {
		sigCopy[64] -= 27
	}
	pub, err := crypto.SigToPub(digest[:], sigCopy)
	if err != nil {
		return common.Address{}, fmt.Errorf("ecrecover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// ToWire renders the authorization into its JSON wire form.
func (a *Authorization) ToWire() *x402.WireAuthorization {
	return &x402.WireAuthorization{
		From:        a.From.Hex(),
		To:          a.To.Hex(),
		Value:       a.Value.String(),
		ValidAfter:  big.NewInt(a.ValidAfter).String(),
		ValidBefore: big.NewInt(a.ValidBefore).String(),
		Nonce:       "0x" + hex.EncodeToString(a.Nonce[:]),
	}
}

// FromWire parses a wire authorization, validating field shapes.
func FromWire(w *x402.WireAuthorization) (*Authorization, error) {
	if w == nil {
		return nil, fmt.Errorf("nil authorization")
	}
	value, ok := new(big.Int).SetString(w.Value, 10)
	if !ok || value.Sign() < 0 || value.BitLen() > 256 {
		return nil, fmt.Errorf("invalid authorization value %q", w.Value)
	}
	// Timestamps must fit int64 and be non-negative; anything else cannot be
	// hashed into a uint256 slot.
	after, ok := new(big.Int).SetString(w.ValidAfter, 10)
	if !ok || after.Sign() < 0 || !after.IsInt64() {
		return nil, fmt.Errorf("invalid validAfter %q", w.ValidAfter)
	}
	before, ok := new(big.Int).SetString(w.ValidBefore, 10)
	if !ok || before.Sign() < 0 || !before.IsInt64() {
		return nil, fmt.Errorf("invalid validBefore %q", w.ValidBefore)
	}
	nonceHex := strings.TrimPrefix(w.Nonce, "0x")
	raw, err := hex.DecodeString(nonceHex)
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("invalid nonce %q", w.Nonce)
	}
	a := &Authorization{
		From:        common.HexToAddress(w.From),
		To:          common.HexToAddress(w.To),
		Value:       value,
		ValidAfter:  after.Int64(),
		ValidBefore: before.Int64(),
	}
	copy(a.Nonce[:], raw)
	return a, nil
}

// SignatureBytes decodes a 0x-prefixed hex signature string.
func SignatureBytes(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signature hex: %w", err)
	}
	return raw, nil
}
