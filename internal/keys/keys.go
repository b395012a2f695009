package keys

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
)

// EnvPrivateKey is the environment fallback for the signing key.
const EnvPrivateKey = "AGENT_WALLET_PRIVATE_KEY"

// Resolve picks the signing key: an explicit hex key wins, then the
// environment variable, then an encrypted keystore file unlocked with the
// passphrase. A keystore that fails to decrypt is an error; there is no
// silent fallback past it.
func Resolve(explicit, keystorePath, passphrase string) (*ecdsa.PrivateKey, error) {
	if explicit != "" {
		return parseHexKey(explicit)
	}
	if env := os.Getenv(EnvPrivateKey); env != "" {
		return parseHexKey(env)
	}
	if keystorePath == "" {
		return nil, fmt.Errorf("no signing key: set %s or provide a keystore file", EnvPrivateKey)
	}
	if passphrase == "" {
		return nil, fmt.Errorf("keystore %s requires a passphrase", keystorePath)
	}
	raw, err := os.ReadFile(keystorePath)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	key, err := keystore.DecryptKey(raw, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore %s: %w", keystorePath, err)
	}
	return key.PrivateKey, nil
}

func parseHexKey(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}
