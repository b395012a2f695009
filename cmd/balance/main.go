// Command balance prints the agent wallet's USDC balance, so an operator can
// check funding before pointing the payment client at a paid endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/openclaw/x402gate/internal/keys"
	"github.com/openclaw/x402gate/internal/x402"
)

var balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]

func main() {
	rpcURL := flag.String("rpc", "https://mainnet.base.org", "JSON-RPC endpoint")
	asset := flag.String("asset", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "ERC-20 asset contract")
	addr := flag.String("addr", "", "address to query (default: derived from the wallet key)")
	key := flag.String("key", "", "hex private key (overrides AGENT_WALLET_PRIVATE_KEY)")
	keystorePath := flag.String("keystore", "", "path to encrypted keystore file")
	passphrase := flag.String("pass", "", "keystore passphrase")
	flag.Parse()

	var account common.Address
	if *addr != "" {
		account = common.HexToAddress(*addr)
	} else {
		privKey, err := keys.Resolve(*key, *keystorePath, *passphrase)
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve wallet: %v\n", err)
			os.Exit(1)
		}
		account = crypto.PubkeyToAddress(privKey.PublicKey)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	eth, err := ethclient.DialContext(ctx, *rpcURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *rpcURL, err)
		os.Exit(1)
	}
	defer eth.Close()

	assetAddr := common.HexToAddress(*asset)
	calldata := make([]byte, 4+32)
	copy(calldata[0:4], balanceOfSelector)
	copy(calldata[16:36], account.Bytes())

	raw, err := eth.CallContract(ctx, ethereum.CallMsg{To: &assetAddr, Data: calldata}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "balanceOf call: %v\n", err)
		os.Exit(1)
	}
	balance := new(big.Int).SetBytes(raw)

	fmt.Printf("address:  %s\n", account.Hex())
	fmt.Printf("asset:    %s\n", assetAddr.Hex())
	fmt.Printf("balance:  %s (%s units)\n", x402.FormatUnits(balance, x402.USDCDecimals), balance)
}
