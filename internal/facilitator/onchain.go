package facilitator

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/openclaw/x402gate/internal/replay"
	"github.com/openclaw/x402gate/internal/x402"
)

var transferEventSig = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// ChainReader is the slice of the RPC surface the on-chain backend needs.
// *ethclient.Client satisfies it.
type ChainReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// OnchainVerifier verifies already-executed token transfers directly against
// the chain: receipt status, confirmation depth, and a Transfer event log
// matching the expected asset, recipient, and amount floor. The transaction
// hash is consumed through the replay guard; mark-used happens only after
// every check passes, so an invalid submission never burns the hash.
type OnchainVerifier struct {
	chain    ChainReader
	asset    common.Address
	minConf  uint64
	guard    replay.Guard
	decimals int
	log      *zap.Logger
}

func NewOnchainVerifier(chain ChainReader, asset common.Address, minConf uint64, guard replay.Guard, log *zap.Logger) *OnchainVerifier {
	return &OnchainVerifier{
		chain:    chain,
		asset:    asset,
		minConf:  minConf,
		guard:    guard,
		decimals: x402.USDCDecimals,
		log:      log,
	}
}

// ConsumesReplayIDs reports that the verifier marks transaction hashes used
// itself; callers sharing the guard must not mark them again.
func (v *OnchainVerifier) ConsumesReplayIDs() bool { return true }

func (v *OnchainVerifier) VerifyAndSettle(ctx context.Context, proof *Proof, expect Expectation) (*x402.SettlementResult, error) {
	if proof.Envelope.Scheme != x402.SchemeOnchain {
		return reject(fmt.Sprintf("scheme %q not supported by on-chain verification", proof.Envelope.Scheme)), nil
	}
	txHash := replay.Normalize(proof.Envelope.Payload.Transaction)
	if !strings.HasPrefix(txHash, "0x") || len(txHash) != 66 {
		return reject("invalid transaction hash"), nil
	}

	// Cheap replay rejection before touching the chain.
	used, err := v.guard.Has(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("replay check: %w", err)
	}
	if used {
		return reject(fmt.Sprintf("%s (replay)", x402.ErrReplayed)), nil
	}

	receipt, err := v.chain.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil || receipt == nil {
		if err != nil {
			v.log.Warn("receipt lookup failed", zap.String("tx", txHash), zap.Error(err))
		}
		return reject("transaction not found or pending"), nil
	}

	head, err := v.chain.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: block number: %v", x402.ErrFacilitatorUnavailable, err)
	}
	confirmations := head - receipt.BlockNumber.Uint64()
	if confirmations < v.minConf {
		return reject(fmt.Sprintf("insufficient confirmations: need %d, got %d", v.minConf, confirmations)), nil
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return reject("transaction reverted"), nil
	}

	transfer := v.findTransfer(receipt)
	if transfer == nil {
		return reject(fmt.Sprintf("no %s transfer found in transaction", expect.Token)), nil
	}

	from := common.BytesToAddress(transfer.Topics[1].Bytes())
	to := common.BytesToAddress(transfer.Topics[2].Bytes())
	amount := new(big.Int).SetBytes(transfer.Data)

	if to != expect.PayTo {
		return reject(fmt.Sprintf("wrong recipient: expected %s, got %s", expect.PayTo.Hex(), to.Hex())), nil
	}
	if amount.Cmp(expect.Amount) < 0 {
		return reject(fmt.Sprintf("%s: expected %s, got %s", x402.ErrInsufficient,
			x402.FormatUnits(expect.Amount, v.decimals), x402.FormatUnits(amount, v.decimals))), nil
	}

	// All checks passed: consume the hash. A lost race here means another
	// request already credited this transaction.
	added, err := v.guard.MarkUsed(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("mark used: %w", err)
	}
	if !added {
		return reject(fmt.Sprintf("%s (replay)", x402.ErrReplayed)), nil
	}

	v.log.Info("onchain transfer verified",
		zap.String("tx", txHash),
		zap.String("from", from.Hex()),
		zap.String("amount", amount.String()),
		zap.Uint64("confirmations", confirmations),
	)

	return &x402.SettlementResult{
		Settled:     true,
		TxHash:      txHash,
		Facilitator: "onchain",
		Amount:      amount.String(),
		Payer:       from.Hex(),
	}, nil
}

// findTransfer locates the asset's Transfer event in the receipt logs.
func (v *OnchainVerifier) findTransfer(receipt *types.Receipt) *types.Log {
	for _, lg := range receipt.Logs {
		if lg.Address == v.asset && len(lg.Topics) == 3 && lg.Topics[0] == transferEventSig {
			return lg
		}
	}
	return nil
}

func reject(reason string) *x402.SettlementResult {
	return &x402.SettlementResult{Settled: false, Reason: reason}
}
