// Package gate implements the x402 payment middleware: unpaid requests to
// protected routes are challenged with a structured 402, presented proofs
// are verified and settled through a facilitator, and only settled requests
// reach the handler.
package gate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/openclaw/x402gate/internal/facilitator"
	"github.com/openclaw/x402gate/internal/replay"
	"github.com/openclaw/x402gate/internal/x402"
)

// ContextKey is where the middleware stores the *Payment for handlers.
const ContextKey = "x402"

// Payment is attached to the request context after verified settlement.
type Payment struct {
	Verified    bool   `json:"verified"`
	TxHash      string `json:"txHash"`
	Facilitator string `json:"facilitator"`
	Amount      string `json:"amount"`
	Token       string `json:"token"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
}

// GetPayment reads the payment context attached by the middleware.
func GetPayment(c *gin.Context) (*Payment, bool) {
	v, ok := c.Get(ContextKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Payment)
	return p, ok
}

// Middleware returns the gin handler enforcing payment per cfg.
//
// Per-request sequence, strictly ordered: free-route check, zero-amount
// check, header presence, replay pre-check, verify-and-settle, mark-used,
// continue. Payment-path failures always answer 402, never 5xx.
func Middleware(cfg Config, fac facilitator.Facilitator, guard replay.Guard, log *zap.Logger) gin.HandlerFunc {
	free := cfg.freeSet()
	verifyTimeout := cfg.VerifyTimeout
	if verifyTimeout == 0 {
		verifyTimeout = 30 * time.Second
	}

	// A backend that consumes replay ids during settlement owns the mark;
	// marking again here would reject every first settlement as a replay.
	facConsumesIDs := false
	if rc, ok := fac.(facilitator.ReplayConsumer); ok {
		facConsumesIDs = rc.ConsumesReplayIDs()
	}

	return func(c *gin.Context) {
		if _, ok := free[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		req := cfg.resolve(c.Request.Method, c.Request.URL.Path)
		if req.Free() {
			c.Next()
			return
		}

		header := c.GetHeader(x402.HeaderPayment)
		if header == "" {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, x402.BuildChallenge(req))
			return
		}

		env, err := x402.DecodeEnvelope(header)
		if err != nil {
			rejectPayment(c, err.Error())
			return
		}

		// Cheap replay rejection before any facilitator round-trip.
		id := env.ReplayID()
		used, err := guard.Has(c.Request.Context(), id)
		if err != nil {
			log.Error("replay guard read failed", zap.Error(err))
			rejectPayment(c, "payment verification temporarily unavailable")
			return
		}
		if used {
			rejectPayment(c, fmt.Sprintf("%s (replay)", x402.ErrReplayed))
			return
		}

		vctx, cancel := context.WithTimeout(c.Request.Context(), verifyTimeout)
		defer cancel()

		result, err := fac.VerifyAndSettle(vctx, &facilitator.Proof{Header: header, Envelope: env}, facilitator.Expectation{
			PayTo:     req.PayTo,
			Recipient: req.Recipient,
			Amount:    req.Amount,
			Token:     req.Token,
			Network:   req.Network,
		})
		if err != nil {
			// Internal detail stays in the log; the payer only learns the
			// payment did not go through.
			log.Error("verify-and-settle failed",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err),
			)
			rejectPayment(c, "facilitator unavailable")
			return
		}
		if !result.Settled {
			rejectPayment(c, result.Reason)
			return
		}

		// Consume the proof id, unless the backend already did. Losing this
		// race means a concurrent request already credited the same proof.
		if !facConsumesIDs {
			added, err := guard.MarkUsed(c.Request.Context(), id)
			if err != nil {
				log.Error("replay guard write failed", zap.String("id", id), zap.Error(err))
				rejectPayment(c, "payment verification temporarily unavailable")
				return
			}
			if !added {
				rejectPayment(c, fmt.Sprintf("%s (replay)", x402.ErrReplayed))
				return
			}
		}

		payment := &Payment{
			Verified:    true,
			TxHash:      result.TxHash,
			Facilitator: result.Facilitator,
			Amount:      req.Amount.String(),
			Token:       req.Token,
			Network:     req.Network,
			Payer:       result.Payer,
		}
		c.Set(ContextKey, payment)
		c.Header(x402.HeaderPaymentResponse, x402.EncodeSettlementReceipt(result))

		log.Info("payment settled",
			zap.String("path", c.Request.URL.Path),
			zap.String("tx", result.TxHash),
			zap.String("amount", payment.Amount),
			zap.String("payer", result.Payer),
		)

		if cfg.OnPayment != nil {
			if err := cfg.OnPayment(payment); err != nil {
				log.Warn("onPayment hook failed", zap.Error(err))
			}
		}

		c.Next()
	}
}

func rejectPayment(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
		"error":  "Payment verification failed",
		"reason": reason,
	})
}
