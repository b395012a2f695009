package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/openclaw/x402gate/internal/config"
	"github.com/openclaw/x402gate/internal/facilitator"
	"github.com/openclaw/x402gate/internal/gate"
	"github.com/openclaw/x402gate/internal/replay"
	"github.com/openclaw/x402gate/internal/x402"
)

const usedTxKey = "x402:used"

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis (durable used-transaction set) ──────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}
	guard := replay.NewRedisGuard(rdb, usedTxKey)

	// ── Facilitator backend ───────────────────────────────────────────────────
	fac, err := buildFacilitator(cfg, guard, log)
	if err != nil {
		log.Fatal("facilitator init failed", zap.Error(err))
	}

	// ── Route requirement ─────────────────────────────────────────────────────
	amount, err := x402.ParseUnits(cfg.Payment.Amount, x402.USDCDecimals)
	if err != nil {
		log.Fatal("invalid PAYMENT_AMOUNT", zap.Error(err))
	}
	requirement := &x402.Requirement{
		Amount:       amount,
		Token:        cfg.Payment.Token,
		Network:      cfg.Payment.Network,
		Asset:        common.HexToAddress(cfg.Payment.Asset),
		AssetName:    cfg.Payment.AssetName,
		AssetVersion: cfg.Payment.AssetVersion,
		PayTo:        common.HexToAddress(cfg.Payment.PayTo),
		Recipient:    common.HexToAddress(cfg.Payment.Recipient),
		Description:  cfg.Payment.Description,
	}

	gateCfg := gate.Config{
		Routes: map[gate.RouteKey]*x402.Requirement{
			{Method: http.MethodPost, Path: "/report"}: requirement,
		},
		FreeRoutes:    []string{"/healthz"},
		VerifyTimeout: time.Duration(cfg.Facilitator.TimeoutSec) * time.Second,
		OnPayment: func(p *gate.Payment) error {
			log.Info("payment observed",
				zap.String("tx", p.TxHash),
				zap.String("amount", p.Amount),
				zap.String("token", p.Token),
			)
			return nil
		},
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gate.RateLimit(ctx, rate.Limit(5), 10, 3*time.Minute))
	r.Use(gate.Middleware(gateCfg, fac, guard, log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.POST("/report", func(c *gin.Context) {
		payment, _ := gate.GetPayment(c)
		c.JSON(http.StatusOK, gin.H{
			"report":  "full",
			"payment": payment,
		})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("payment gate starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

func buildFacilitator(cfg *config.Config, guard replay.Guard, log *zap.Logger) (facilitator.Facilitator, error) {
	switch cfg.Facilitator.Mode {
	case config.ModeHTTP:
		return facilitator.NewHTTPClient(
			cfg.Facilitator.URL,
			cfg.Facilitator.APIKey,
			time.Duration(cfg.Facilitator.TimeoutSec)*time.Second,
		), nil
	case config.ModeOnchain:
		eth, err := ethclient.Dial(cfg.Chain.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial rpc: %w", err)
		}
		return facilitator.NewOnchainVerifier(
			eth,
			common.HexToAddress(cfg.Payment.Asset),
			cfg.Facilitator.MinConfirmations,
			guard,
			log,
		), nil
	default:
		return nil, fmt.Errorf("unknown facilitator mode %q", cfg.Facilitator.Mode)
	}
}
