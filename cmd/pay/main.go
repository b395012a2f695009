package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/openclaw/x402gate/internal/client"
)

func main() {
	var (
		url       = flag.String("url", "", "target URL (required)")
		method    = flag.String("method", "GET", "HTTP method")
		body      = flag.String("body", "", "request body (JSON)")
		maxAmount = flag.String("max", "", "payment ceiling in decimal units, e.g. 2.50")
		key       = flag.String("key", "", "signing key hex (falls back to env, then keystore)")
		keystore  = flag.String("keystore", "", "encrypted keystore file path")
		pass      = flag.String("pass", "", "keystore passphrase")
		timeout   = flag.Duration("timeout", 30*time.Second, "per-request timeout")
	)
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "usage: pay -url <url> [-method POST] [-body '{}'] -max <amount>")
		os.Exit(2)
	}

	log, _ := zap.NewDevelopment()
	defer log.Sync() //nolint:errcheck

	c := client.New(client.Policy{
		MaxAmount:    *maxAmount,
		PrivateKey:   *key,
		KeystorePath: *keystore,
		Passphrase:   *pass,
		Timeout:      *timeout,
	}, log)

	var payload []byte
	if *body != "" {
		payload = []byte(*body)
	}

	resp, err := c.Fetch(context.Background(), *method, *url, nil, payload)
	if err != nil {
		log.Fatal("request failed", zap.Error(err))
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal("read response", zap.Error(err))
	}
	fmt.Printf("status: %d\n%s\n", resp.StatusCode, out)
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}
