// Command multibuy quotes and buys storage plans through a running server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Criptoruim/jackalmultibuy/internal/client"
	"github.com/Criptoruim/jackalmultibuy/internal/models"
	"github.com/Criptoruim/jackalmultibuy/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	var (
		server    = flag.String("server", envOr("MULTIBUY_SERVER", "http://localhost:8080"), "Server base URL")
		apiKey    = flag.String("key", os.Getenv("MULTIBUY_API_KEY"), "API key")
		capacity  = flag.String("capacity", "1TB", "Plan capacity per wallet, e.g. 500GB or 2TB")
		duration  = flag.String("duration", "1month", "Plan duration, e.g. 6months or 1year")
		addresses = flag.String("addresses", "", "Comma-separated jkl1 addresses")
		referral  = flag.String("referral", "", "Referral code")
		idemKey   = flag.String("idempotency-key", "", "Idempotency-Key for purchases")
		force     = flag.Bool("force", false, "Bypass the server price cache")
		timeout   = flag.Duration("timeout", 15*time.Minute, "Request timeout")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: multibuy [flags] price|quote|buy|record <batch-id>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := logger.Initialize(&logger.Config{Level: "info", Environment: "development", OutputPaths: []string{"stderr"}}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.GetLogger()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := client.New(*server, *apiKey, *timeout)
	ctx := context.Background()

	var (
		result interface{}
		err    error
	)
	switch cmd := flag.Arg(0); cmd {
	case "price":
		result, err = c.Price(ctx, *force)
	case "quote", "buy":
		var pc models.PurchaseConfiguration
		pc, err = buildConfiguration(*capacity, *duration, *addresses, *referral)
		if err != nil {
			break
		}
		if cmd == "quote" {
			result, err = c.Quote(ctx, pc)
		} else {
			result, err = c.Purchase(ctx, pc, *idemKey)
		}
	case "record":
		if flag.NArg() < 2 {
			flag.Usage()
			os.Exit(2)
		}
		result, err = c.GetPurchase(ctx, flag.Arg(1))
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal("Request failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// buildConfiguration turns command-line strings into a purchase configuration
func buildConfiguration(capacity, duration, addresses, referral string) (models.PurchaseConfiguration, error) {
	var pc models.PurchaseConfiguration

	value, unit, err := splitQuantity(capacity)
	if err != nil {
		return pc, fmt.Errorf("capacity: %w", err)
	}
	capUnit, err := models.ParseCapacityUnit(unit)
	if err != nil {
		return pc, err
	}

	dValue, dUnit, err := splitQuantity(duration)
	if err != nil {
		return pc, fmt.Errorf("duration: %w", err)
	}
	durUnit, err := models.ParseDurationUnit(dUnit)
	if err != nil {
		return pc, err
	}

	pc.Capacity = models.Capacity{Value: value, Unit: capUnit}
	pc.Duration = models.Duration{Value: dValue, Unit: durUnit}
	pc.ReferralCode = referral
	for _, addr := range strings.Split(addresses, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			pc.TargetAddresses = append(pc.TargetAddresses, addr)
		}
	}
	return pc, nil
}

// splitQuantity splits "2TB" into 2 and "TB"
func splitQuantity(s string) (int, string, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if i <= 0 {
		return 0, "", fmt.Errorf("expected a number followed by a unit, got %q", s)
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, "", err
	}
	return n, strings.TrimSpace(s[i:]), nil
}
