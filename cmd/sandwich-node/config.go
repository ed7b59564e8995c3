package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mev-protocol/sandwich/internal/bundle"
	"github.com/mev-protocol/sandwich/internal/decoder"
	"github.com/mev-protocol/sandwich/internal/health"
	"github.com/mev-protocol/sandwich/internal/mempool"
	"github.com/mev-protocol/sandwich/internal/metrics"
	"github.com/mev-protocol/sandwich/internal/pipeline"
	"github.com/mev-protocol/sandwich/internal/relay"
	"github.com/mev-protocol/sandwich/internal/rpc"
	"github.com/mev-protocol/sandwich/internal/sandwich"
	"github.com/mev-protocol/sandwich/internal/univ2"
)

const (
	defaultRouter = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"
	defaultWETH   = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
)

var requiredEnv = []string{"RPC_URL_WSS", "PRIVATE_KEY", "FLASHBOTS_AUTH_KEY", "SANDWICH_CONTRACT"}

type Config struct {
	RPC       rpc.Config
	Mempool   mempool.Config
	Relay     relay.Config
	Decoder   decoder.Config
	Factory   univ2.Factory
	Optimizer sandwich.Config
	Bundle    bundle.Config
	Pipeline  pipeline.Config
	Metrics   metrics.Config
	Health    health.Config

	PrivateKey string
	AuthKey    string
	LogLevel   zerolog.Level
}

// loadConfig reads the environment. Every missing or malformed variable is
// reported in one error.
func loadConfig() (*Config, error) {
	var errs []error
	var missing []string
	for _, name := range requiredEnv {
		if strings.TrimSpace(os.Getenv(name)) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required environment: %s", strings.Join(missing, ", ")))
	}

	p := &parser{}
	endpoints := []string{os.Getenv("RPC_URL_WSS")}
	for _, extra := range strings.Split(os.Getenv("RPC_URLS"), ",") {
		if extra = strings.TrimSpace(extra); extra != "" {
			endpoints = append(endpoints, extra)
		}
	}

	weth := p.address("WETH", defaultWETH)
	callTimeout := p.duration("CALL_TIMEOUT", 5*time.Second)
	relayTimeout := p.duration("RELAY_TIMEOUT", 5*time.Second)

	cfg := &Config{
		RPC: rpc.Config{
			Endpoints:           endpoints,
			RequestTimeout:      callTimeout,
			HealthCheckInterval: 30 * time.Second,
		},
		Mempool: mempool.Config{
			BufferSize:     p.int("QUEUE_SIZE", 10_000),
			Workers:        p.int("WORKERS", 16),
			ReconnectDelay: time.Second,
		},
		Relay: relay.Config{
			URL:     getenv("RELAY_URL", relay.DefaultURL),
			Timeout: relayTimeout,
		},
		Decoder: decoder.Config{
			Router: p.address("UNIV2_ROUTER", defaultRouter),
			WETH:   weth,
		},
		Factory: univ2.Factory{
			Address:      p.address("UNIV2_FACTORY", univ2.Mainnet.Address.Hex()),
			InitCodeHash: common.HexToHash(getenv("UNIV2_INIT_CODE_HASH", univ2.Mainnet.InitCodeHash.Hex())),
		},
		Optimizer: sandwich.Config{
			Cap:          p.ether("SANDWICH_CAP_ETH", "100"),
			ToleranceBps: uint64(p.int("OPTIMIZER_TOLERANCE_BPS", 100)),
		},
		Bundle: bundle.Config{
			Executor:         p.address("SANDWICH_CONTRACT", ""),
			WETH:             weth,
			FrontrunGasLimit: uint64(p.int("FRONTRUN_GAS_LIMIT", 250_000)),
			BackrunGasLimit:  uint64(p.int("BACKRUN_GAS_LIMIT", 250_000)),
		},
		Pipeline: pipeline.Config{
			WETH:                weth,
			RelayTimeout:        relayTimeout,
			ReceiptPollInterval: p.duration("RECEIPT_POLL_INTERVAL", time.Second),
		},
		Metrics:    metrics.Config{Addr: getenv("METRICS_ADDR", ":9090")},
		Health:     health.Config{Addr: getenv("HEALTH_ADDR", ":9091")},
		PrivateKey: os.Getenv("PRIVATE_KEY"),
		AuthKey:    os.Getenv("FLASHBOTS_AUTH_KEY"),
	}

	level, err := zerolog.ParseLevel(strings.ToLower(getenv("LOG_LEVEL", "info")))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	cfg.LogLevel = level

	if err := errors.Join(append(errs, p.errs...)...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// parser collects conversion errors instead of failing on the first
type parser struct {
	errs []error
}

func (p *parser) int(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) address(key, def string) common.Address {
	v := getenv(key, def)
	if v == "" {
		return common.Address{}
	}
	if !common.IsHexAddress(v) {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid address %q", key, v))
		return common.Address{}
	}
	return common.HexToAddress(v)
}

// ether parses a decimal ETH amount into wei
func (p *parser) ether(key, def string) *uint256.Int {
	v := getenv(key, def)
	d, err := decimal.NewFromString(v)
	if err != nil || d.IsNegative() {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid amount %q", key, v))
		return new(uint256.Int)
	}
	wei, overflow := uint256.FromBig(d.Shift(18).BigInt())
	if overflow {
		p.errs = append(p.errs, fmt.Errorf("%s: amount too large", key))
		return new(uint256.Int)
	}
	return wei
}
