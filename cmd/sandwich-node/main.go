package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
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
	"github.com/mev-protocol/sandwich/internal/signer"
	"github.com/mev-protocol/sandwich/internal/univ2"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("Sandwich Node v0.1.0")
	log.Info().Msg("====================")

	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rpcPool := rpc.NewPool(cfg.RPC)
	if err := rpcPool.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start RPC pool")
	}

	chainID, err := rpcPool.ChainID(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read chain id")
	}
	searcher, err := signer.NewKey(cfg.PrivateKey, chainID)
	if err != nil {
		log.Fatal().Err(err).Msg("PRIVATE_KEY")
	}
	auth, err := signer.NewKey(cfg.AuthKey, chainID)
	if err != nil {
		log.Fatal().Err(err).Msg("FLASHBOTS_AUTH_KEY")
	}

	nonces := signer.NewNonceAllocator(rpcPool, searcher.Address())
	if err := nonces.Sync(ctx, 0); err != nil {
		log.Fatal().Err(err).Msg("Failed to read searcher nonce")
	}

	routerDecoder, err := decoder.New(cfg.Decoder)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load router ABI")
	}

	cfg.Bundle.ChainID = chainID
	cfg.Pipeline.ChainID = chainID

	m := metrics.New()
	engine := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Chain:     rpcPool,
		Decoder:   routerDecoder,
		Reserves:  univ2.NewOracle(rpcPool, cfg.Factory),
		Optimizer: sandwich.NewOptimizer(cfg.Optimizer),
		Builder:   bundle.NewBuilder(cfg.Bundle, searcher),
		Relay:     relay.New(cfg.Relay, auth),
		Nonces:    nonces,
		Recorder:  m,
	})

	mempoolMonitor := mempool.NewMonitor(cfg.Mempool, rpcPool, engine.Handle, m)
	mempoolMonitor.OnHead(engine.OnHead)
	healthServer := health.New(cfg.Health)

	go func() {
		if err := m.Serve(ctx, cfg.Metrics); err != nil {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	go func() {
		if err := healthServer.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("Health server stopped")
		}
	}()

	if err := mempoolMonitor.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start mempool monitor")
	}
	healthServer.SetServing(true)

	log.Info().
		Uint64("chainId", chainID.Uint64()).
		Str("searcher", searcher.Address().Hex()).
		Str("relaySigner", auth.Address().Hex()).
		Str("executor", cfg.Bundle.Executor.Hex()).
		Str("capETH", decimal.NewFromBigInt(cfg.Optimizer.Cap.ToBig(), -18).String()).
		Msg("All components started successfully")

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	log.Info().Msg("Shutdown signal received")
	healthServer.SetServing(false)

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	mempoolMonitor.Stop(shutdownCtx)
	cancel()
	rpcPool.Stop(shutdownCtx)

	log.Info().Msg("Shutdown complete")
}
