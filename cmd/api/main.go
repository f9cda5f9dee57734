package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fc-gallery/nft-aggregator/internal/adapter"
	"github.com/fc-gallery/nft-aggregator/internal/aggregator"
	"github.com/fc-gallery/nft-aggregator/internal/api/middleware"
	"github.com/fc-gallery/nft-aggregator/internal/api/rest"
	"github.com/fc-gallery/nft-aggregator/internal/api/server"
	"github.com/fc-gallery/nft-aggregator/internal/cache"
	"github.com/fc-gallery/nft-aggregator/internal/config"
	"github.com/fc-gallery/nft-aggregator/internal/domain"
	"github.com/fc-gallery/nft-aggregator/internal/friends"
	"github.com/fc-gallery/nft-aggregator/internal/logger"
	"github.com/fc-gallery/nft-aggregator/internal/providers/alchemy"
	"github.com/fc-gallery/nft-aggregator/internal/providers/farcaster"
	"github.com/fc-gallery/nft-aggregator/internal/ratelimit"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Service:   "api-server",
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting NFT aggregator API")

	// Optional persistent cache mirror
	var mirror cache.Mirror
	if cfg.Cache.Redis.Enabled {
		redisMirror := cache.NewRedisMirror(cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB)
		if err := redisMirror.Ping(ctx); err != nil {
			logger.FatalCtx(ctx, "Failed to connect to Redis", zap.Error(err), zap.String("addr", cfg.Cache.Redis.Addr))
		}
		defer func() {
			_ = redisMirror.Close()
		}()
		mirror = redisMirror
		logger.InfoCtx(ctx, "Connected to Redis cache mirror", zap.String("addr", cfg.Cache.Redis.Addr))
	}

	// Cache layer shared by the aggregation and friends paths
	store := cache.New(cache.Options{
		Version:       cfg.Cache.Version,
		LoaderTimeout: cfg.Aggregator.AdapterTimeout,
		SweepInterval: cfg.Cache.SweepInterval,
		Mirror:        mirror,
	})
	defer store.Close()

	// Rate limit proxy shared by both upstream clients
	rateLimitProxy, err := ratelimit.NewProxy(cfg.RateLimiter)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create rate limit proxy", zap.Error(err))
	}
	defer func() {
		_ = rateLimitProxy.Close()
	}()

	// Upstream clients with retrying HTTP adapter
	retryPolicy := adapter.RetryPolicy{
		MaxRetries:   uint64(cfg.Aggregator.MaxRetries),
		InitialDelay: cfg.Aggregator.InitialRetryDelay,
	}
	httpClient := adapter.NewHTTPClient(cfg.Aggregator.AdapterTimeout, retryPolicy)

	identityClient := farcaster.NewClient(httpClient, rateLimitProxy, cfg.Farcaster.APIURL, cfg.Farcaster.APIKey)

	chains, err := cfg.Aggregator.DomainChains()
	if err != nil {
		logger.FatalCtx(ctx, "Invalid chain configuration", zap.Error(err))
	}
	chainURLs := make(map[domain.Chain]string, len(chains))
	for _, chain := range chains {
		url, _ := cfg.NFTProvider.URLForChain(chain)
		chainURLs[chain] = url
	}
	nftClient := alchemy.NewClient(httpClient, rateLimitProxy, chainURLs, cfg.NFTProvider.APIKey)

	// Aggregation core
	agg := aggregator.New(identityClient, nftClient, store, aggregator.Options{
		Chains:              chains,
		PerChainParallelism: cfg.Aggregator.PerChainParallelism,
		PageSize:            cfg.Aggregator.PageSize,
		RequestTimeout:      cfg.Aggregator.RequestTimeout,
		IdentityTTL:         cfg.Cache.IdentityTTL,
		NFTsTTL:             cfg.Cache.NFTsTTL,
	})
	friendsResolver := friends.New(identityClient, nftClient, store, friends.Options{
		FollowingTTL: cfg.Cache.FollowingTTL,
		OwnersTTL:    cfg.Cache.OwnersTTL,
	})

	imageProxy := rest.NewImageProxy(httpClient, cfg.ImageProxy.AllowedHostPrefixes, cfg.ImageProxy.CacheMaxAge)
	handler := rest.NewHandler(agg, friendsResolver, imageProxy)

	serverConfig := server.Config{
		Debug:          cfg.Debug,
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeout) * time.Second,
		FrontendOrigin: cfg.Server.FrontendOrigin,
		AuthEnabled:    cfg.Auth.Enabled,
		Auth: middleware.AuthConfig{
			JWTPublicKey: cfg.Auth.JWTPublicKey,
			APIKeys:      cfg.Auth.APIKeys,
		},
	}

	srv := server.New(serverConfig, handler)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	logger.Info("API server stopped")
}
