package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArkLabsHQ/bitswap/internal/config"
	"github.com/ArkLabsHQ/bitswap/internal/core/application"
	"github.com/ArkLabsHQ/bitswap/internal/core/ports"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/chain/memchain"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/db"
	badgerdb "github.com/ArkLabsHQ/bitswap/internal/infrastructure/db/badger"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/esplora"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/relay"
	scheduler "github.com/ArkLabsHQ/bitswap/internal/infrastructure/scheduler/gocron"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/telemetry"
	"github.com/ArkLabsHQ/bitswap/internal/infrastructure/wallet"
	grpcservice "github.com/ArkLabsHQ/bitswap/internal/interface/grpc"
	"github.com/ArkLabsHQ/bitswap/utils"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	sentryDsn = ""
)

const (
	walletPollInterval = 200 * time.Millisecond
	walletPollAttempts = 15
	regtestFaucet      = 1_000_000
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	if cfg.ProfilingEnabled {
		go func() {
			pprofAddr := ":6060"
			log.Infof("starting pprof server on %s", pprofAddr)
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				log.WithError(err).Error("pprof server failed")
			}
		}()
	}

	sentryEnabled := !cfg.DisableTelemetry && sentryDsn != ""
	flushSentry := func() {}
	if sentryEnabled {
		if flushSentry, err = telemetry.InitSentry(sentryDsn, version); err != nil {
			log.WithError(err).Fatal("failed to init sentry")
		}
	}

	log.Infof("starting bitswapd on %s...", cfg.Network)
	ctx := context.Background()

	var chain *memchain.Chain
	if cfg.IsRegtest() {
		chain = memchain.New()
	} else {
		chain = memchain.New(memchain.WithHeightSource(esplora.NewService(cfg.EsploraURL)))
	}

	if cfg.IsRegtest() && cfg.Mnemonic == "" {
		if err := ensureSeedFile(cfg.SeedFile()); err != nil {
			log.WithError(err).Fatal("failed to create regtest seed")
		}
	}

	sources := make([]wallet.SeedSource, 0, 2)
	if cfg.Mnemonic != "" {
		sources = append(sources, wallet.StaticSeed(cfg.Mnemonic))
	}
	sources = append(sources, wallet.FileSeed(cfg.SeedFile()))

	w, err := wallet.Acquire(
		ctx, wallet.NewDiscovery(chain, sources...), walletPollInterval, walletPollAttempts,
	)
	if err != nil {
		log.WithError(err).Fatalf(
			"no wallet available, set BITSWAP_MNEMONIC or write a seed phrase to %s",
			cfg.SeedFile(),
		)
	}
	identityKey, ok := wallet.IdentityKey(w)
	if !ok {
		log.Fatal("wallet does not expose an identity key")
	}
	identity, err := w.PublicKey(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to get wallet public key")
	}
	log.Infof("identity %s", identity)

	if cfg.IsRegtest() {
		for _, token := range cfg.Tokens {
			chain.Fund(identity, token, decimal.NewFromInt(regtestFaucet))
		}
		log.Infof("funded %d tokens from the regtest faucet", len(cfg.Tokens))
	}

	dbSvc, err := db.NewService(db.ServiceConfig{
		DbType:   cfg.DbType,
		DbConfig: []any{cfg.Datadir, badgerdb.NewLogger(), secretsKey(identityKey)},
	})
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}

	broadcaster, err := relay.NewBroadcaster(cfg.RelayURLs, identityKey)
	if err != nil {
		log.WithError(err).Fatal("failed to init broadcaster")
	}

	verifier := relay.NewVerifier()
	book, err := application.NewOrderBook(cfg.OrderbookCapacity, verifier, cfg.Tokens)
	if err != nil {
		log.WithError(err).Fatal("failed to init order book")
	}

	schedulerSvc := scheduler.NewScheduler(chain, cfg.PollIntervalDuration())
	if cfg.IsRegtest() {
		mineBlocks(schedulerSvc, chain, cfg.PollIntervalDuration())
	}

	buildInfo := application.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	appSvc, err := application.NewService(
		ctx, buildInfo,
		application.Config{
			Topic:        cfg.Topic,
			RefundDelta:  cfg.RefundDelta,
			Tokens:       cfg.Tokens,
			AutoClaim:    cfg.AutoClaim,
			SyncInterval: cfg.SyncIntervalDuration(),
		},
		w, verifier, broadcaster, chain, chain, schedulerSvc, dbSvc, book,
	)
	if err != nil {
		log.WithError(err).Fatal("failed to init application service")
	}
	appSvc.OnFatal(func(err error) {
		log.WithError(err).Fatal("commitment engine halted")
	})

	svc, err := grpcservice.NewService(grpcservice.Config{
		GRPCPort:      cfg.GRPCPort,
		HTTPPort:      cfg.HTTPPort,
		WithTLS:       cfg.WithTLS,
		NoMetrics:     cfg.NoMetrics,
		SentryEnabled: sentryEnabled,
		PyroscopeURL:  cfg.PyroscopeURL,
	}, appSvc)
	if err != nil {
		log.WithError(err).Fatal("failed to init interface service")
	}

	log.RegisterExitHandler(func() {
		svc.Stop()
		broadcaster.Close()
		dbSvc.Close()
		flushSentry()
	})

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		log.Fatal(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
}

// secretsKey derives the key encrypting the secret store from the identity.
func secretsKey(identityKey string) []byte {
	key, _ := hex.DecodeString(identityKey)
	digest := sha256.Sum256(append([]byte("bitswap/secrets/"), key...))
	return digest[:]
}

func ensureSeedFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	mnemonic, err := utils.NewMnemonic()
	if err != nil {
		return err
	}
	log.Warnf("generated a new regtest seed at %s", path)
	return os.WriteFile(path, []byte(mnemonic+"\n"), 0600)
}

// mineBlocks advances the local chain one block per interval.
func mineBlocks(s ports.SchedulerService, chain *memchain.Chain, interval time.Duration) {
	if err := s.Every(interval, func() {
		height := chain.Mine(1)
		log.Debugf("mined block %d", height)
	}); err != nil {
		log.WithError(err).Fatal("failed to schedule regtest miner")
	}
}
