package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/altuslabsxyz/txexec/internal/config"
	"github.com/altuslabsxyz/txexec/internal/ethconn"
	"github.com/altuslabsxyz/txexec/internal/executor"
	"github.com/altuslabsxyz/txexec/internal/metrics"
	"github.com/altuslabsxyz/txexec/internal/queue"
	"github.com/altuslabsxyz/txexec/internal/store"
	"github.com/altuslabsxyz/txexec/internal/types"
)

// session owns every component a command needs to submit or await
// transactions. Close releases them in reverse order.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *ethconn.Client
	exec    *executor.Executor
	store   store.Store
	tracker *store.Tracker
	metrics *metrics.Metrics
	server  *http.Server
	stopGas context.CancelFunc
	gasDone chan struct{}
}

type sessionOptions struct {
	gasSetting   types.AutoGasSetting
	beforeQueued executor.BeforeQueued
}

func loadKey(cfg *config.Config) (*ecdsa.PrivateKey, error) {
	if cfg.Account.PrivateKey != "" {
		return ethconn.ParsePrivateKey(cfg.Account.PrivateKey)
	}
	key, err := ethconn.LoadPrivateKey(cfg.Account.KeyFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no signing key: set %s or create %s", config.EnvPrivateKey, cfg.Account.KeyFile)
		}
		return nil, err
	}
	return key, nil
}

func openSession(ctx context.Context, cfg *config.Config, opts sessionOptions) (*session, error) {
	logger := newLogger(cfg)

	key, err := loadKey(cfg)
	if err != nil {
		return nil, err
	}

	client := ethconn.NewClient(cfg.RPC.Endpoint, ethconn.AddressOf(key),
		ethconn.WithPollInterval(cfg.RPC.ReceiptPollInterval),
		ethconn.WithLogger(logger),
	)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, logger: logger, client: client}

	if want := cfg.RPC.ChainID; want != 0 && client.ChainID().Int64() != want {
		s.Close()
		return nil, fmt.Errorf("chain id mismatch: node reports %s, config expects %d", client.ChainID(), want)
	}

	auth, err := ethconn.NewTransactor(key, client.ChainID())
	if err != nil {
		s.Close()
		return nil, err
	}

	if err := client.RefreshGasPrices(ctx); err != nil {
		logger.Warn("using default gas prices", "error", err)
	}
	gasCtx, stopGas := context.WithCancel(context.WithoutCancel(ctx))
	s.stopGas = stopGas
	s.gasDone = make(chan struct{})
	go func() {
		defer close(s.gasDone)
		client.RunGasPriceUpdater(gasCtx, cfg.RPC.GasRefreshInterval)
	}()

	persisted, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.store = persisted
	s.tracker = store.NewTracker(persisted)
	s.tracker.SetLogger(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.metrics = metrics.New(reg)
	if cfg.Metrics.Listen != "" {
		s.serveMetrics(reg)
	}

	gasSetting := opts.gasSetting
	if gasSetting == "" {
		gasSetting = types.AutoGasSetting(cfg.Executor.GasSetting)
	}

	exec, err := executor.New(client, executor.Options{
		Auth:               auth,
		DefaultTxOptions:   types.Overrides{GasLimit: cfg.Executor.DefaultGasLimit},
		GasSettingProvider: executor.StaticGasSetting(gasSetting),
		BeforeQueued:       opts.beforeQueued,
		AfterTransaction:   s.metrics.ObserveEvent,
		Queue: queue.Config{
			InvocationInterval:        cfg.Queue.InvocationInterval,
			MaxInvocationsPerInterval: cfg.Queue.MaxInvocationsPerInterval,
			MaxConcurrency:            cfg.Queue.MaxConcurrency,
		},
		SingleWallet:  !cfg.Executor.MultipleWallets,
		SubmitTimeout: cfg.Executor.SubmitTimeout,
		Logger:        logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	exec.SetDiagnosticUpdater(s.metrics)
	s.exec = exec

	logger.Debug("session ready",
		"rpc", cfg.RPC.Endpoint,
		"chain_id", client.ChainID(),
		"account", client.Address().Hex(),
		"gas_setting", gasSetting)
	return s, nil
}

func (s *session) serveMetrics(g prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	s.server = &http.Server{
		Addr:              s.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics listener failed", "listen", s.cfg.Metrics.Listen, "error", err)
		}
	}()
	s.logger.Info("serving metrics", "listen", s.cfg.Metrics.Listen)
}

// loadContract parses the ABI at path and binds it to addr.
func (s *session) loadContract(addr, abiPath string) (*ethconn.Contract, error) {
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("invalid contract address %q", addr)
	}
	parsed, err := ethconn.LoadABI(abiPath)
	if err != nil {
		return nil, err
	}
	return ethconn.NewContract(common.HexToAddress(addr), parsed, s.client.Backend()), nil
}

// Close waits for tracked transactions to settle their records, then
// shuts everything down.
func (s *session) Close() error {
	var errs error
	if s.exec != nil {
		s.exec.Close()
	}
	if s.tracker != nil {
		s.tracker.Wait()
	}
	if s.stopGas != nil {
		s.stopGas()
		<-s.gasDone
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.server.Shutdown(ctx); err != nil {
			errs = errors.Join(errs, err)
		}
		cancel()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
