package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stakepool/config"
	"stakepool/core/events"
	"stakepool/core/types"
	"stakepool/crypto"
	"stakepool/native/stakepool"
	"stakepool/observability/logging"
	"stakepool/rpc"
	statestore "stakepool/state/stakepool"
	"stakepool/storage"
)

// logEmitter forwards pool events to the structured logger so operators can
// follow state transitions without an external indexer.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	args := []any{slog.String("type", evt.EventType())}
	if payload, ok := evt.(interface{ Event() *types.Event }); ok {
		if converted := payload.Event(); converted != nil {
			for key, value := range converted.Attributes {
				args = append(args, slog.String(key, value))
			}
		}
	}
	l.logger.Info("pool event", args...)
}

func main() {
	configPath := flag.String("config", "./stakepoold.toml", "path to the daemon configuration file")
	env := flag.String("env", "", "deployment environment label attached to log lines")
	flag.Parse()

	logger := logging.Setup("stakepoold", *env)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "pool"))
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	store := statestore.NewStore(db)
	engine := stakepool.NewEngine()
	engine.SetState(store)
	engine.SetPauses(cfg)
	engine.SetEmitter(logEmitter{logger: logger})

	if err := initializePool(engine, cfg, logger); err != nil {
		logger.Error("failed to initialise pool", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server := rpc.NewServer(engine, cfg.RPCAuthToken)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Handle("/rpc", server)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting JSON-RPC server", slog.String("addr", cfg.ListenAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
}

// initializePool creates the pool record from the configured genesis
// parameters when it does not exist yet.
func initializePool(engine *stakepool.Engine, cfg *config.Config, logger *slog.Logger) error {
	if _, err := engine.PoolSnapshot(); err == nil {
		return nil
	} else if !errors.Is(err, stakepool.ErrNotInitialized) {
		return err
	}

	if strings.TrimSpace(cfg.Pool.Manager) == "" || strings.TrimSpace(cfg.Pool.StakeAsset) == "" {
		return errors.New("pool record missing and no genesis parameters configured")
	}
	manager, err := crypto.DecodeAddress(cfg.Pool.Manager)
	if err != nil {
		return err
	}
	stakeAsset, err := crypto.DecodeAddress(cfg.Pool.StakeAsset)
	if err != nil {
		return err
	}
	var initialReward *stakepool.RewardAssetInit
	if strings.TrimSpace(cfg.Pool.RewardAsset) != "" {
		rewardAsset, err := crypto.DecodeAddress(cfg.Pool.RewardAsset)
		if err != nil {
			return err
		}
		initialReward = &stakepool.RewardAssetInit{
			Asset:    rewardAsset,
			Endpoint: cfg.Pool.RewardEndpoint,
		}
	}
	instructions, err := engine.Initialize(manager, stakeAsset, cfg.Pool.StakeEndpoint, initialReward)
	if err != nil {
		return err
	}
	for _, instr := range instructions {
		logger.Info("outbound instruction",
			slog.String("kind", string(instr.Kind)),
			slog.String("asset", instr.Asset.String()),
			slog.String("endpoint", instr.Endpoint))
	}
	return nil
}
