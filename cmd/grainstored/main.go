// Command grainstored runs a standalone background Drainer process: it
// holds no application types of its own, and instead reconciles any
// storage whose cache payloads are already canonical JSON (JSONNative
// stores) straight through to Postgres. Applications using a binary codec
// (CBOR, Msgpack, Protobuf) must run the Drainer in-process against their
// own typed Core[T] registrations instead, since grainstored has no way to
// decode their payloads; see registerPassthrough below.
//
// Each --storages entry is a storage=typeName pair: storage is the
// Core[T]'s Options.Storage, and typeName is the TypeName that Core[T]
// stamps into its cache envelopes (either set explicitly in Options, or
// T's package-qualified name if left to default). The registry.Registry
// that the Drainer consults to convert a dirty entry keys its converters
// by that TypeName, not by storage, so both must be given even though a
// single grainstored process only drains JSON-native stores.
//
// Configuration is read from flags or DRAINED_-prefixed environment
// variables (e.g. DRAINED_REDIS_ADDR), with an optional .env/.env.local
// loaded first.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	grainstore "github.com/lattice-run/grainstore"
	cacheredis "github.com/lattice-run/grainstore/cache/redis"
	"github.com/lattice-run/grainstore/drainer"
	"github.com/lattice-run/grainstore/durable/postgres"
	grainstorezap "github.com/lattice-run/grainstore/log/zap"
	"github.com/lattice-run/grainstore/metrics"
	"github.com/lattice-run/grainstore/registry"
)

var rootCmd = &cobra.Command{
	Use:     "grainstored",
	Short:   "reconcile coalesced grain-store writes to Postgres",
	Long:    `grainstored runs the background drain loop that flushes write-behind cache entries to the durable store. Configure it with --storages and the Redis/Postgres connection flags, or the matching DRAINED_ env vars.`,
	PreRunE: processConfig,
	RunE:    run,
}

// storageBinding pairs one Core[T]'s Storage name with the TypeName it
// stamps into its cache envelopes, parsed from one --storages entry.
type storageBinding struct {
	storage  string
	typeName string
}

type config struct {
	clusterID     string
	storages      []storageBinding
	redisAddr     string
	postgresDSN   string
	postgresTable string
	drainInterval time.Duration
	batchSize     int
	drainLockTTL  time.Duration
	stateTTL      time.Duration
	metricsAddr   string
}

var cfg config

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().String("cluster-id", "default", "cluster identifier namespacing every drained key")
	rootCmd.PersistentFlags().String("storages", "", "comma-separated storage=typeName pairs to drain (must be JSON-native stores), e.g. order=billing.Order,cart=billing.Cart")
	rootCmd.PersistentFlags().String("redis-addr", "localhost:6379", "Redis address backing the write-behind cache")
	rootCmd.PersistentFlags().String("postgres-dsn", "", "Postgres connection string for the durable store")
	rootCmd.PersistentFlags().String("postgres-table", "grain_documents", "durable store table name")
	rootCmd.PersistentFlags().Duration("drain-interval", 5*time.Second, "interval between drain cycles")
	rootCmd.PersistentFlags().Int("batch-size", 200, "max dirty entries popped per storage per cycle")
	rootCmd.PersistentFlags().Duration("drain-lock-ttl", 30*time.Second, "TTL of the per-storage drain lease")
	rootCmd.PersistentFlags().Duration("state-ttl", 0, "TTL re-applied to a cache entry after a successful drain (0 = none)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
}

func initViper() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("drained")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	cfg.clusterID = viper.GetString("cluster-id")
	if raw := viper.GetString("storages"); raw != "" {
		for _, pair := range strings.Split(raw, ",") {
			if pair = strings.TrimSpace(pair); pair == "" {
				continue
			}
			storage, typeName, ok := strings.Cut(pair, "=")
			storage, typeName = strings.TrimSpace(storage), strings.TrimSpace(typeName)
			if !ok || storage == "" || typeName == "" {
				return fmt.Errorf("grainstored: --storages entry %q must be storage=typeName", pair)
			}
			cfg.storages = append(cfg.storages, storageBinding{storage: storage, typeName: typeName})
		}
	}
	if len(cfg.storages) == 0 {
		return fmt.Errorf("grainstored: --storages must name at least one storage=typeName pair")
	}

	cfg.redisAddr = viper.GetString("redis-addr")
	cfg.postgresDSN = viper.GetString("postgres-dsn")
	if cfg.postgresDSN == "" {
		return fmt.Errorf("grainstored: --postgres-dsn is required")
	}
	cfg.postgresTable = viper.GetString("postgres-table")
	cfg.drainInterval = viper.GetDuration("drain-interval")
	cfg.batchSize = viper.GetInt("batch-size")
	cfg.drainLockTTL = viper.GetDuration("drain-lock-ttl")
	cfg.stateTTL = viper.GetDuration("state-ttl")
	cfg.metricsAddr = viper.GetString("metrics-addr")

	return nil
}

// registerPassthrough registers a Convert closure that treats cache data
// as already being in the durable store's expected wire shape, the
// correct behavior for any Store[T] built with JSONNative: true. It is
// the only conversion grainstored can offer without a compiled-in type.
func registerPassthrough(reg *registry.Registry, typeName string) {
	reg.Register(typeName, func(data json.RawMessage) (json.RawMessage, error) {
		return data, nil
	})
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zl, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("grainstored: build logger: %w", err)
	}
	defer zl.Sync()
	log := grainstorezap.ZapLogger{L: zl}

	pool, err := pgxpool.New(ctx, cfg.postgresDSN)
	if err != nil {
		return fmt.Errorf("grainstored: connect postgres: %w", err)
	}
	defer pool.Close()

	durableStore, err := postgres.New(postgres.Config{Pool: pool, Table: cfg.postgresTable})
	if err != nil {
		return fmt.Errorf("grainstored: build durable store: %w", err)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.redisAddr}})
	defer rdb.Close()
	cacheAdapter := cacheredis.New(rdb, log)

	var rec *metrics.Recorder
	if cfg.metricsAddr != "" {
		rec = metrics.New(nil)
		go serveMetrics(ctx, rec, cfg.metricsAddr, log)
	}

	reg := registry.New()
	drainReg := drainer.NewRegistry()
	storageNames := make([]string, 0, len(cfg.storages))
	for _, b := range cfg.storages {
		registerPassthrough(reg, b.typeName)
		drainReg.Register(grainstore.DrainBinding{
			ClusterID:     cfg.clusterID,
			Storage:       b.storage,
			DurableTenant: "",
			Tenant:        "",
			Durable:       durableStore,
			Cache:         cacheAdapter,
			Registry:      reg,
			BatchSize:     cfg.batchSize,
			DrainLockTTL:  cfg.drainLockTTL,
			StateTTL:      cfg.stateTTL,
		})
		storageNames = append(storageNames, b.storage)
	}

	log.Info("grainstored starting", grainstore.Fields{
		"cluster_id": cfg.clusterID,
		"storages":   storageNames,
		"interval":   cfg.drainInterval.String(),
	})

	d := drainer.New(drainReg, cfg.drainInterval, log, grainstore.NopHooks{}, rec)
	d.Run(ctx)

	log.Info("grainstored stopped", grainstore.Fields{"owner": d.Owner()})
	return nil
}

func serveMetrics(ctx context.Context, rec *metrics.Recorder, addr string, log grainstore.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		rec.WritePrometheus(w)
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("metrics server exited", grainstore.Fields{"error": err})
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
