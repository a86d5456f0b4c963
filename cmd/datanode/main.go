// Command datanode runs a single datanode process: the Cache Hierarchy (C4)
// and the Datanode Facade (C2) server the metasrv drives during a region
// migration, plus a heartbeat publisher loop (C3) and a Prometheus /metrics
// endpoint. Grounded on the teacher's restapi/main/main.go entrypoint,
// generalized to a datanode-side process instead of the cluster frontend.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/internal/cachehierarchy"
	"github.com/stratadb/stratadb/internal/datanode"
	"github.com/stratadb/stratadb/internal/heartbeat"
)

func main() {
	stratadb.ConfigureLogging()

	peer := stratadb.Peer{
		ID:   envUint("STRATADB_DATANODE_ID", 1),
		Addr: envOr("STRATADB_DATANODE_ADDR", "localhost:8090"),
	}

	reg := prometheus.NewRegistry()
	metrics := cachehierarchy.NewMetrics(reg)
	hierarchy := cachehierarchy.New(cachehierarchy.Budgets{
		SSTMeta: envInt64("STRATADB_CACHE_SST_META_BYTES", 64<<20),
		Vector:  envInt64("STRATADB_CACHE_VECTOR_BYTES", 16<<20),
		Page:    envInt64("STRATADB_CACHE_PAGE_BYTES", 128<<20),
		File:    envInt64("STRATADB_CACHE_FILE_BYTES", 0),
	}, nil, objectStore(), metrics)

	store := datanode.NewRegionStore(hierarchy)
	server := datanode.NewServer(store)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if redisAddr := envOr("STRATADB_REDIS_ADDR", ""); redisAddr != "" {
		bus := heartbeat.NewBus(redis.NewClient(&redis.Options{Addr: redisAddr}))
		go runHeartbeatLoop(ctx, bus, peer, envDuration("STRATADB_HEARTBEAT_INTERVAL", 2*time.Second))
	} else {
		slog.Warn("datanode: STRATADB_REDIS_ADDR unset, heartbeat publishing disabled")
	}

	metricsAddr := envOr("STRATADB_DATANODE_METRICS_ADDR", ":9090")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		slog.Info("datanode: metrics listening", "addr", metricsAddr)
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			slog.Error("datanode: metrics server", "err", err)
		}
	}()

	slog.Info("datanode: listening", "addr", peer.Addr, "id", peer.ID)
	if err := server.Run(peer.Addr); err != nil {
		slog.Error("datanode: serve", "err", err)
		os.Exit(1)
	}
}

// runHeartbeatLoop publishes this datanode's liveness on a fixed tick until
// ctx is cancelled (spec.md §4.7). Region-status reporting is left empty
// here: a real engine would populate it from the regions it hosts as they
// open/advance, a seam RegionStore.SeedManifest exists for.
func runHeartbeatLoop(ctx context.Context, bus *heartbeat.Bus, peer stratadb.Peer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := heartbeat.Report{Peer: peer, Timestamp: time.Now()}
			if err := bus.Report(ctx, report, interval*5); err != nil {
				slog.Warn("datanode: publish heartbeat", "err", err)
			}
		}
	}
}

func objectStore() cachehierarchy.ObjectStore {
	region := envOr("STRATADB_S3_REGION", "")
	if region == "" {
		return nil
	}
	cfg := aws.Config{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			envOr("STRATADB_S3_ACCESS_KEY_ID", ""),
			envOr("STRATADB_S3_SECRET_ACCESS_KEY", ""),
			"",
		),
	}
	client := s3.NewFromConfig(cfg)
	return cachehierarchy.NewS3ObjectStore(client)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envUint(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
