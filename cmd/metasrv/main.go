// Command metasrv runs the metadata-plane process: the Kv Metastore Client
// (C1), the Region-Migration Manager (C7) driving the Procedure Engine (C5),
// and the HTTP frontend (migrate_region / procedure_state / partitions).
// Grounded on the teacher's restapi/main/main.go entrypoint, generalized from
// a single in-process router.Run call into a construction-time wiring of
// every component spec.md §9 names instead of package-level globals.
package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/redis/go-redis/v9"

	"github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/internal/datanode"
	"github.com/stratadb/stratadb/internal/frontend"
	"github.com/stratadb/stratadb/internal/heartbeat"
	"github.com/stratadb/stratadb/internal/metastore"
	"github.com/stratadb/stratadb/internal/migration"
	"github.com/stratadb/stratadb/internal/procedure"
	"github.com/stratadb/stratadb/internal/selector"
)

func main() {
	stratadb.ConfigureLogging()

	metastoreClient, err := connectMetastore()
	if err != nil {
		slog.Error("metasrv: connect metastore", "err", err)
		os.Exit(1)
	}

	routes := metastore.NewRoutes(metastoreClient)
	store := procedure.NewMetastoreStore(metastoreClient)
	engine := procedure.NewEngine(store, envUint("STRATADB_PROCEDURE_MAX_RETRIES", 5))

	redisClient := redis.NewClient(&redis.Options{Addr: envOr("STRATADB_REDIS_ADDR", "localhost:6379")})
	bus := heartbeat.NewBus(redisClient)
	leases := heartbeat.NewLeaseManager(redisClient)

	rpcTimeout := envDuration("STRATADB_DATANODE_RPC_TIMEOUT", 5*time.Second)
	dial := func(peer stratadb.Peer) datanode.Facade { return datanode.NewHTTPClient(peer, rpcTimeout) }
	deps := migration.NewDeps(
		dial,
		routes,
		leases,
		migration.RoutesPeerLister(routes),
		envUint("STRATADB_REPLICATE_LAG_THRESHOLD", 0),
		envDuration("STRATADB_LEASE_TTL", 30*time.Second),
		envDuration("STRATADB_FREEZE_GRACE", 2*time.Second),
		int(envUint("STRATADB_INVALIDATE_FANOUT", 8)),
	)

	livenessWindow := envDuration("STRATADB_LIVENESS_WINDOW", 10*time.Second)
	manager := migration.NewManager(engine, store, routes, bus, livenessWindow, deps)

	if err := engine.Resume(context.Background(), func(kind string) []procedure.Step {
		if kind == migration.Kind {
			return migration.Steps(deps)
		}
		return nil
	}); err != nil {
		slog.Error("metasrv: resume in-flight procedures", "err", err)
	}

	router := frontend.NewRouter(&frontend.Context{Manager: manager, Routes: routes, Selector: newSelector(bus, routes)})
	addr := envOr("STRATADB_METASRV_ADDR", ":8080")
	slog.Info("metasrv: listening", "addr", addr)
	if err := router.Run(addr); err != nil {
		slog.Error("metasrv: serve", "err", err)
		os.Exit(1)
	}
}

func connectMetastore() (metastore.Client, error) {
	hosts := strings.Split(envOr("STRATADB_CASSANDRA_HOSTS", ""), ",")
	if len(hosts) == 1 && hosts[0] == "" {
		slog.Warn("metasrv: STRATADB_CASSANDRA_HOSTS unset, falling back to an in-memory metastore (dev only)")
		return metastore.NewMemStore(), nil
	}
	cfg := metastore.CassandraConfig{
		ClusterHosts: hosts,
		Keyspace:     envOr("STRATADB_CASSANDRA_KEYSPACE", "stratadb"),
		Table:        envOr("STRATADB_CASSANDRA_TABLE", "metastore"),
		Consistency:  gocql.Quorum,
	}
	return metastore.NewCassandraClient(cfg)
}

func newSelector(bus *heartbeat.Bus, routes *metastore.Routes) selector.Selector {
	peers := parsePeers(envOr("STRATADB_SELECTOR_PEERS", ""))

	expr := envOr("STRATADB_SELECTOR_POLICY", "")
	if expr == "" {
		return selector.NewConstNodeSelector(peers...)
	}
	facts := selector.NewRouteFactsProvider(peers, bus, routes, envDuration("STRATADB_LIVENESS_WINDOW", 10*time.Second))
	policy, err := selector.NewPolicySelector(facts, expr)
	if err != nil {
		slog.Error("metasrv: compile STRATADB_SELECTOR_POLICY, falling back to the fixed roster", "err", err)
		return selector.NewConstNodeSelector(peers...)
	}
	return policy
}

func parsePeers(csv string) []stratadb.Peer {
	var out []stratadb.Peer
	for _, p := range strings.Split(csv, ",") {
		if p == "" {
			continue
		}
		id, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, stratadb.Peer{ID: id})
	}
	return out
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
