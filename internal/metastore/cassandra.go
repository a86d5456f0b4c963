package metastore

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
)

// CassandraConfig names the cluster and keyspace backing a CassandraClient,
// mirroring the teacher's connection config shape (in_red_ck/cassandra).
type CassandraConfig struct {
	ClusterHosts []string
	Keyspace     string
	Table        string
	Consistency  gocql.Consistency
}

// CassandraClient is a Client backed by Cassandra lightweight transactions
// (`UPDATE ... IF ver = ?`), grounded on the teacher's registry CAS pattern in
// in_red_ck/cassandra/registry.go, which used a Handle.Version column the same
// way this uses Entry.Version.
type CassandraClient struct {
	session *gocql.Session
	table   string
}

// NewCassandraClient dials cfg.ClusterHosts and returns a Client whose reads
// and CAS writes run against cfg.Keyspace.cfg.Table.
func NewCassandraClient(cfg CassandraConfig) (*CassandraClient, error) {
	cluster := gocql.NewCluster(cfg.ClusterHosts...)
	cluster.Keyspace = cfg.Keyspace
	if cfg.Consistency != 0 {
		cluster.Consistency = cfg.Consistency
	} else {
		cluster.Consistency = gocql.Quorum
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("metastore: connect to cassandra: %w", err)
	}
	return &CassandraClient{session: session, table: cfg.Table}, nil
}

// Close releases the underlying Cassandra session.
func (c *CassandraClient) Close() {
	c.session.Close()
}

func (c *CassandraClient) Get(ctx context.Context, key string) (Entry, error) {
	var value []byte
	var version uint64
	q := fmt.Sprintf("SELECT value, ver FROM %s WHERE key = ?", c.table)
	if err := c.session.Query(q, key).WithContext(ctx).Scan(&value, &version); err != nil {
		if err == gocql.ErrNotFound {
			return Entry{}, ErrNotFound
		}
		return Entry{}, err
	}
	return Entry{Key: key, Value: value, Version: version}, nil
}

func (c *CassandraClient) Put(ctx context.Context, key string, value []byte) (Entry, error) {
	existing, err := c.Get(ctx, key)
	expected := uint64(0)
	if err == nil {
		expected = existing.Version
	} else if err != ErrNotFound {
		return Entry{}, err
	}
	for {
		e, err := c.CompareAndSwap(ctx, key, expected, value)
		if err == ErrVersionMismatch {
			existing, getErr := c.Get(ctx, key)
			if getErr != nil && getErr != ErrNotFound {
				return Entry{}, getErr
			}
			expected = existing.Version
			continue
		}
		return e, err
	}
}

// CompareAndSwap issues a Cassandra lightweight transaction: an INSERT ... IF
// NOT EXISTS when expectedVersion is 0, else an UPDATE ... IF ver = ?.
func (c *CassandraClient) CompareAndSwap(ctx context.Context, key string, expectedVersion uint64, newValue []byte) (Entry, error) {
	newVersion := expectedVersion + 1
	var applied bool
	if expectedVersion == 0 {
		q := fmt.Sprintf("INSERT INTO %s (key, value, ver) VALUES (?, ?, ?) IF NOT EXISTS", c.table)
		var casErr error
		applied, casErr = c.session.Query(q, key, newValue, newVersion).WithContext(ctx).MapScanCAS(map[string]interface{}{})
		if casErr != nil {
			return Entry{}, casErr
		}
		if !applied {
			return Entry{}, ErrVersionMismatch
		}
	} else {
		q := fmt.Sprintf("UPDATE %s SET value = ?, ver = ? WHERE key = ? IF ver = ?", c.table)
		var appliedCheck map[string]interface{} = map[string]interface{}{}
		var casErr error
		applied, casErr = c.session.Query(q, newValue, newVersion, key, expectedVersion).WithContext(ctx).MapScanCAS(appliedCheck)
		if casErr != nil {
			return Entry{}, casErr
		}
		if !applied {
			return Entry{}, ErrVersionMismatch
		}
	}
	return Entry{Key: key, Value: newValue, Version: newVersion}, nil
}

func (c *CassandraClient) Delete(ctx context.Context, key string) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE key = ?", c.table)
	return c.session.Query(q, key).WithContext(ctx).Exec()
}

func (c *CassandraClient) List(ctx context.Context, keyPrefix string) ([]Entry, error) {
	q := fmt.Sprintf("SELECT key, value, ver FROM %s", c.table)
	iter := c.session.Query(q).WithContext(ctx).Iter()
	var out []Entry
	var key string
	var value []byte
	var version uint64
	for iter.Scan(&key, &value, &version) {
		if len(key) >= len(keyPrefix) && key[:len(keyPrefix)] == keyPrefix {
			out = append(out, Entry{Key: key, Value: append([]byte(nil), value...), Version: version})
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}
