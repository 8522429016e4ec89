// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Persistence sinks for store masters (C12), grounded on gnunet-go's
// service/store.go FileStore/RedisStore/SQLStore: same three backends,
// the SQL sink assumes its schema already exists and fails fast if not
// (the file sink creates its directory when missing), but mirroring a generic {op,key,value} store event instead
// of a DHT query/block pair.

package store

import (
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"os"
	"strconv"

	"meshbus/util"

	"github.com/bfix/gospel/logger"
	redis "github.com/go-redis/redis/v8"
)

// ErrSinkInvalidSpec is returned when a sink factory is missing a
// required parameter.
var ErrSinkInvalidSpec = errors.New("invalid store sink specification")

// NewSink builds a persistence sink of the given kind ("file", "redis"
// or "sql") from params. kind "none" (or empty) yields a nil sink.
func NewSink(kind string, params map[string]string) (Sink, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "file":
		path, ok := params["path"]
		if !ok {
			return nil, ErrSinkInvalidSpec
		}
		return NewFileSink(path)
	case "redis":
		return NewRedisSink(params)
	case "sql":
		connect, ok := params["connect"]
		if !ok {
			return nil, ErrSinkInvalidSpec
		}
		return NewSQLSink(connect)
	}
	return nil, errors.New("unknown store sink kind")
}

//------------------------------------------------------------
// Filesystem-based sink
//------------------------------------------------------------

// FileSink mirrors a store's key/value pairs into a single gob-encoded
// file, rewritten in full on every event. Adequate for an operator's
// at-rest copy of a small configuration-style store, not a high
// throughput log.
type FileSink struct {
	path string
	data map[string][]byte
}

// NewFileSink opens (or creates) a file-backed sink at path.
func NewFileSink(path string) (*FileSink, error) {
	if err := util.EnforceDirExists(path); err != nil {
		return nil, err
	}
	s := &FileSink{path: path, data: make(map[string][]byte)}
	if fp, err := os.Open(path + "/store.db"); err == nil {
		defer fp.Close()
		_ = gob.NewDecoder(fp).Decode(&s.data)
	}
	return s, nil
}

// Apply mirrors ev into the in-memory map and rewrites the backing file.
func (s *FileSink) Apply(id string, ev SinkEvent) error {
	switch ev.Op {
	case string(opErase):
		delete(s.data, ev.Key)
	default:
		s.data[ev.Key] = ev.Value
	}
	fp, err := os.Create(s.path + "/store.db")
	if err != nil {
		return err
	}
	defer fp.Close()
	return gob.NewEncoder(fp).Encode(s.data)
}

// Close is a no-op; every Apply already flushed to disk.
func (s *FileSink) Close() error {
	return nil
}

//------------------------------------------------------------
// Redis-backed sink
//------------------------------------------------------------

// RedisSink mirrors a store into a Redis database, namespacing keys by
// store id so several masters can share one server.
type RedisSink struct {
	client *redis.Client
}

// NewRedisSink creates a Redis-backed sink from connection parameters
// "addr", "passwd" (optional) and "db".
func NewRedisSink(params map[string]string) (*RedisSink, error) {
	addr, ok := params["addr"]
	if !ok {
		return nil, ErrSinkInvalidSpec
	}
	db := 0
	if s, ok := params["db"]; ok {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, ErrSinkInvalidSpec
		}
		db = n
	}
	return &RedisSink{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: params["passwd"],
		DB:       db,
	})}, nil
}

func redisKey(id, key string) string {
	return id + ":" + key
}

// Apply mirrors ev into Redis.
func (s *RedisSink) Apply(id string, ev SinkEvent) error {
	ctx := context.Background()
	if ev.Op == string(opErase) {
		return s.client.Del(ctx, redisKey(id, ev.Key)).Err()
	}
	return s.client.Set(ctx, redisKey(id, ev.Key), ev.Value, 0).Err()
}

// Close releases the Redis client connection.
func (s *RedisSink) Close() error {
	return s.client.Close()
}

//------------------------------------------------------------
// SQL-backed sink
//------------------------------------------------------------

// SQLSink mirrors a store into a SQL table (MySQL or SQLite, selected
// by connect's scheme). Assumes a pre-existing
// `store_kv(store_id text, key text, value blob)` table; fails fast if
// the schema is missing rather than attempting to create it.
type SQLSink struct {
	db *sql.DB
}

// NewSQLSink opens a SQL-backed sink using connect (see
// util.ConnectSqlDatabase for the "driver:dsn" spec format).
func NewSQLSink(connect string) (*SQLSink, error) {
	db, err := util.ConnectSqlDatabase(connect)
	if err != nil {
		return nil, err
	}
	row := db.QueryRow("select count(*) from store_kv")
	var n int
	if err := row.Scan(&n); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLSink{db: db}, nil
}

// Apply mirrors ev into the store_kv table.
func (s *SQLSink) Apply(id string, ev SinkEvent) error {
	if ev.Op == string(opErase) {
		_, err := s.db.Exec("delete from store_kv where store_id=? and key=?", id, ev.Key)
		return err
	}
	if _, err := s.db.Exec("delete from store_kv where store_id=? and key=?", id, ev.Key); err != nil {
		logger.Printf(logger.WARN, "[store] sql sink delete-before-insert failed: %s", err.Error())
	}
	_, err := s.db.Exec("insert into store_kv(store_id,key,value) values(?,?,?)", id, ev.Key, ev.Value)
	return err
}

// Close releases the underlying database handle.
func (s *SQLSink) Close() error {
	return s.db.Close()
}
