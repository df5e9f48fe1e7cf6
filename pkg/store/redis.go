package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig mirrors the teacher's cache.Config: address/auth/pool sizing
// for a Redis/DragonflyDB connection used as a JobStore backend.
type RedisConfig struct {
	Address  string
	Password string
	Database int
	PoolSize int
	Prefix   string
}

// DefaultRedisConfig returns sensible local-development defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Address:  "localhost:6379",
		Database: 0,
		PoolSize: 10,
	}
}

// RedisStore implements Store on top of Redis/DragonflyDB: each document is
// a JSON string under its own key "<prefix>:<collection>:<uuid>:<index>",
// with a per-uuid sorted set (scored by index) so "latest for uuid" is a
// single ZREVRANGE.
type RedisStore struct {
	client *redis.Client
	cfg    RedisConfig
}

// NewRedisStore opens a Redis/DragonflyDB-backed store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.Database,
		PoolSize: cfg.PoolSize,
	})
	return &RedisStore{client: client, cfg: cfg}, nil
}

func (r *RedisStore) Connect(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(cctx).Err(); err != nil {
		return fmt.Errorf("store: connect to %s: %w", r.cfg.Address, err)
	}
	return nil
}

func (r *RedisStore) Close(ctx context.Context) error {
	return r.client.Close()
}

func (r *RedisStore) key(collection string) string {
	if r.cfg.Prefix == "" {
		return "jobflow:" + collection
	}
	return r.cfg.Prefix + ":jobflow:" + collection
}

func (r *RedisStore) zkey(collection string, id uuid.UUID) string {
	return r.key(collection) + ":idx:" + id.String()
}

// uuidsKey is a per-collection Redis set of every uuid ever Put, maintained
// so Query can support a nil-UUID scan (Query's documented "nil UUID matches
// any document" contract) without a Redis KEYS/SCAN sweep.
func (r *RedisStore) uuidsKey(collection string) string {
	return r.key(collection) + ":uuids"
}

func (r *RedisStore) docKey(collection string, id uuid.UUID, index int) string {
	return fmt.Sprintf("%s:%s:%d", r.key(collection), id, index)
}

type wireDocument struct {
	UUID        string         `json:"uuid"`
	Index       int            `json:"index"`
	Output      any            `json:"output"`
	CompletedAt time.Time      `json:"completed_at"`
	Metadata    map[string]any `json:"metadata"`
	Hosts       []string       `json:"hosts"`
	Name        string         `json:"name"`
	StoredData  map[string]any `json:"stored_data"`
}

func toWire(d Document) wireDocument {
	hosts := make([]string, len(d.Hosts))
	for i, h := range d.Hosts {
		hosts[i] = h.String()
	}
	return wireDocument{
		UUID:        d.UUID.String(),
		Index:       d.Index,
		Output:      d.Output,
		CompletedAt: d.CompletedAt,
		Metadata:    d.Metadata,
		Hosts:       hosts,
		Name:        d.Name,
		StoredData:  d.StoredData,
	}
}

func fromWire(w wireDocument) (Document, error) {
	id, err := uuid.Parse(w.UUID)
	if err != nil {
		return Document{}, fmt.Errorf("store: decode uuid: %w", err)
	}
	hosts := make([]uuid.UUID, 0, len(w.Hosts))
	for _, h := range w.Hosts {
		hid, err := uuid.Parse(h)
		if err != nil {
			continue
		}
		hosts = append(hosts, hid)
	}
	return Document{
		UUID:        id,
		Index:       w.Index,
		Output:      w.Output,
		CompletedAt: w.CompletedAt,
		Metadata:    w.Metadata,
		Hosts:       hosts,
		Name:        w.Name,
		StoredData:  w.StoredData,
	}, nil
}

func (r *RedisStore) Put(ctx context.Context, doc Document, collection string) error {
	raw, err := json.Marshal(toWire(doc))
	if err != nil {
		return fmt.Errorf("store: marshal document: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.docKey(collection, doc.UUID, doc.Index), raw, 0)
	pipe.ZAdd(ctx, r.zkey(collection, doc.UUID), redis.Z{Score: float64(doc.Index), Member: doc.Index})
	pipe.SAdd(ctx, r.uuidsKey(collection), doc.UUID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: put %s@%d: %w", doc.UUID, doc.Index, err)
	}
	return nil
}

func (r *RedisStore) GetOne(ctx context.Context, q Query, collection string) (Document, bool, error) {
	if q.UUID == nil {
		return Document{}, false, fmt.Errorf("store: GetOne requires a uuid filter")
	}
	indices, err := r.client.ZRevRange(ctx, r.zkey(collection, *q.UUID), 0, 0).Result()
	if err != nil {
		return Document{}, false, fmt.Errorf("store: get latest index: %w", err)
	}
	if len(indices) == 0 {
		return Document{}, false, nil
	}
	var index int
	fmt.Sscanf(indices[0], "%d", &index)

	raw, err := r.client.Get(ctx, r.docKey(collection, *q.UUID, index)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Document{}, false, nil
		}
		return Document{}, false, fmt.Errorf("store: get document: %w", err)
	}
	var w wireDocument
	if err := json.Unmarshal(raw, &w); err != nil {
		return Document{}, false, fmt.Errorf("store: unmarshal document: %w", err)
	}
	doc, err := fromWire(w)
	return doc, err == nil, err
}

func (r *RedisStore) Query(ctx context.Context, q Query, sortField SortField, limit int, collection string) ([]Document, error) {
	ids, err := r.queryUUIDs(ctx, q, collection)
	if err != nil {
		return nil, err
	}

	var docs []Document
	for _, id := range ids {
		members, err := r.client.ZRevRange(ctx, r.zkey(collection, id), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("store: list indices: %w", err)
		}
		for _, m := range members {
			var idx int
			fmt.Sscanf(m, "%d", &idx)
			raw, err := r.client.Get(ctx, r.docKey(collection, id, idx)).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return nil, fmt.Errorf("store: get document: %w", err)
			}
			var w wireDocument
			if err := json.Unmarshal(raw, &w); err != nil {
				return nil, fmt.Errorf("store: unmarshal document: %w", err)
			}
			doc, err := fromWire(w)
			if err != nil {
				return nil, err
			}
			if matches(doc, q) {
				docs = append(docs, doc)
			}
		}
	}

	if sortField == ByIndexDescending {
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].Index > docs[j].Index })
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// queryUUIDs resolves the set of uuids a Query must scan: just q.UUID when
// given, or every uuid this store has ever Put to the collection when q.UUID
// is nil, matching Query's documented "nil UUID matches any document"
// contract (pkg/store.MemoryStore supports this directly via a linear scan;
// this is the Redis-backed equivalent).
func (r *RedisStore) queryUUIDs(ctx context.Context, q Query, collection string) ([]uuid.UUID, error) {
	if q.UUID != nil {
		return []uuid.UUID{*q.UUID}, nil
	}
	members, err := r.client.SMembers(ctx, r.uuidsKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list uuids: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// EnsureIndex is a no-op: the sorted set maintained by Put already serves as
// the per-uuid index this store needs. The method exists to satisfy the
// Store contract; nothing in this module calls it when a store is opened.
func (r *RedisStore) EnsureIndex(ctx context.Context, field string, collection string) error {
	return nil
}
