// Package boltdb stores memories and embeddings in a single bbolt file and
// searches them by brute-force cosine similarity.
package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/lexlapax/recall/pkg/errors"
	"github.com/lexlapax/recall/pkg/filter"
	"github.com/lexlapax/recall/pkg/log"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/store"
	"github.com/lexlapax/recall/pkg/vector"
)

var (
	collectionsBucket = []byte("collections")
	recordsBucket     = []byte("records")
	orderBucket       = []byte("order")
	dimsKey           = []byte("dims")
)

// Config holds configuration for the BoltDB store.
type Config struct {
	// Collection names the nested bucket holding this store's records
	Collection string
	// Dimensions is the embedding length; zero is fixed by the first insert
	Dimensions int
}

// entry is the persisted form of a record.
type entry struct {
	Record    model.MemoryRecord `json:"record"`
	Embedding []float32          `json:"embedding"`
	Seq       uint64             `json:"seq"`
}

// BoltStore implements store.VectorStore on top of bbolt.
type BoltStore struct {
	db         *bolt.DB
	owned      bool
	collection []byte

	mu   sync.RWMutex
	dims int
}

var _ store.VectorStore = (*BoltStore)(nil)

// Open opens (or creates) the database file at path. The store owns the file
// and closes it on Close.
func Open(path string, cfg Config) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database %s: %w", path, err)
	}

	s, err := New(db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New creates a store on an already open database. The caller keeps ownership of db.
func New(db *bolt.DB, cfg Config) (*BoltStore, error) {
	if cfg.Collection == "" {
		cfg.Collection = "memories"
	}

	s := &BoltStore{
		db:         db,
		collection: []byte(cfg.Collection),
		dims:       cfg.Dimensions,
	}

	err := db.Update(func(tx *bolt.Tx) error {
		col, err := s.collectionBucket(tx)
		if err != nil {
			return err
		}
		if raw := col.Get(dimsKey); raw != nil {
			stored, err := strconv.Atoi(string(raw))
			if err != nil {
				return fmt.Errorf("corrupt dimension record: %w", err)
			}
			if s.dims > 0 && stored != s.dims {
				return errors.DimensionMismatch(stored, s.dims)
			}
			s.dims = stored
		} else if s.dims > 0 {
			return col.Put(dimsKey, []byte(strconv.Itoa(s.dims)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bolt store: %w", err)
	}

	log.Debug("Initialized BoltDB vector store",
		"db_path", db.Path(),
		"collection", cfg.Collection,
		"dimensions", s.dims,
	)
	return s, nil
}

// collectionBucket gets or creates the nested bucket for this store.
func (s *BoltStore) collectionBucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	root, err := tx.CreateBucketIfNotExists(collectionsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to create collections bucket: %w", err)
	}
	col, err := root.CreateBucketIfNotExists(s.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection bucket %s: %w", s.collection, err)
	}
	if _, err := col.CreateBucketIfNotExists(recordsBucket); err != nil {
		return nil, err
	}
	if _, err := col.CreateBucketIfNotExists(orderBucket); err != nil {
		return nil, err
	}
	return col, nil
}

// buckets returns the records and order buckets inside a read transaction.
func (s *BoltStore) buckets(tx *bolt.Tx) (records, order *bolt.Bucket) {
	col := tx.Bucket(collectionsBucket).Bucket(s.collection)
	return col.Bucket(recordsBucket), col.Bucket(orderBucket)
}

// Insert stores a record with its embedding.
func (s *BoltStore) Insert(ctx context.Context, record model.MemoryRecord, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := vector.CheckDims(s.dims, embedding); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		col, err := s.collectionBucket(tx)
		if err != nil {
			return err
		}
		records, order := col.Bucket(recordsBucket), col.Bucket(orderBucket)

		if records.Get([]byte(record.ID)) != nil {
			return errors.InvalidInput("memory with id %s already exists", record.ID)
		}

		seq, err := col.NextSequence()
		if err != nil {
			return err
		}

		data, err := json.Marshal(entry{Record: record, Embedding: embedding, Seq: seq})
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		if err := records.Put([]byte(record.ID), data); err != nil {
			return err
		}
		if err := order.Put(seqKey(seq), []byte(record.ID)); err != nil {
			return err
		}

		if s.dims <= 0 {
			return col.Put(dimsKey, []byte(strconv.Itoa(len(embedding))))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrInvalidInput) {
			return err
		}
		return fmt.Errorf("failed to store record: %w", err)
	}

	if s.dims <= 0 {
		s.dims = len(embedding)
	}

	log.DebugContext(ctx, "Stored record in BoltDB", "id", record.ID)
	return nil
}

// Delete removes a record.
func (s *BoltStore) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		records, order := s.buckets(tx)
		e, err := readEntry(records, id)
		if err != nil {
			return err
		}
		if e == nil {
			return errors.NotFound(id)
		}
		if err := order.Delete(seqKey(e.Seq)); err != nil {
			return err
		}
		return records.Delete([]byte(id))
	})
	if err != nil {
		return err
	}

	log.DebugContext(ctx, "Deleted record from BoltDB", "id", id)
	return nil
}

// Get returns the record with id, or nil when absent.
func (s *BoltStore) Get(_ context.Context, id string) (*model.MemoryRecord, error) {
	var rec *model.MemoryRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		records, _ := s.buckets(tx)
		e, err := readEntry(records, id)
		if err != nil || e == nil {
			return err
		}
		rec = &e.Record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns records matching filters in insertion order.
func (s *BoltStore) List(_ context.Context, filters *filter.Filters, limit int) ([]model.MemoryRecord, error) {
	var out []model.MemoryRecord
	err := s.scan(func(e *entry) (bool, error) {
		ok, err := filter.Match(filters, e.Record)
		if err != nil {
			return false, err
		}
		if ok {
			out = append(out, e.Record)
		}
		return limit <= 0 || len(out) < limit, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Search ranks matching records by cosine similarity to query.
func (s *BoltStore) Search(_ context.Context, query []float32, k int, filters *filter.Filters) ([]model.ScoredMemory, error) {
	s.mu.RLock()
	dims := s.dims
	s.mu.RUnlock()

	if err := vector.CheckDims(dims, query); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	var candidates []store.Candidate
	err := s.scan(func(e *entry) (bool, error) {
		ok, err := filter.Match(filters, e.Record)
		if err != nil || !ok {
			return err == nil, err
		}
		score, err := vector.Cosine(query, e.Embedding)
		if err != nil {
			return false, err
		}
		candidates = append(candidates, store.Candidate{
			Memory: model.ScoredMemory{Record: e.Record, Score: score},
			Seq:    e.Seq,
		})
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	return store.Rank(candidates, k), nil
}

// Update replaces the stored record and optionally its embedding.
func (s *BoltStore) Update(ctx context.Context, id string, embedding []float32, record model.MemoryRecord) error {
	s.mu.RLock()
	dims := s.dims
	s.mu.RUnlock()

	if embedding != nil {
		if err := vector.CheckDims(dims, embedding); err != nil {
			return err
		}
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		records, _ := s.buckets(tx)
		e, err := readEntry(records, id)
		if err != nil {
			return err
		}
		if e == nil {
			return errors.NotFound(id)
		}

		e.Record = store.ApplyUpdate(e.Record, record)
		if embedding != nil {
			e.Embedding = embedding
		}

		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		return records.Put([]byte(id), data)
	})
	if err != nil {
		return err
	}

	log.DebugContext(ctx, "Updated record in BoltDB", "id", id)
	return nil
}

// DeleteAll removes every record matching filters.
func (s *BoltStore) DeleteAll(ctx context.Context, filters *filter.Filters) (int, error) {
	if err := filters.Validate(); err != nil {
		return 0, err
	}

	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		records, order := s.buckets(tx)

		type victim struct {
			id  []byte
			seq []byte
		}
		var victims []victim

		c := order.Cursor()
		for seq, id := c.First(); seq != nil; seq, id = c.Next() {
			e, err := readEntry(records, string(id))
			if err != nil {
				return err
			}
			if e == nil {
				continue
			}
			ok, err := filter.Match(filters, e.Record)
			if err != nil {
				return err
			}
			if ok {
				victims = append(victims, victim{
					id:  append([]byte(nil), id...),
					seq: append([]byte(nil), seq...),
				})
			}
		}

		// Deleting while iterating a cursor skips keys
		for _, v := range victims {
			if err := order.Delete(v.seq); err != nil {
				return err
			}
			if err := records.Delete(v.id); err != nil {
				return err
			}
		}
		removed = len(victims)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}

	log.DebugContext(ctx, "Deleted records from BoltDB", "count", removed)
	return removed, nil
}

// Close closes the database when the store opened it.
func (s *BoltStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// scan visits entries in insertion order until fn returns false.
func (s *BoltStore) scan(fn func(*entry) (bool, error)) error {
	return s.db.View(func(tx *bolt.Tx) error {
		records, order := s.buckets(tx)
		c := order.Cursor()
		for _, id := c.First(); id != nil; _, id = c.Next() {
			e, err := readEntry(records, string(id))
			if err != nil {
				return err
			}
			if e == nil {
				continue
			}
			more, err := fn(e)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		return nil
	})
}

func readEntry(records *bolt.Bucket, id string) (*entry, error) {
	data := records.Get([]byte(id))
	if data == nil {
		return nil, nil
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", id, err)
	}
	return &e, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
