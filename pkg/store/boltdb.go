package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/procpool/pkg/types"
)

// BoltStore implements Store using BoltDB. Each collection maps to one
// bucket; documents are stored as JSON under their hex id.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the database file at path and
// ensures a bucket exists for each named collection.
func NewBoltStore(path string, collections ...string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, collection := range collections {
			if _, err := tx.CreateBucketIfNotExists([]byte(collection)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", collection, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Insert stores doc under doc["id"] when the caller already assigned a
// valid id, otherwise under a freshly generated one.
func (s *BoltStore) Insert(collection string, doc map[string]any) (string, error) {
	id, _ := doc["id"].(string)
	if ValidateID(id) != nil {
		id = types.Hex()
	}
	doc["id"] = id

	data, err := json.Marshal(doc)
	if err != nil {
		return "", NewApplicationFault("failed to encode document: %v", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return id, nil
}

// Find returns every document in collection matching q.
func (s *BoltStore) Find(collection string, q Query) ([]map[string]any, error) {
	if err := q.SanitizeIDs(); err != nil {
		return nil, err
	}

	var docs []map[string]any
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var doc map[string]any
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("failed to decode document %s: %w", k, err)
			}
			if q.Matches(doc) {
				docs = append(docs, doc)
			}
			return nil
		})
	})
	return docs, err
}

// FindOne returns the first document matching q in key order, or nil
// when none matches.
func (s *BoltStore) FindOne(collection string, q Query) (map[string]any, error) {
	if err := q.SanitizeIDs(); err != nil {
		return nil, err
	}

	var found map[string]any
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var doc map[string]any
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("failed to decode document %s: %w", k, err)
			}
			if q.Matches(doc) {
				found = doc
				return nil
			}
		}
		return nil
	})
	return found, err
}

// Next returns the matching document with the smallest numeric value of
// sortBy, or nil when none matches. Documents without the field lose to
// documents that have it; remaining ties keep the lowest key.
func (s *BoltStore) Next(collection string, q Query, sortBy string) (map[string]any, error) {
	if err := q.SanitizeIDs(); err != nil {
		return nil, err
	}

	var (
		best    map[string]any
		bestVal float64
		bestOK  bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var doc map[string]any
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("failed to decode document %s: %w", k, err)
			}
			if !q.Matches(doc) {
				return nil
			}
			val, ok := numeric(doc[sortBy])
			switch {
			case best == nil:
				best, bestVal, bestOK = doc, val, ok
			case ok && (!bestOK || val < bestVal):
				best, bestVal, bestOK = doc, val, ok
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return best, nil
}

// UpdateOne merges the fields of doc into the document stored under id.
func (s *BoltStore) UpdateOne(collection, id string, doc map[string]any) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return fmt.Errorf("document not found: %s", id)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("document not found: %s", id)
		}

		var merged map[string]any
		if err := json.Unmarshal(data, &merged); err != nil {
			return fmt.Errorf("failed to decode document %s: %w", id, err)
		}
		for k, v := range doc {
			merged[k] = v
		}
		merged["id"] = id

		out, err := json.Marshal(merged)
		if err != nil {
			return NewApplicationFault("failed to encode document: %v", err)
		}
		return b.Put([]byte(id), out)
	})
}

// Remove deletes every document matching q and reports how many went.
func (s *BoltStore) Remove(collection string, q Query) (int, error) {
	if err := q.SanitizeIDs(); err != nil {
		return 0, err
	}

	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(collection))
		if b == nil {
			return nil
		}

		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var doc map[string]any
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("failed to decode document %s: %w", k, err)
			}
			if q.Matches(doc) {
				key := make([]byte, len(k))
				copy(key, k)
				keys = append(keys, key)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, key := range keys {
			if err := b.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
