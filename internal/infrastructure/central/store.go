// Package central implements the durable, append-only central store: every
// accepted Deltas package is written once and kept until its DeltasID is
// retracted, independent of any component's in-memory working set. It is
// the system's ground truth for "what was ever asserted", used for replay
// and audit rather than live query evaluation.
package central

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/magbak/mbei/internal/domain/event"
	"github.com/magbak/mbei/internal/domain/graph"
)

// Key layout:
//
//	d|<deltas_id>|<seq (8 zero-padded decimal digits)>   -> gob-encoded graph.Delta
//	r|<deltas_id>                              -> empty marker: deltas_id is retracted
const (
	deltaPrefix     = "d|"
	retractedPrefix = "r|"
)

// Store is the badger-backed central durability layer. One instance per
// deployment, shared by every component that wants its deltas persisted.
type Store struct {
	db  *badger.DB
	log Logger
}

// Logger is the narrow logging surface Store depends on.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// Open opens (creating if absent) a BadgerDB instance rooted at dir.
func Open(dir string, log Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithValueLogFileSize(64 << 20).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithDetectConflicts(false)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("central: opening badger db at %s: %w", dir, err)
	}
	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ProcessUpdate dispatches a Deltas or Retractions update to InsertDeltas or
// RetractDeltas, mirroring the per-query component's update handling but
// without any downstream routing: the central store only records.
func (s *Store) ProcessUpdate(u event.Update) error {
	switch u.Kind {
	case event.KindDeltas:
		s.log.Debug("central: received deltas update", "deltas_id", u.Deltas.DeltasID)
		return s.InsertDeltas(*u.Deltas)
	case event.KindRetractions:
		s.log.Debug("central: received retractions update")
		return s.RetractDeltas(*u.Retractions)
	default:
		s.log.Error("central: unexpected update kind", "kind", int(u.Kind))
		return nil
	}
}

// InsertDeltas writes every delta in d under its deltas_id, unless that
// deltas_id has already been retracted — a retraction can race ahead of a
// slow-arriving insert, and once retracted a deltas_id must stay gone.
func (s *Store) InsertDeltas(d event.Deltas) error {
	retracted, err := s.IsRetracted(d.DeltasID)
	if err != nil {
		return err
	}
	if retracted {
		s.log.Debug("central: deltas update already retracted, skipping insert", "deltas_id", d.DeltasID)
		return nil
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for seq, delta := range d.Deltas {
			key := deltaKey(d.DeltasID, seq)
			val, err := encodeDelta(delta)
			if err != nil {
				return err
			}
			if err := txn.Set(key, val); err != nil {
				return fmt.Errorf("central: writing delta row: %w", err)
			}
		}
		return nil
	})
}

// IsRetracted reports whether id has a retraction marker.
func (s *Store) IsRetracted(id string) (bool, error) {
	var retracted bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(retractionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		retracted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("central: checking retraction marker for %s: %w", id, err)
	}
	return retracted, nil
}

// RetractDeltas deletes every stored row for each deltas_id in r and
// records a retraction marker so any later-arriving insert for the same id
// is dropped rather than resurrected.
func (s *Store) RetractDeltas(r event.Retractions) error {
	for _, id := range r.DeltasIDs {
		if err := s.retractOne(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) retractOne(deltasID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(deltaPrefix + deltasID + "|")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var toDelete [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			toDelete = append(toDelete, append([]byte{}, it.Item().Key()...))
		}
		for _, key := range toDelete {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("central: deleting delta row: %w", err)
			}
		}
		if err := txn.Set(retractionKey(deltasID), nil); err != nil {
			return fmt.Errorf("central: writing retraction marker: %w", err)
		}
		return nil
	})
}

// GetAllDeltas returns every currently-stored delta across all deltas_ids,
// in no particular order. Intended for offline replay and audit tooling,
// not the hot path.
func (s *Store) GetAllDeltas() ([]graph.Delta, error) {
	var out []graph.Delta
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(deltaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var d graph.Delta
			err := it.Item().Value(func(val []byte) error {
				decoded, err := decodeDelta(val)
				if err != nil {
					return err
				}
				d = decoded
				return nil
			})
			if err != nil {
				return err
			}
			out = append(out, d)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("central: scanning deltas: %w", err)
	}
	return out, nil
}

func deltaKey(deltasID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s|%08d", deltaPrefix, deltasID, seq))
}

func retractionKey(deltasID string) []byte {
	return []byte(retractedPrefix + deltasID)
}

func encodeDelta(d graph.Delta) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(d); err != nil {
		return nil, fmt.Errorf("central: encoding delta: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeDelta(val []byte) (graph.Delta, error) {
	var d graph.Delta
	if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&d); err != nil {
		return graph.Delta{}, fmt.Errorf("central: decoding delta: %w", err)
	}
	return d, nil
}
