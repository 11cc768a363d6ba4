// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/attractor/services/attractor/export"
	"github.com/AleutianAI/attractor/services/attractor/params"
)

var (
	// ErrNotFound is returned when no run or map is stored under an ID.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID is returned for IDs that are not UUIDs.
	ErrInvalidID = errors.New("invalid run id")
)

const (
	runPrefix    = "run/"
	resultPrefix = "result/"
	mapPrefix    = "map/"
)

// Run is the metadata of one stored decomposition.
type Run struct {
	ID        string            `json:"id"`
	Model     string            `json:"model"`
	Domain    string            `json:"domain"`
	States    int               `json:"states"`
	CreatedAt time.Time         `json:"created_at"`
	Elapsed   time.Duration     `json:"elapsed"`
	Labels    map[string]string `json:"labels,omitempty"`
}

func runKey(id string) []byte    { return []byte(runPrefix + id) }
func resultKey(id string) []byte { return []byte(resultPrefix + id) }

func mapKeyPrefix(id, name string) []byte {
	return []byte(mapPrefix + id + "/" + name + "/")
}

func mapKey(id, name string, state int) []byte {
	return binary.BigEndian.AppendUint64(mapKeyPrefix(id, name), uint64(state))
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidID, id, err)
	}
	return nil
}

// SaveRun stores run and its result set.
//
// Description:
//
//	Assigns a new UUID when run.ID is empty and the current time when
//	run.CreatedAt is zero. Both records are written in one transaction.
//
// Outputs:
//
//	string - The run ID.
//	error - Non-nil on an invalid ID or a failed write.
func (s *Store) SaveRun(ctx context.Context, run Run, rs *export.ResultSet) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	} else if err := checkID(run.ID); err != nil {
		return "", err
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	meta, err := json.Marshal(run)
	if err != nil {
		return "", fmt.Errorf("encode run: %w", err)
	}
	var result bytes.Buffer
	if err := export.Write(&result, rs); err != nil {
		return "", fmt.Errorf("encode result set: %w", err)
	}

	err = s.withTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(runKey(run.ID), meta); err != nil {
			return err
		}
		return txn.Set(resultKey(run.ID), result.Bytes())
	})
	if err != nil {
		return "", fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return run.ID, nil
}

// LoadRun returns the metadata of run id.
func (s *Store) LoadRun(ctx context.Context, id string) (*Run, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var run Run
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, runKey(id), &run)
	})
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}
	return &run, nil
}

// LoadResultSet returns the result set stored with run id.
func (s *Store) LoadResultSet(ctx context.Context, id string) (*export.ResultSet, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	var rs *export.ResultSet
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(resultKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rs, err = export.Read(bytes.NewReader(val))
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load result set %s: %w", id, err)
	}
	return rs, nil
}

// ListRuns returns every stored run, oldest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	var runs []Run
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var run Run
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &run)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			runs = append(runs, run)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs, nil
}

// DeleteRun removes run id with its result set and state maps.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	return s.withTxn(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(runKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete run %s: %w", id, ErrNotFound)
		} else if err != nil {
			return err
		}
		keys := [][]byte{runKey(id), resultKey(id)}
		keys = append(keys, collectKeys(txn, []byte(mapPrefix+id+"/"))...)
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return fmt.Errorf("delete %s: %w", k, err)
			}
		}
		return nil
	})
}

// SaveMap stores m under name for run id, one record per state, using
// the solver's serialization. A map saved twice under the same name
// replaces the earlier one.
func SaveMap[P any](ctx context.Context, s *Store, id, name string, m *params.StateMap[P]) error {
	if err := checkID(id); err != nil {
		return err
	}
	solver := m.Solver()
	return s.withTxn(ctx, func(txn *badger.Txn) error {
		for _, k := range collectKeys(txn, mapKeyPrefix(id, name)) {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for state, p := range m.All() {
			data, err := solver.Serialize(p)
			if err != nil {
				return fmt.Errorf("serialize state %d: %w", state, err)
			}
			if err := txn.Set(mapKey(id, name, state), data); err != nil {
				return fmt.Errorf("save map %s of run %s: %w", name, id, err)
			}
		}
		return nil
	})
}

// LoadMap reads the map saved under name for run id back into solver.
// A map with no entries is indistinguishable from a missing one and
// loads as empty.
func LoadMap[P any](ctx context.Context, s *Store, id, name string, solver params.Solver[P], stateCount int) (*params.StateMap[P], error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	m := params.NewStateMap(solver, stateCount)
	prefix := mapKeyPrefix(id, name)
	err := s.withReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			state := int(binary.BigEndian.Uint64(item.Key()[len(prefix):]))
			if state >= stateCount {
				return fmt.Errorf("state %d outside %d states", state, stateCount)
			}
			err := item.Value(func(val []byte) error {
				p, err := solver.Deserialize(val)
				if err != nil {
					return err
				}
				m.Set(state, p)
				return nil
			})
			if err != nil {
				return fmt.Errorf("decode state %d: %w", state, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load map %s of run %s: %w", name, id, err)
	}
	return m, nil
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func collectKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}
