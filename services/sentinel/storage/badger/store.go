// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/sentinel/pkg/validation"
	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

var tracer = otel.Tracer("sentinel.storage")

// Key prefixes. A run may have a model, tables, or both.
const (
	modelPrefix = "model/"
	tablePrefix = "run/"
)

var (
	// ErrRunNotFound is returned when nothing is stored under a run id.
	ErrRunNotFound = errors.New("run not found")

	// ErrInvalidRunID is returned for a run id that cannot be used as a key.
	ErrInvalidRunID = validation.ErrInvalidRunID
)

// RunInfo describes what is stored for a run.
type RunInfo struct {
	Run       string `json:"run"`
	HasModel  bool   `json:"has_model"`
	HasTables bool   `json:"has_tables"`
}

// Store maps run ids to variable-order models and first-order run tables.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *DB
}

// NewStore wraps an open database.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// PutModel stores the model for run, replacing any previous one. The model
// is validated first; an invalid model is never written.
func (s *Store) PutModel(ctx context.Context, run string, g *markov.VariableOrderGraph) error {
	ctx, span := startSpan(ctx, "storage.PutModel", run)
	defer span.End()

	data, err := encodeModel(run, g)
	if err != nil {
		return spanErr(span, err)
	}
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(modelPrefix+run), data)
	})
	if err != nil {
		return spanErr(span, fmt.Errorf("storing model %q: %w", run, err))
	}
	span.SetAttributes(attribute.Int("storage.bytes", len(data)))
	return nil
}

// PutIngest stores a run's model and first-order tables in one
// transaction. Either both replace the previous values or neither does.
// tables.Run must equal run.
func (s *Store) PutIngest(ctx context.Context, run string, g *markov.VariableOrderGraph, tables *markov.RunTables) error {
	ctx, span := startSpan(ctx, "storage.PutIngest", run)
	defer span.End()

	if tables.Run != run {
		return spanErr(span, fmt.Errorf("%w: tables belong to %q, not %q", ErrInvalidRunID, tables.Run, run))
	}
	model, err := encodeModel(run, g)
	if err != nil {
		return spanErr(span, err)
	}
	runData, err := encodeTables(tables)
	if err != nil {
		return spanErr(span, err)
	}
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		if err := txn.Set([]byte(modelPrefix+run), model); err != nil {
			return err
		}
		return txn.Set([]byte(tablePrefix+run), runData)
	})
	if err != nil {
		return spanErr(span, fmt.Errorf("storing run %q: %w", run, err))
	}
	span.SetAttributes(attribute.Int("storage.bytes", len(model)+len(runData)))
	return nil
}

// GetModel loads and validates the model for run.
func (s *Store) GetModel(ctx context.Context, run string) (*markov.VariableOrderGraph, error) {
	ctx, span := startSpan(ctx, "storage.GetModel", run)
	defer span.End()

	data, err := s.get(ctx, modelPrefix, run)
	if err != nil {
		return nil, spanErr(span, err)
	}
	g, err := markov.Unmarshal(data)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("run %q: %w", run, err))
	}
	return g, nil
}

// PutRun stores the first-order tables of tables.Run.
func (s *Store) PutRun(ctx context.Context, tables *markov.RunTables) error {
	ctx, span := startSpan(ctx, "storage.PutRun", tables.Run)
	defer span.End()

	data, err := encodeTables(tables)
	if err != nil {
		return spanErr(span, err)
	}
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(tablePrefix+tables.Run), data)
	})
	if err != nil {
		return spanErr(span, fmt.Errorf("storing run %q: %w", tables.Run, err))
	}
	return nil
}

// GetRun loads the first-order tables of run.
func (s *Store) GetRun(ctx context.Context, run string) (*markov.RunTables, error) {
	ctx, span := startSpan(ctx, "storage.GetRun", run)
	defer span.End()

	data, err := s.get(ctx, tablePrefix, run)
	if err != nil {
		return nil, spanErr(span, err)
	}
	var tables markov.RunTables
	if err := json.Unmarshal(data, &tables); err != nil {
		return nil, spanErr(span, fmt.Errorf("%w: run %q: %v", markov.ErrDecode, run, err))
	}
	return &tables, nil
}

// ListRuns returns every stored run, sorted by id.
func (s *Store) ListRuns(ctx context.Context) ([]RunInfo, error) {
	runs := make(map[string]*RunInfo)
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			var run string
			var model bool
			switch {
			case strings.HasPrefix(key, modelPrefix):
				run, model = strings.TrimPrefix(key, modelPrefix), true
			case strings.HasPrefix(key, tablePrefix):
				run = strings.TrimPrefix(key, tablePrefix)
			default:
				continue
			}
			info, ok := runs[run]
			if !ok {
				info = &RunInfo{Run: run}
				runs[run] = info
			}
			if model {
				info.HasModel = true
			} else {
				info.HasTables = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	out := make([]RunInfo, 0, len(runs))
	for _, info := range runs {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Run < out[j].Run })
	return out, nil
}

// DeleteRun removes the model and tables of run.
func (s *Store) DeleteRun(ctx context.Context, run string) error {
	ctx, span := startSpan(ctx, "storage.DeleteRun", run)
	defer span.End()

	if err := checkRun(run); err != nil {
		return spanErr(span, err)
	}
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		found := false
		for _, prefix := range []string{modelPrefix, tablePrefix} {
			key := []byte(prefix + run)
			if _, err := txn.Get(key); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			found = true
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		if !found {
			return fmt.Errorf("%w: %q", ErrRunNotFound, run)
		}
		return nil
	})
	if err != nil {
		return spanErr(span, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, prefix, run string) ([]byte, error) {
	if err := checkRun(run); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefix + run))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrRunNotFound, run)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s%s: %w", prefix, run, err)
	}
	return data, nil
}

// encodeModel validates run and g and returns the stored form of g.
func encodeModel(run string, g *markov.VariableOrderGraph) ([]byte, error) {
	if err := checkRun(run); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("run %q: %w", run, err)
	}
	data, err := g.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding model: %w", err)
	}
	return data, nil
}

func encodeTables(tables *markov.RunTables) ([]byte, error) {
	if err := checkRun(tables.Run); err != nil {
		return nil, err
	}
	data, err := json.Marshal(tables)
	if err != nil {
		return nil, fmt.Errorf("encoding run tables: %w", err)
	}
	return data, nil
}

func checkRun(run string) error {
	return validation.ValidateRunID(run)
}

func startSpan(ctx context.Context, name, run string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("storage.run", run)))
}

func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
