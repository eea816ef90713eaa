// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session persists conversation state between turns and resolves
// follow-up questions against it.
package session

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/GridironAI/gridiron/services/football/datatypes"
)

// sessionDefaultTTL is the lifetime of an idle session. A conversation
// resumed within the window keeps its context; after that the session id
// resolves to a fresh session.
const sessionDefaultTTL = 24 * time.Hour

// sessionKeyPrefix is prepended to the session id to form the BadgerDB key.
// Versioned (v1) to allow future format changes without collision.
const sessionKeyPrefix = "football/session/v1/"

// errStoreMiss distinguishes "key not found" from a genuine storage error.
var errStoreMiss = errors.New("session miss")

// =============================================================================
// Store Interface
// =============================================================================

// Store persists sessions between turns.
//
// Load returns (nil, nil) when the id has no stored session (never created
// or TTL expired); callers start a fresh session in that case.
//
// Thread Safety: Implementations must be safe for concurrent use. Per-session
// write ordering is the caller's responsibility.
type Store interface {
	Load(ctx context.Context, id string) (*datatypes.Session, error)
	Save(ctx context.Context, sess *datatypes.Session) error
	Delete(ctx context.Context, id string) error
}

// =============================================================================
// BadgerStore
// =============================================================================

// BadgerStore implements Store backed by an embedded BadgerDB instance.
//
// # Description
//
//	Sessions are gob-encoded; a session is a handful of turns, so entries
//	stay small. TTL is enforced by BadgerDB's native GC: expired keys
//	return ErrKeyNotFound, which this store treats as a miss. The DB is
//	opened by the caller (typically in main) and owned by the caller.
//
// # Thread Safety
//
//	Safe for concurrent use. BadgerDB transactions are per-goroutine.
type BadgerStore struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgerStore creates a BadgerStore over an opened DB.
//
// # Inputs
//
//	db - Opened BadgerDB. Must not be nil.
//	ttl - Idle session lifetime. Pass 0 for the default (24 hours).
//	logger - Structured logger. If nil, slog.Default() is used.
func NewBadgerStore(db *badger.DB, ttl time.Duration, logger *slog.Logger) *BadgerStore {
	if db == nil {
		panic("NewBadgerStore: db must not be nil")
	}
	if ttl <= 0 {
		ttl = sessionDefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, ttl: ttl, logger: logger}
}

// Load retrieves the session for id.
//
// # Outputs
//
//	*datatypes.Session - Nil on miss (absent or expired).
//	error - Non-nil on storage or decode failure. Nil on miss.
func (s *BadgerStore) Load(ctx context.Context, id string) (*datatypes.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errStoreMiss
		}
		if err != nil {
			return fmt.Errorf("get session key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copy value: %w", err)
		}
		return nil
	})

	if errors.Is(err, errStoreMiss) {
		s.logger.Debug("session store: miss", slog.String("session_id", id))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session load: %w", err)
	}

	var sess datatypes.Session
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&sess); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	return &sess, nil
}

// Save persists sess with the configured TTL, refreshing the idle window.
func (s *BadgerStore) Save(ctx context.Context, sess *datatypes.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session save: session with non-empty id required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sess); err != nil {
		return fmt.Errorf("session encode: %w", err)
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(sessionKey(sess.ID), buf.Bytes()).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("session save: %w", err)
	}

	s.logger.Debug("session store: saved",
		slog.String("session_id", sess.ID),
		slog.Int("turns", len(sess.Turns)),
		slog.Int("version", sess.Version),
	)
	return nil
}

// Delete removes a session. Deleting an absent session is not an error.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessionKey(id))
	})
	if err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}
