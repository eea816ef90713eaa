// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"testing"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/GridironAI/gridiron/services/football/datatypes"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("badger.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewBadgerStore(db, 0, nil)
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := datatypes.NewSession("abc")
	sess.FavoriteTeam = "DET"
	sess.AppendTurn(datatypes.Turn{
		Text:     "how are the chiefs",
		Resolved: datatypes.Entities{Team1: datatypes.String("KC")},
		Pipeline: datatypes.PipelineTeamProfile,
		Tier:     1,
	})

	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, "abc")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("Load returned nil for a saved session")
	}
	if got.Version != 1 || len(got.Turns) != 1 {
		t.Errorf("got version=%d turns=%d, want 1 and 1", got.Version, len(got.Turns))
	}
	if got.FavoriteTeam != "DET" {
		t.Errorf("FavoriteTeam = %q, want DET", got.FavoriteTeam)
	}
	if got.Turns[0].Resolved.Team1 == nil || *got.Turns[0].Resolved.Team1 != "KC" {
		t.Errorf("turn team1 = %v, want KC", got.Turns[0].Resolved.Team1)
	}
}

func TestBadgerStore_MissIsNilNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Load(context.Background(), "never-created")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil on miss", got)
	}
}

func TestBadgerStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := datatypes.NewSession("gone")
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := store.Load(ctx, "gone")
	if err != nil || got != nil {
		t.Errorf("Load after delete = (%v, %v), want (nil, nil)", got, err)
	}

	// Deleting again is not an error.
	if err := store.Delete(ctx, "gone"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
}

func TestBadgerStore_SaveValidation(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(context.Background(), nil); err == nil {
		t.Error("nil session accepted")
	}
	if err := store.Save(context.Background(), &datatypes.Session{}); err == nil {
		t.Error("empty id accepted")
	}
}

func TestSession_TurnCapAndRecentTeams(t *testing.T) {
	sess := datatypes.NewSession("cap")
	for i := 0; i < 20; i++ {
		sess.AppendTurn(datatypes.Turn{
			Resolved: datatypes.Entities{Team1: datatypes.String("KC")},
			Pipeline: datatypes.PipelineTeamProfile,
		})
	}
	if len(sess.Turns) != 16 {
		t.Errorf("turns = %d, want capped at 16", len(sess.Turns))
	}
	if sess.Version != 20 {
		t.Errorf("version = %d, want 20", sess.Version)
	}

	sess.AppendTurn(datatypes.Turn{
		Resolved: datatypes.Entities{
			Team1: datatypes.String("PHI"),
			Team2: datatypes.String("DAL"),
		},
		Pipeline: datatypes.PipelineTeamComparison,
	})
	teams := sess.RecentTeams()
	if len(teams) < 3 || teams[0] != "DAL" || teams[1] != "PHI" || teams[2] != "KC" {
		t.Errorf("RecentTeams = %v, want [DAL PHI KC]", teams)
	}
}
