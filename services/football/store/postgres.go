// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// =============================================================================
// Postgres Store
// =============================================================================

// Postgres reads the aggregate tables from PostgreSQL.
//
// Thread Safety: Safe for concurrent use; *sql.DB pools connections.
type Postgres struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to PostgreSQL and returns a Postgres store.
//
// # Inputs
//
//	dsn - lib/pq connection string.
//	maxConns - Connection pool ceiling; <= 0 uses 10.
//	logger - Structured logger. If nil, slog.Default() is used.
func Open(dsn string, maxConns int, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store.Open: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 10
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &Postgres{db: db, logger: logger}, nil
}

// NewPostgres wraps an existing connection, primarily for tests.
func NewPostgres(db *sql.DB, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger}
}

// Ping verifies connectivity for readiness checks.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// =============================================================================
// Reader Implementation
// =============================================================================

const teamProfileQuery = `
SELECT team, season, offensive_epa, defensive_epa, pass_rate, success_rate,
       red_zone_td_rate, third_down_rate, plays
FROM team_season_stats
WHERE team = $1 AND ($2 <= 0 OR season = $2)
ORDER BY season DESC
LIMIT 1`

func (p *Postgres) TeamProfile(ctx context.Context, team string, season int) (*TeamProfile, error) {
	var tp TeamProfile
	err := p.db.QueryRowContext(ctx, teamProfileQuery, team, season).Scan(
		&tp.Team, &tp.Season, &tp.OffensiveEPA, &tp.DefensiveEPA,
		&tp.PassRate, &tp.SuccessRate, &tp.RedZoneTDRate, &tp.ThirdDownRate,
		&tp.Plays,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("team %s season %d: %w", team, season, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("TeamProfile(%s, %d): %w", team, season, err)
	}
	return &tp, nil
}

const playerLinesQuery = `
SELECT player_id, name, team, position, season, plays, epa_per_play,
       success_pct, yards, touchdowns
FROM player_season_stats
WHERE position = $1
  AND season = CASE WHEN $2 > 0 THEN $2
               ELSE (SELECT MAX(season) FROM player_season_stats) END`

func (p *Postgres) PlayerLines(ctx context.Context, position string, season int) ([]PlayerLine, error) {
	rows, err := p.db.QueryContext(ctx, playerLinesQuery, position, season)
	if err != nil {
		return nil, fmt.Errorf("PlayerLines(%s, %d): %w", position, season, err)
	}
	defer rows.Close()

	var lines []PlayerLine
	for rows.Next() {
		var l PlayerLine
		if err := rows.Scan(
			&l.PlayerID, &l.Name, &l.Team, &l.Position, &l.Season,
			&l.Plays, &l.EPAPerPlay, &l.SuccessPct, &l.Yards, &l.Touchdowns,
		); err != nil {
			return nil, fmt.Errorf("PlayerLines(%s, %d): scan: %w", position, season, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PlayerLines(%s, %d): %w", position, season, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("position %s season %d: %w", position, season, ErrNotFound)
	}
	return lines, nil
}

const situationLineQuery = `
SELECT down, distance, pass_epa, run_epa, pass_plays, run_plays,
       pass_success, run_success
FROM situation_epa
WHERE down = $1 AND distance = $2 AND team = $3`

func (p *Postgres) SituationLine(ctx context.Context, down, distance int, team string) (*SituationLine, error) {
	// The league-wide line is stored under the empty team code.
	var sl SituationLine
	err := p.db.QueryRowContext(ctx, situationLineQuery, down, distance, team).Scan(
		&sl.Down, &sl.Distance, &sl.PassEPA, &sl.RunEPA,
		&sl.PassPlays, &sl.RunPlays, &sl.PassSuccess, &sl.RunSuccess,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("situation %d-%d team %q: %w", down, distance, team, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("SituationLine(%d, %d, %s): %w", down, distance, team, err)
	}
	return &sl, nil
}

const seasonSummaryQuery = `
SELECT team, season, wins, losses, ties, points_for, points_against,
       offensive_epa, defensive_epa
FROM season_summaries
WHERE team = $1 AND season = $2`

func (p *Postgres) SeasonSummary(ctx context.Context, team string, season int) (*SeasonSummary, error) {
	var ss SeasonSummary
	err := p.db.QueryRowContext(ctx, seasonSummaryQuery, team, season).Scan(
		&ss.Team, &ss.Season, &ss.Wins, &ss.Losses, &ss.Ties,
		&ss.PointsFor, &ss.PointsAgainst, &ss.OffensiveEPA, &ss.DefensiveEPA,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("team %s season %d: %w", team, season, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("SeasonSummary(%s, %d): %w", team, season, err)
	}
	return &ss, nil
}

const historicalPlaysQuery = `
SELECT down, distance, yardline, yards_gained, turnover
FROM historical_plays`

func (p *Postgres) HistoricalPlays(ctx context.Context) ([]PlayRow, error) {
	rows, err := p.db.QueryContext(ctx, historicalPlaysQuery)
	if err != nil {
		return nil, fmt.Errorf("HistoricalPlays: %w", err)
	}
	defer rows.Close()

	var plays []PlayRow
	for rows.Next() {
		var pr PlayRow
		if err := rows.Scan(&pr.Down, &pr.Distance, &pr.Yardline, &pr.Yards, &pr.Turnover); err != nil {
			return nil, fmt.Errorf("HistoricalPlays: scan: %w", err)
		}
		plays = append(plays, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("HistoricalPlays: %w", err)
	}
	p.logger.Info("historical plays loaded", slog.Int("count", len(plays)))
	return plays, nil
}

const fieldGoalCurveQuery = `
SELECT distance, make_rate
FROM field_goal_curve
ORDER BY distance`

func (p *Postgres) FieldGoalCurve(ctx context.Context) ([]FGPoint, error) {
	rows, err := p.db.QueryContext(ctx, fieldGoalCurveQuery)
	if err != nil {
		return nil, fmt.Errorf("FieldGoalCurve: %w", err)
	}
	defer rows.Close()

	var points []FGPoint
	for rows.Next() {
		var fp FGPoint
		if err := rows.Scan(&fp.Distance, &fp.Prob); err != nil {
			return nil, fmt.Errorf("FieldGoalCurve: scan: %w", err)
		}
		points = append(points, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FieldGoalCurve: %w", err)
	}
	return points, nil
}

const archetypeMeansQuery = `
SELECT position, metric, group_mean
FROM archetype_means`

func (p *Postgres) ArchetypeMeans(ctx context.Context) (map[string]float64, error) {
	rows, err := p.db.QueryContext(ctx, archetypeMeansQuery)
	if err != nil {
		return nil, fmt.Errorf("ArchetypeMeans: %w", err)
	}
	defer rows.Close()

	means := make(map[string]float64)
	for rows.Next() {
		var position, metric string
		var mean float64
		if err := rows.Scan(&position, &metric, &mean); err != nil {
			return nil, fmt.Errorf("ArchetypeMeans: scan: %w", err)
		}
		means[position+":"+metric] = mean
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ArchetypeMeans: %w", err)
	}
	return means, nil
}
