// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Team Alias Table
// =============================================================================

//go:embed teams.yaml
var defaultTeamTableYAML []byte

// TeamEntry maps a canonical franchise code to its surface forms.
type TeamEntry struct {
	// Code is the canonical franchise code (e.g., "KC", "BUF").
	Code string `yaml:"code"`

	// Aliases are the phrases users write for this team, lowercase.
	Aliases []string `yaml:"aliases"`
}

type teamTable struct {
	Teams []TeamEntry `yaml:"teams"`
}

// alias is one resolvable surface form; aliases are matched longest-first so
// "buffalo bills" claims its span before "bills" or "buffalo" can.
type alias struct {
	phrase string
	code   string
}

// TeamIndex resolves team mentions in free text to canonical franchise codes.
//
// # Description
//
//	Built once from the embedded alias table. FindAll scans lowercase text
//	for alias phrases on word boundaries, longest phrase first, and returns
//	canonical codes in order of first appearance.
//
// # Thread Safety
//
//	Immutable after construction; safe for concurrent use.
type TeamIndex struct {
	aliases []alias
	codes   map[string]bool
}

var (
	teamIndexOnce sync.Once
	teamIndexInst *TeamIndex
	teamIndexErr  error
)

// DefaultTeamIndex returns the index built from the embedded table.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func DefaultTeamIndex() (*TeamIndex, error) {
	teamIndexOnce.Do(func() {
		teamIndexInst, teamIndexErr = LoadTeamIndex(defaultTeamTableYAML)
	})
	return teamIndexInst, teamIndexErr
}

// LoadTeamIndex parses and validates a team alias table from YAML bytes.
//
// # Inputs
//
//	data - Raw YAML bytes. Must contain at least one team entry.
//
// # Outputs
//
//	*TeamIndex - The built index. Never nil on success.
//	error - Non-nil if parsing fails or the table is malformed.
func LoadTeamIndex(data []byte) (*TeamIndex, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("LoadTeamIndex: empty YAML data")
	}

	var table teamTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("LoadTeamIndex: parsing YAML: %w", err)
	}
	if len(table.Teams) == 0 {
		return nil, fmt.Errorf("LoadTeamIndex: no teams defined")
	}

	idx := &TeamIndex{codes: make(map[string]bool, len(table.Teams))}
	for i, entry := range table.Teams {
		if entry.Code == "" {
			return nil, fmt.Errorf("LoadTeamIndex: team[%d]: code must not be empty", i)
		}
		if len(entry.Aliases) == 0 {
			return nil, fmt.Errorf("LoadTeamIndex: team[%d] (%s): aliases must not be empty", i, entry.Code)
		}
		idx.codes[entry.Code] = true
		for _, a := range entry.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" {
				return nil, fmt.Errorf("LoadTeamIndex: team %s: blank alias", entry.Code)
			}
			idx.aliases = append(idx.aliases, alias{phrase: a, code: entry.Code})
		}
	}

	// Longest phrase first; declaration order breaks length ties.
	sort.SliceStable(idx.aliases, func(i, j int) bool {
		return len(idx.aliases[i].phrase) > len(idx.aliases[j].phrase)
	})

	return idx, nil
}

// Codes returns every canonical franchise code in the table, sorted.
func (ti *TeamIndex) Codes() []string {
	codes := make([]string, 0, len(ti.codes))
	for code := range ti.codes {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Valid reports whether code is a canonical franchise code in the table.
func (ti *TeamIndex) Valid(code string) bool {
	return ti.codes[strings.ToUpper(code)]
}

// FindAll returns the canonical codes of all teams mentioned in text, in
// order of first appearance, deduplicated.
//
// # Inputs
//
//	text - Raw query text. Matching is case-insensitive.
func (ti *TeamIndex) FindAll(text string) []string {
	lower := strings.ToLower(text)
	claimed := make([]bool, len(lower))

	type mention struct {
		pos  int
		code string
	}
	var mentions []mention

	for _, a := range ti.aliases {
		from := 0
		for {
			rel := strings.Index(lower[from:], a.phrase)
			if rel < 0 {
				break
			}
			start := from + rel
			end := start + len(a.phrase)
			from = end
			if !wordBoundary(lower, start, end) {
				continue
			}
			if spanClaimed(claimed, start, end) {
				continue
			}
			for i := start; i < end; i++ {
				claimed[i] = true
			}
			mentions = append(mentions, mention{pos: start, code: a.code})
		}
	}

	sort.Slice(mentions, func(i, j int) bool { return mentions[i].pos < mentions[j].pos })

	var out []string
	seen := make(map[string]bool, len(mentions))
	for _, m := range mentions {
		if seen[m.code] {
			continue
		}
		seen[m.code] = true
		out = append(out, m.code)
	}
	return out
}

func wordBoundary(s string, start, end int) bool {
	if start > 0 && isWordByte(s[start-1]) {
		return false
	}
	if end < len(s) && isWordByte(s[end]) {
		return false
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func spanClaimed(claimed []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}
