// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"fmt"

	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

// LocationTable maps the numeric event ids of one dump to locations and
// back. Ids are local to the dump that declared them.
//
// Thread Safety: Not safe for concurrent mutation.
type LocationTable struct {
	byID  map[int]markov.Location
	byLoc map[markov.Location]int
	order []markov.Location
}

// NewLocationTable creates an empty table.
func NewLocationTable() *LocationTable {
	return &LocationTable{
		byID:  make(map[int]markov.Location),
		byLoc: make(map[markov.Location]int),
	}
}

// Add registers id for loc. Reusing an id is an error.
func (t *LocationTable) Add(id int, loc markov.Location) error {
	if prev, ok := t.byID[id]; ok {
		return fmt.Errorf("%w: %d already names %s", ErrDuplicateID, id, prev)
	}
	t.byID[id] = loc
	if _, ok := t.byLoc[loc]; !ok {
		t.byLoc[loc] = id
		t.order = append(t.order, loc)
	}
	return nil
}

// Location resolves an id.
func (t *LocationTable) Location(id int) (markov.Location, error) {
	loc, ok := t.byID[id]
	if !ok {
		return markov.Location{}, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return loc, nil
}

// ID returns the id first registered for loc.
func (t *LocationTable) ID(loc markov.Location) (int, bool) {
	id, ok := t.byLoc[loc]
	return id, ok
}

// Locations returns the distinct locations in declaration order.
func (t *LocationTable) Locations() []markov.Location {
	return append([]markov.Location(nil), t.order...)
}

// Len returns the number of registered ids.
func (t *LocationTable) Len() int {
	return len(t.byID)
}
