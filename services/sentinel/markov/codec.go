// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package markov

import (
	"encoding/json"
	"fmt"
)

// modelFormatVersion is bumped on incompatible document changes.
const modelFormatVersion = 1

// modelDocument is the serialized form of a VariableOrderGraph.
type modelDocument struct {
	Version     int               `json:"version"`
	Known       []Location        `json:"known_locations"`
	Events      []eventDocument   `json:"events"`
	Transitions []TransitionCount `json:"transitions"`
}

type eventDocument struct {
	Location    Location `json:"location"`
	Count       uint64   `json:"count"`
	Probability float64  `json:"probability"`
}

// Marshal serializes the model. Output is deterministic for a given model.
func (g *VariableOrderGraph) Marshal() ([]byte, error) {
	doc := modelDocument{
		Version:     modelFormatVersion,
		Known:       g.KnownLocations(),
		Events:      make([]eventDocument, 0, len(g.events)),
		Transitions: g.TransitionCounts(),
	}
	if doc.Known == nil {
		doc.Known = []Location{}
	}
	for _, ev := range g.Events() {
		doc.Events = append(doc.Events, eventDocument{
			Location:    ev.Location,
			Count:       g.events[ev.Location],
			Probability: ev.Probability,
		})
	}
	return json.Marshal(doc)
}

// Unmarshal reconstructs a model produced by Marshal and validates it.
//
// Description:
//
//	Probabilities are re-derived from the stored counts, so a document whose
//	probability fields were edited by hand does not alter the model. A model
//	breaking the order-reduction invariant fails exactly as Validate does.
//
// Outputs:
//
//	*VariableOrderGraph - The decoded model, nil on error.
//	error - ErrDecode for malformed input, *ModelInvariantError when invalid.
func Unmarshal(data []byte) (*VariableOrderGraph, error) {
	var doc modelDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if doc.Version != modelFormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrDecode, doc.Version)
	}

	events := make(map[Location]uint64, len(doc.Events))
	for _, ev := range doc.Events {
		if _, dup := events[ev.Location]; dup {
			return nil, fmt.Errorf("%w: duplicate event %s", ErrDecode, ev.Location)
		}
		events[ev.Location] = ev.Count
	}
	g := FromCounts(events, doc.Transitions, WithKnownLocations(doc.Known))
	if g.NumTransitions() != len(doc.Transitions) {
		return nil, fmt.Errorf("%w: duplicate transitions", ErrDecode)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
