// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"github.com/AleutianAI/sentinel/services/sentinel/markov"
)

// UnifyTransitions reconciles the transition sets of two models.
//
// Description:
//
//	Each transition of a is looked up exactly in b. On a miss, every proper
//	suffix of its context (down to the empty context) is tried with the
//	same next location; the first hit means b reduced this context, so the
//	longer transition is kept and b's shorter one is marked subsumed. The
//	same is repeated from b against a. The result is every exact or
//	suffix-matched transition plus every unmatched transition that nothing
//	subsumed, giving one transition per semantic (context, next) at the
//	most specific granularity either model observed.
//
// Inputs:
//
//	a, b - The models to reconcile. Neither is modified.
//
// Outputs:
//
//	[]markov.Transition - The unified set, sorted by transition key.
func UnifyTransitions(a, b *markov.VariableOrderGraph) []markov.Transition {
	u := unifier{
		unified:   make(map[markov.TransitionKey]markov.Transition),
		subsumed:  make(map[markov.TransitionKey]struct{}),
		unmatched: make(map[markov.TransitionKey]markov.Transition),
	}
	u.scan(a, b)
	u.scan(b, a)

	for key, t := range u.unmatched {
		if _, ok := u.subsumed[key]; ok {
			continue
		}
		u.unified[key] = t
	}

	out := make([]markov.Transition, 0, len(u.unified))
	for _, t := range u.unified {
		out = append(out, t)
	}
	markov.SortTransitions(out)
	return out
}

type unifier struct {
	unified   map[markov.TransitionKey]markov.Transition
	subsumed  map[markov.TransitionKey]struct{}
	unmatched map[markov.TransitionKey]markov.Transition
}

func (u *unifier) scan(from, against *markov.VariableOrderGraph) {
	for _, t := range from.Transitions() {
		key := t.Key()
		if against.Has(t) {
			u.unified[key] = t
			continue
		}
		matched := false
		for start := 1; start <= len(t.Context); start++ {
			reduced := t.WithContext(t.Context[start:])
			if against.Has(reduced) {
				u.unified[key] = t
				u.subsumed[reduced.Key()] = struct{}{}
				matched = true
				break
			}
		}
		if !matched {
			u.unmatched[key] = t
		}
	}
}
