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

// ContextIndex maps an exact context to the items recorded under it.
//
// Description:
//
//	Buckets preserve insertion order, but order carries no meaning. Lookup
//	through Find falls back from the most specific context to shorter
//	suffixes; Contains tests an exact key only and exists to check the
//	order-reduction invariant.
//
//	The variable-order model indexes Transitions; the fixed-order graph
//	indexes *Edge under one-element contexts.
//
// Thread Safety: Safe for concurrent reads after the last Add.
type ContextIndex[T any] struct {
	buckets  map[ContextKey][]T
	contexts map[ContextKey][]Location
}

// NewContextIndex creates an empty index.
func NewContextIndex[T any]() *ContextIndex[T] {
	return &ContextIndex[T]{
		buckets:  make(map[ContextKey][]T),
		contexts: make(map[ContextKey][]Location),
	}
}

// Add appends item to the bucket for the exact context ctx.
func (ix *ContextIndex[T]) Add(ctx []Location, item T) {
	key := KeyOf(ctx)
	if _, ok := ix.contexts[key]; !ok {
		c := make([]Location, len(ctx))
		copy(c, ctx)
		ix.contexts[key] = c
	}
	ix.buckets[key] = append(ix.buckets[key], item)
}

// Find resolves ctx to the bucket of its longest suffix present in the index.
//
// Description:
//
//	Strips the oldest element of ctx until a non-empty bucket is found,
//	down to and including the empty context. This realizes "most specific
//	context wins, fall back to less specific".
//
// Inputs:
//
//	ctx - The context to resolve, most recent last.
//
// Outputs:
//
//	[]T - The bucket (shared, do not modify), or nil if no suffix matched.
//	[]Location - The resolved suffix of ctx, or nil when nothing matched.
func (ix *ContextIndex[T]) Find(ctx []Location) ([]T, []Location) {
	for start := 0; start <= len(ctx); start++ {
		suffix := ctx[start:]
		if bucket := ix.buckets[KeyOf(suffix)]; len(bucket) > 0 {
			return bucket, suffix
		}
	}
	return nil, nil
}

// Lookup returns only the bucket half of Find.
func (ix *ContextIndex[T]) Lookup(ctx []Location) []T {
	bucket, _ := ix.Find(ctx)
	return bucket
}

// Contains reports whether ctx is present as an exact key. No fallback.
func (ix *ContextIndex[T]) Contains(ctx []Location) bool {
	_, ok := ix.buckets[KeyOf(ctx)]
	return ok
}

// Bucket returns the exact bucket for ctx without fallback.
func (ix *ContextIndex[T]) Bucket(ctx []Location) []T {
	return ix.buckets[KeyOf(ctx)]
}

// Len returns the number of distinct contexts.
func (ix *ContextIndex[T]) Len() int {
	return len(ix.buckets)
}

// Contexts returns every context key present, as location slices.
func (ix *ContextIndex[T]) Contexts() [][]Location {
	out := make([][]Location, 0, len(ix.contexts))
	for _, ctx := range ix.contexts {
		out = append(out, ctx)
	}
	return out
}
