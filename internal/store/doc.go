// Package store is the versioned document layer shared by the tracker.
//
// Documents are whole JSON blobs addressed by path. Every save rewrites
// the full document; a version token loaded alongside a document makes a
// later save conditional (compare-and-swap). There is deliberately no
// reload-and-retry on conflict: a caller that loses the race has its
// update dropped, and the stored document reflects only the winner.
package store
