// Package id provides a 128-bit, lexicographically sortable identifier
// used for conversation and reply correlation.
//
// The ID is 16 bytes big-endian: [8 bytes ms_timestamp][8 bytes sequence],
// so byte-wise comparison preserves chronological order and IDs minted in
// the same millisecond remain strictly increasing by sequence. The
// Generator guarantees per-process monotonicity even across clock
// regressions.
package id
