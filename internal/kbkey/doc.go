// Package kbkey validates and parses record keys.
//
// A key has exactly five colon-separated segments, each limited to
// lowercase alphanumerics plus '.', '_' and '-':
//
//	session:s1:chat:timeline:main
//
// Validation happens before any storage access, so every persisted key is
// known to satisfy the grammar without storage-level enforcement.
package kbkey
