// Package filesystem provides implementations of the types.FS
// interface: the real OS filesystem and an afero-backed one used by
// tests to run the whole engine against an in-memory tree.
package filesystem
