// Package types contains the core types shared across aptr: validated
// package names, pin priorities, the filesystem interface, and the
// result types returned by command-level operations.
package types
