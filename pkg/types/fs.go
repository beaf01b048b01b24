package types

import "io/fs"

// FS abstracts the filesystem operations aptr performs so the registry,
// graph and preference stores can run against an in-memory filesystem in
// tests. See pkg/filesystem for the OS and afero implementations.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	MkdirAll(path string, perm fs.FileMode) error
	Remove(name string) error
	Rename(oldpath, newpath string) error
	ReadDir(name string) ([]fs.DirEntry, error)
}
