package pcat

import "io"

// Vault provides an interface for backup storage backends.
// Objects are opaque named blobs; all transfers stream through
// io.Reader/io.Writer so large snapshots never sit in memory.
type Vault interface {
	// Name identifies the vault in logs and error messages.
	Name() string

	// Put stores an object under name, replacing any existing object.
	// size is the number of bytes that will be read from r.
	Put(name string, r io.Reader, size int64) error

	// Get writes the named object to w.
	Get(name string, w io.Writer) error

	// Delete removes the named object. Deleting a missing object is not an error.
	Delete(name string) error

	// List returns the names of all stored objects in lexical order.
	List() ([]string, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
