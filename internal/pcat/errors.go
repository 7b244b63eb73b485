package pcat

import "errors"

var (
	// ErrInvalidArgument reports a null or empty required argument.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCorruptTable reports a record table whose header or rows cannot be read.
	ErrCorruptTable = errors.New("corrupt record table")

	// ErrCorruptBlob reports a thumbnail blob that does not decode.
	ErrCorruptBlob = errors.New("corrupt thumbnail blob")

	// ErrNoBackup reports that no snapshot is available to restore from.
	ErrNoBackup = errors.New("no backup available")

	// ErrLocked reports an encrypted snapshot restore attempted before Unlock.
	ErrLocked = errors.New("backup encryption is locked")
)
