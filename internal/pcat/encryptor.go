package pcat

import "io"

// Encryptor seals backup snapshots with a public key and opens them again
// once the private key has been unlocked with a passphrase.
type Encryptor interface {
	// Setup generates the key pair, writing the public key in the clear and
	// the private key sealed with passphrase. Called by `pcat encryption init`.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock opens the private key. A wrong passphrase is an error.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for a restore.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
