package attend

import (
	"image"
	"io"

	"facemark/internal/model"
)

// EvidenceStore persists one annotated snapshot per fired alert, keyed by
// trigger time.
type EvidenceStore interface {
	// Save writes the snapshot for a fired alert and returns the
	// reference under which it was stored.
	Save(rec model.AlertRecord, frame image.Image) (ref string, err error)

	// Recent returns alert records newest-first. n <= 0 returns all.
	Recent(n int) ([]model.AlertRecord, error)

	// Open returns the stored snapshot bytes for a reference, as written
	// (still encrypted when encryption at rest is enabled).
	Open(ref string) (io.ReadCloser, error)
}

// Encryptor handles encryption of evidence snapshots and unlocking for
// decryption. Encryption uses the public key only and needs no user
// intervention. Decryption requires a passphrase to unlock the private
// key, producing a DecryptionContext for the session.
type Encryptor interface {
	// Setup performs one-time key generation. Called during
	// `facemark evidence init`. Generates a key pair, stores the public
	// key in plaintext, and encrypts the private key with the provided
	// passphrase.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	// Uses the public key only, no passphrase required.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase and returns a
	// DecryptionContext that can decrypt snapshots for the duration of
	// the session. Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist at configured
	// paths.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for the
// duration of an evidence review session. Created by Encryptor.Unlock.
// The unlocked key is held in memory only and never written to disk.
type DecryptionContext interface {
	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}
