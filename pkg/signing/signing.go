// Package signing implements sign/verify/recover over secp256k1,
// and derivation of the Ethereum-style 20-byte address that identifies
// every node and account in the fleet, using
// github.com/decred/dcrd/dcrec/secp256k1 for the curve and
// golang.org/x/crypto/sha3 for Keccak256.
package signing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/meshcore/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// KeyPair holds a secp256k1 private key and its derived address.
type KeyPair struct {
	Private *secp256k1.PrivateKey
	Address types.Address
}

// GenerateKeyPair creates a new random signing identity.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeyPair{Private: priv, Address: AddressFromPubkey(priv.PubKey())}, nil
}

// AddressFromPubkey derives the 20-byte hex address from an uncompressed
// secp256k1 public key: Keccak256(pubkey.X||pubkey.Y)[12:].
func AddressFromPubkey(pub *secp256k1.PublicKey) types.Address {
	raw := pub.SerializeUncompressed()[1:] // drop the 0x04 prefix, 64 bytes
	hash := sha3.NewLegacyKeccak256()
	hash.Write(raw)
	digest := hash.Sum(nil)
	return types.Address("0x" + hex.EncodeToString(digest[12:]))
}

// Sign signs message with SHA-256 pre-hashing and returns the 64-byte
// (R||S) signature and its recovery id, the two parts HeaderValue encodes
// into the Authorization header.
func Sign(priv *secp256k1.PrivateKey, message []byte) (sig []byte, recoveryID byte, err error) {
	digest := sha256.Sum256(message)
	compact := ecdsa.SignCompact(priv, digest[:], false)
	// ecdsa.SignCompact returns [recovery_id+27, R(32), S(32)].
	recoveryID = compact[0] - 27
	out := make([]byte, 64)
	copy(out, compact[1:])
	return out, recoveryID, nil
}

// Recover recovers the signer's address from a 64-byte (R||S) signature,
// a recovery id, and the original message.
func Recover(sig []byte, recoveryID byte, message []byte) (types.Address, error) {
	if len(sig) != 64 {
		return "", fmt.Errorf("signing: signature must be 64 bytes, got %d", len(sig))
	}
	digest := sha256.Sum256(message)
	compact := make([]byte, 65)
	compact[0] = recoveryID + 27
	copy(compact[1:], sig)
	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return "", fmt.Errorf("signing: recover: %w", err)
	}
	return AddressFromPubkey(pub), nil
}

// Verify reports whether sig/recoveryID over message recovers to want.
func Verify(sig []byte, recoveryID byte, message []byte, want types.Address) bool {
	got, err := Recover(sig, recoveryID, message)
	if err != nil {
		return false
	}
	return strings.EqualFold(string(got), string(want))
}

// HeaderValue formats the `Signature <sig_hex>.<recovery_id>.<message_hex>`
// Authorization header value.
func HeaderValue(sig []byte, recoveryID byte, message []byte) string {
	return fmt.Sprintf("Signature %s.%d.%s", hex.EncodeToString(sig), recoveryID, hex.EncodeToString(message))
}

// ParseHeaderValue parses a `Signature <sig_hex>.<recovery_id>.<message_hex>`
// Authorization header value.
func ParseHeaderValue(header string) (sig []byte, recoveryID byte, message []byte, err error) {
	const prefix = "Signature "
	if !strings.HasPrefix(header, prefix) {
		return nil, 0, nil, fmt.Errorf("signing: missing Signature prefix")
	}
	parts := strings.Split(strings.TrimPrefix(header, prefix), ".")
	if len(parts) != 3 {
		return nil, 0, nil, fmt.Errorf("signing: expected 3 dot-separated parts, got %d", len(parts))
	}
	sig, err = hex.DecodeString(parts[0])
	if err != nil {
		return nil, 0, nil, fmt.Errorf("signing: bad signature hex: %w", err)
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id < 0 || id > 255 {
		return nil, 0, nil, fmt.Errorf("signing: bad recovery id %q", parts[1])
	}
	message, err = hex.DecodeString(parts[2])
	if err != nil {
		return nil, 0, nil, fmt.Errorf("signing: bad message hex: %w", err)
	}
	return sig, byte(id), message, nil
}
