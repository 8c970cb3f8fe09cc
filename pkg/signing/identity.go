package signing

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// LoadOrGenerateKeyPair reads a hex-encoded private key from path, or
// generates a fresh one and persists it there (mode 0600) if path does not
// yet exist. Every node and CLI collaborator uses this to keep a stable
// identity across restarts.
func LoadOrGenerateKeyPair(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		raw, err := hex.DecodeString(string(trimNewline(data)))
		if err != nil {
			return nil, fmt.Errorf("signing: decode identity at %s: %w", path, err)
		}
		priv := secp256k1.PrivKeyFromBytes(raw)
		return &KeyPair{Private: priv, Address: AddressFromPubkey(priv.PubKey())}, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("signing: read identity at %s: %w", path, err)
	}

	kp, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("signing: create identity dir: %w", err)
	}
	encoded := hex.EncodeToString(kp.Private.Serialize())
	if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("signing: persist identity at %s: %w", path, err)
	}
	return kp, nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
