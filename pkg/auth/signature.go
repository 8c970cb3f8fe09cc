package auth

import (
	"github.com/cuemby/meshcore/pkg/apierr"
	"github.com/cuemby/meshcore/pkg/signing"
)

// SignatureAuthenticator admits requests carrying a
// "Signature <sig>.<recovery_id>.<message>" Authorization header; the
// recovered address is the principal, with no further directory lookup
// (unlike pkg/gossip's peer-to-peer variant, which additionally checks the
// signer against a known-peer directory).
type SignatureAuthenticator struct{}

// NewSignatureAuthenticator constructs a SignatureAuthenticator.
func NewSignatureAuthenticator() *SignatureAuthenticator {
	return &SignatureAuthenticator{}
}

// Authenticate parses and recovers header, the Authorization header value.
func (a *SignatureAuthenticator) Authenticate(header string) (Principal, error) {
	sig, recoveryID, message, err := signing.ParseHeaderValue(header)
	if err != nil {
		return Principal{}, apierr.Unauthorized("malformed signature header: %v", err)
	}

	addr, err := signing.Recover(sig, recoveryID, message)
	if err != nil {
		return Principal{}, apierr.Unauthorized("signature recovery failed: %v", err)
	}

	return Principal{Address: addr, Method: MethodSignature}, nil
}
