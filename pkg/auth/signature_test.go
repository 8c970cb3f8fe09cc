package auth

import (
	"testing"

	"github.com/cuemby/meshcore/pkg/signing"
	"github.com/stretchr/testify/require"
)

func TestSignatureAuthenticatorRecoversSigner(t *testing.T) {
	kp, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	message := []byte("hello")
	sig, recoveryID, err := signing.Sign(kp.Private, message)
	require.NoError(t, err)
	header := signing.HeaderValue(sig, recoveryID, message)

	authr := NewSignatureAuthenticator()
	principal, err := authr.Authenticate(header)
	require.NoError(t, err)
	require.Equal(t, kp.Address, principal.Address)
	require.Equal(t, MethodSignature, principal.Method)
}

func TestSignatureAuthenticatorRejectsMalformedHeader(t *testing.T) {
	authr := NewSignatureAuthenticator()
	_, err := authr.Authenticate("garbage")
	require.Error(t, err)
}
