package auth

import "github.com/cuemby/meshcore/pkg/types"

// Method names which admission path authenticated a request.
type Method string

const (
	MethodSignature Method = "signature"
	MethodAPIKey    Method = "api_key"
	MethodJWT       Method = "jwt"
)

// Principal is the authenticated caller of a request, regardless of which
// admission path produced it.
type Principal struct {
	Address types.Address
	Method  Method
	Role    Role   // populated on JWT admission; empty otherwise
	Project string // populated when the JWT carries project scoping
}
