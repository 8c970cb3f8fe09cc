package apierr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	cases := map[*Error]int{
		NotFound("missing"):                        http.StatusNotFound,
		InvalidRequest("bad body"):                  http.StatusBadRequest,
		Unauthorized("bad sig"):                     http.StatusUnauthorized,
		Forbidden("insufficient role"):              http.StatusForbidden,
		Conflict("stale head"):                      http.StatusConflict,
		RateLimited("too many"):                     http.StatusTooManyRequests,
		DependencyFailure(errors.New("down"), "x"):  http.StatusBadGateway,
		Internal(errors.New("panic"), "boom"):       http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, err.Status())
	}
}

func TestAsWrapsUnclassifiedError(t *testing.T) {
	plain := errors.New("oops")
	wrapped := As(plain)
	require.Equal(t, KindInternal, wrapped.Kind)
	require.ErrorIs(t, wrapped, plain)
}

func TestAsPassesThroughExisting(t *testing.T) {
	original := NotFound("node %s", "n1")
	require.Same(t, original, As(original))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Internal(cause, "wrapped")
	require.ErrorIs(t, err, cause)
}
