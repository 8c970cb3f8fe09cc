package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasRoleIsTransitive(t *testing.T) {
	require.True(t, HasRole(RoleAdmin, RoleDeveloper))
	require.True(t, HasRole(RoleAdmin, RoleUser))
	require.True(t, HasRole(RoleDeveloper, RoleUser))
	require.False(t, HasRole(RoleUser, RoleDeveloper))
	require.False(t, HasRole(RoleDeveloper, RoleAdmin))
}

func TestHasRoleSameRoleSatisfies(t *testing.T) {
	require.True(t, HasRole(RoleUser, RoleUser))
}
