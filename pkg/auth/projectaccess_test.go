package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProjectAccessOwnerSatisfiesAnyRequirement(t *testing.T) {
	s := NewProjectAccessStore()
	s.Grant("proj-1", ResourceAgent, "agent-1", AccessOwner, "admin", nil)

	require.NoError(t, s.CheckAccess("proj-1", ResourceAgent, "agent-1", AccessReadOnly))
	require.NoError(t, s.CheckAccess("proj-1", ResourceAgent, "agent-1", AccessFullAccess))
	require.NoError(t, s.CheckAccess("proj-1", ResourceAgent, "agent-1", AccessOwner))
}

func TestProjectAccessReadOnlyDoesNotSatisfyFullAccess(t *testing.T) {
	s := NewProjectAccessStore()
	s.Grant("proj-1", ResourceModel, "model-1", AccessReadOnly, "admin", nil)

	require.NoError(t, s.CheckAccess("proj-1", ResourceModel, "model-1", AccessReadOnly))
	require.Error(t, s.CheckAccess("proj-1", ResourceModel, "model-1", AccessFullAccess))
}

func TestProjectAccessUnknownProjectIsForbidden(t *testing.T) {
	s := NewProjectAccessStore()
	require.Error(t, s.CheckAccess("ghost", ResourceAgent, "agent-1", AccessReadOnly))
}

func TestProjectAccessExpiredGrantIsForbidden(t *testing.T) {
	s := NewProjectAccessStore()
	past := time.Now().Add(-time.Hour)
	s.Grant("proj-1", ResourceAgent, "agent-1", AccessOwner, "admin", &past)

	require.Error(t, s.CheckAccess("proj-1", ResourceAgent, "agent-1", AccessReadOnly))
}

func TestProjectAccessRevoke(t *testing.T) {
	s := NewProjectAccessStore()
	s.Grant("proj-1", ResourceAgent, "agent-1", AccessOwner, "admin", nil)
	require.True(t, s.Revoke("proj-1", ResourceAgent, "agent-1"))
	require.Error(t, s.CheckAccess("proj-1", ResourceAgent, "agent-1", AccessReadOnly))
	require.False(t, s.Revoke("proj-1", ResourceAgent, "agent-1"))
}

func TestProjectAccessGrantReplacesExisting(t *testing.T) {
	s := NewProjectAccessStore()
	s.Grant("proj-1", ResourceAgent, "agent-1", AccessReadOnly, "admin", nil)
	s.Grant("proj-1", ResourceAgent, "agent-1", AccessOwner, "admin", nil)
	require.NoError(t, s.CheckAccess("proj-1", ResourceAgent, "agent-1", AccessOwner))
}
