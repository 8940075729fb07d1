package team

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoundRobinRequiresMembers(t *testing.T) {
	_, err := NewRoundRobin()
	assert.Error(t, err)
}

func TestRotatePrimus(t *testing.T) {
	tm, err := NewRoundRobin("alpha", "beta", "gamma")
	require.NoError(t, err)

	assert.Equal(t, "primus", tm.RoleMap()["alpha"])

	require.NoError(t, tm.RotatePrimus())
	roles := tm.RoleMap()
	assert.Equal(t, "primus", roles["beta"])
	assert.NotEqual(t, "primus", roles["alpha"])

	// Rotation wraps around.
	require.NoError(t, tm.RotatePrimus())
	require.NoError(t, tm.RotatePrimus())
	assert.Equal(t, "primus", tm.RoleMap()["alpha"])
}

func TestSupportRolesAssigned(t *testing.T) {
	tm, err := NewRoundRobin("alpha", "beta", "gamma", "delta")
	require.NoError(t, err)

	roles := tm.RoleMap()
	assert.Equal(t, "primus", roles["alpha"])
	assert.Equal(t, "worker", roles["beta"])
	assert.Equal(t, "evaluator", roles["gamma"])
	assert.Equal(t, "supervisor", roles["delta"])
}

func TestRoleMapIsACopy(t *testing.T) {
	tm, err := NewRoundRobin("alpha", "beta")
	require.NoError(t, err)

	roles := tm.RoleMap()
	roles["alpha"] = "tampered"
	assert.Equal(t, "primus", tm.RoleMap()["alpha"])
}
