package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRole_Satisfies(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		required Role
		expected bool
	}{
		{"client is client", RoleClient, RoleClient, true},
		{"client is not attendant", RoleClient, RoleAttendant, false},
		{"professional is attendant", RoleProfessional, RoleAttendant, true},
		{"attendant is professional", RoleAttendant, RoleProfessional, true},
		{"attendant is not admin", RoleAttendant, RoleAdmin, false},
		{"admin bypasses attendant", RoleAdmin, RoleAttendant, true},
		{"admin bypasses client", RoleAdmin, RoleClient, true},
		{"unknown role satisfies nothing", Role("root"), RoleClient, false},
		{"nothing satisfies unknown role", RoleClient, Role("root"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, tt.role.Satisfies(tt.required))
		})
	}
}

func TestRole_Parse(t *testing.T) {
	r, err := ParseRole("professional")
	require.NoError(t, err)
	require.Equal(t, RoleProfessional, r)
	require.Equal(t, RoleAttendant, r.Canonical())

	_, err = ParseRole("superuser")
	require.Error(t, err, "unknown roles must not be parsed")
}
