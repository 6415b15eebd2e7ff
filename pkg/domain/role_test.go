package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "qualtrack/pkg/domain-errors"
)

// TestRoleHierarchy encodes the ordering invariant viewer < editor < org_admin < admin.
func TestRoleHierarchy(t *testing.T) {
	ordered := []Role{RoleViewer, RoleEditor, RoleOrgAdmin, RoleAdmin}
	for i := 1; i < len(ordered); i++ {
		assert.True(t, ordered[i].Above(ordered[i-1]), "%s above %s", ordered[i], ordered[i-1])
		assert.False(t, ordered[i-1].Above(ordered[i]))
		assert.True(t, ordered[i].AtLeast(ordered[i]))
	}

	t.Run("unknown roles never satisfy comparisons", func(t *testing.T) {
		assert.False(t, Role("root").AtLeast(RoleViewer))
		assert.False(t, Role("").Above(RoleViewer))
	})

	t.Run("reviewers are org_admin and admin", func(t *testing.T) {
		assert.False(t, RoleViewer.IsReviewer())
		assert.False(t, RoleEditor.IsReviewer())
		assert.True(t, RoleOrgAdmin.IsReviewer())
		assert.True(t, RoleAdmin.IsReviewer())
	})

	assert.Equal(t, RoleAdmin, MaxRole(RoleOrgAdmin, RoleAdmin))
	assert.Equal(t, RoleOrgAdmin, MaxRole(RoleOrgAdmin, RoleEditor))
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("org_admin")
	require.NoError(t, err)
	assert.Equal(t, RoleOrgAdmin, r)

	for _, in := range []string{"", "superuser", "ADMIN"} {
		_, err := ParseRole(in)
		require.Error(t, err, in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	}
}
