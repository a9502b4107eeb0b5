package auth

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagedRolesIsNextLevelDown(t *testing.T) {
	cases := map[Role][]Role{
		RoleProvinceAdmin: {RoleDistrictAdmin},
		RoleDistrictAdmin: {RoleWardAdmin},
		RoleWardAdmin:     {RoleCitizen},
		RoleCitizen:       nil,
	}
	for role, want := range cases {
		t.Run(role.String(), func(t *testing.T) {
			got := ManagedRoles(role)
			assert.ElementsMatch(t, want, got)
			for _, m := range got {
				assert.Equal(t, role-1, m, "managed role must be exactly one level down")
			}
		})
	}
}

func TestSuperAdminManagesAdminsOnly(t *testing.T) {
	p := PolicyFor(RoleSuperAdmin)
	assert.True(t, p.Unscoped)
	for _, r := range []Role{RoleProvinceAdmin, RoleDistrictAdmin, RoleWardAdmin} {
		assert.True(t, p.CanManage(r), r.String())
	}
	assert.False(t, p.CanManage(RoleSuperAdmin))
	assert.False(t, p.CanManage(RoleCitizen))
}

func TestPolicyForReturnsCopy(t *testing.T) {
	p := PolicyFor(RoleSuperAdmin)
	p.Manages[0] = RoleSuperAdmin
	assert.False(t, PolicyFor(RoleSuperAdmin).CanManage(RoleSuperAdmin))
}

func TestUnknownRoleHasEmptyPolicy(t *testing.T) {
	p := PolicyFor(RoleUnknown)
	assert.Empty(t, p.Manages)
	assert.Empty(t, p.Viewable)
	assert.False(t, p.Unscoped)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("provinceadmin")
	require.NoError(t, err)
	assert.Equal(t, RoleProvinceAdmin, r)

	r, err = ParseRole(" SuperAdmin ")
	require.NoError(t, err)
	assert.Equal(t, RoleSuperAdmin, r)

	_, err = ParseRole("Emperor")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRoleJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		Role Role `json:"role"`
	}{RoleWardAdmin})
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"WardAdmin"}`, string(raw))

	var out struct {
		Role Role `json:"role"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"role":"districtADMIN"}`), &out))
	assert.Equal(t, RoleDistrictAdmin, out.Role)
	assert.Error(t, json.Unmarshal([]byte(`{"role":"nobody"}`), &out))
}

func TestOutranks(t *testing.T) {
	assert.True(t, RoleSuperAdmin.Outranks(RoleProvinceAdmin))
	assert.True(t, RoleWardAdmin.Outranks(RoleCitizen))
	assert.False(t, RoleCitizen.Outranks(RoleCitizen))
	assert.False(t, RoleSuperAdmin.Outranks(RoleUnknown))
}

func TestRequireUnits(t *testing.T) {
	assert.NoError(t, RequireUnits(Identity{Role: RoleSuperAdmin}))
	assert.NoError(t, RequireUnits(Identity{Role: RoleCitizen}))
	assert.NoError(t, RequireUnits(Identity{Role: RoleWardAdmin, WardID: IntPtr(4)}))
	assert.ErrorIs(t, RequireUnits(Identity{Role: RoleDistrictAdmin, ProvinceID: IntPtr(1)}), ErrInvalidInput)
}
