package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntity() CanonicalEntity {
	return CanonicalEntity{
		ExternalID: "E1",
		FullName:   "Ivanov Ivan Ivanovich",
		Phone:      "+79991234567",
		StatusRaw:  "Active",
	}
}

func TestCreateKeyDeterminism(t *testing.T) {
	c := sampleEntity()

	k1, err := CreateKey("skud", c)
	require.NoError(t, err)
	k2, err := CreateKey("skud", c)
	require.NoError(t, err)

	assert.Equal(t, k1, k2, "CreateKey must be deterministic")
	assert.Len(t, k1, 64, "SHA-256 hex is 64 characters")
}

func TestCreateKeyIgnoresUnstableFields(t *testing.T) {
	c := sampleEntity()
	moved := c
	moved.GroupKey = "11-B"
	moved.StatusRaw = "Enrolled"
	moved.Role = RoleActive
	moved.Secrets = map[string]string{"password": "hunter2"}

	assert.Equal(t, MustCreateKey("skud", c), MustCreateKey("skud", moved),
		"group, status, role and secrets are not identity fields")
}

func TestCreateKeyChangesWithIdentity(t *testing.T) {
	base := sampleEntity()

	renamed := base
	renamed.FullName = "Ivanov Ivan"
	rephoned := base
	rephoned.Phone = "+79990000000"
	other := base
	other.ExternalID = "E2"

	k := MustCreateKey("skud", base)
	assert.NotEqual(t, k, MustCreateKey("skud", renamed))
	assert.NotEqual(t, k, MustCreateKey("skud", rephoned))
	assert.NotEqual(t, k, MustCreateKey("skud", other))
	assert.NotEqual(t, k, MustCreateKey("lms", base), "keys are scoped to the target directory")
}

func TestSnapshotHashOrderSensitive(t *testing.T) {
	a := DownstreamEntity{DownstreamID: "1", Fields: map[string]string{"phone": "+7"}}
	b := DownstreamEntity{DownstreamID: "2", Fields: map[string]string{"phone": "+8"}, MatchKeys: []string{"E2"}}

	h1, err := SnapshotHash([]DownstreamEntity{a, b})
	require.NoError(t, err)
	h2, err := SnapshotHash([]DownstreamEntity{a, b})
	require.NoError(t, err)
	h3, err := SnapshotHash([]DownstreamEntity{b, a})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}

func TestDomainsCarrySchemeVersions(t *testing.T) {
	assert.Equal(t, "roster/create/v"+KeyVersion, DomainCreate)
	assert.Equal(t, "roster/snapshot/v"+SnapshotVersion, DomainSnapshot)
	assert.NotEqual(t, DomainCreate, DomainSnapshot)
}
