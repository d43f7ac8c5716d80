package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/roster/internal/model"
)

func newResolver(t *testing.T, policies ...FieldPolicy) *Resolver {
	t.Helper()
	r, err := New(nil, policies...)
	require.NoError(t, err)
	return r
}

func ivanov() model.CanonicalEntity {
	return model.CanonicalEntity{
		ExternalID: "E1",
		FullName:   "Ivanov Ivan Ivanovich",
		Phone:      "+79991234567",
		StatusRaw:  "Active",
		Role:       model.RoleActive,
	}
}

// TestResolvePatchIdentical tests that x against itself yields no patch.
func TestResolvePatchIdentical(t *testing.T) {
	r := newResolver(t)
	c := ivanov()
	c.Email = "ivan@example.com"
	c.GroupKey = "10A"

	d := model.DownstreamEntity{DownstreamID: "d1", Fields: c.Payload(), MatchKeys: []string{"E1"}}

	assert.True(t, r.ResolvePatch(c, d).Empty())
}

// TestResolvePatchOnlyChangedPhone tests the update half of the end-to-end
// scenario.
func TestResolvePatchOnlyChangedPhone(t *testing.T) {
	r := newResolver(t)
	d := model.DownstreamEntity{
		DownstreamID: "d1",
		MatchKeys:    []string{"E1"},
		Fields:       map[string]string{model.FieldPhone: "+79991111111"},
	}

	assert.Equal(t, model.Patch{model.FieldPhone: "+79991234567"}, r.ResolvePatch(ivanov(), d))
}

// TestResolvePatchNormalizesDownstream tests that formatting noise on the
// downstream side is not a difference.
func TestResolvePatchNormalizesDownstream(t *testing.T) {
	r := newResolver(t)
	c := ivanov()
	c.Email = "ivan@example.com"
	c.GroupKey = "math, physics"

	d := model.DownstreamEntity{Fields: map[string]string{
		model.FieldFullName: "  Ivanov   Ivan Ivanovich ",
		model.FieldPhone:    "8 (999) 123-45-67",
		model.FieldEmail:    "IVAN@Example.com ",
		model.FieldGroups:   "physics;math;math",
	}}

	assert.Nil(t, r.ResolvePatch(c, d))
}

// TestResolvePatchSkipsEmptyCanonical tests that canonical blanks never
// clear downstream values.
func TestResolvePatchSkipsEmptyCanonical(t *testing.T) {
	r := newResolver(t)
	c := ivanov()
	c.Phone = ""

	d := model.DownstreamEntity{Fields: map[string]string{
		model.FieldFullName: c.FullName,
		model.FieldPhone:    "+79991111111",
		model.FieldEmail:    "old@example.com",
	}}

	assert.True(t, r.ResolvePatch(c, d).Empty())
}

// TestResolvePatchNameChange tests that names compare case-sensitively.
func TestResolvePatchNameChange(t *testing.T) {
	r := newResolver(t)
	d := model.DownstreamEntity{Fields: map[string]string{
		model.FieldFullName: "ivanov ivan ivanovich",
		model.FieldPhone:    "+79991234567",
	}}

	assert.Equal(t, model.Patch{model.FieldFullName: "Ivanov Ivan Ivanovich"}, r.ResolvePatch(ivanov(), d))
}

// TestResolvePatchSet tests set comparison and the written form.
func TestResolvePatchSet(t *testing.T) {
	r := newResolver(t)
	c := ivanov()
	c.GroupKey = "physics; math"

	d := model.DownstreamEntity{Fields: map[string]string{model.FieldGroups: "math"}}

	assert.Equal(t, model.Patch{model.FieldGroups: "math,physics"}, r.ResolvePatch(c, d))
}

// TestResolvePatchSecrets tests that secrets are filled in but never
// overwritten.
func TestResolvePatchSecrets(t *testing.T) {
	r := newResolver(t,
		FieldPolicy{Field: model.FieldPhone, Kind: KindPhone},
		FieldPolicy{Field: "password", Kind: KindSecret},
	)
	c := ivanov()
	c.Secrets = map[string]string{"password": "s3cret"}

	unset := model.DownstreamEntity{Fields: map[string]string{model.FieldPhone: c.Phone, "password": ""}}
	assert.Equal(t, model.Patch{"password": "s3cret"}, r.ResolvePatch(c, unset))

	set := model.DownstreamEntity{Fields: map[string]string{model.FieldPhone: c.Phone, "password": "hash"}}
	assert.Nil(t, r.ResolvePatch(c, set), "an existing secret is kept")

	absent := model.DownstreamEntity{Fields: map[string]string{model.FieldPhone: c.Phone}}
	assert.Equal(t, model.Patch{"password": "s3cret"}, r.ResolvePatch(c, absent),
		"a secret missing from the snapshot counts as unset")

	absentPhone := model.DownstreamEntity{Fields: map[string]string{"password": "hash"}}
	assert.Nil(t, r.ResolvePatch(c, absentPhone), "a plain field missing from the snapshot is left alone")

	c.Secrets = nil
	assert.Nil(t, r.ResolvePatch(c, unset), "empty canonical secret never writes")

	assert.True(t, r.IsSecret("password"))
	assert.False(t, r.IsSecret(model.FieldPhone))
}

// TestResolvePatchReactivates tests that live entities un-suspend records.
func TestResolvePatchReactivates(t *testing.T) {
	r := newResolver(t)
	c := ivanov()
	d := model.DownstreamEntity{Fields: c.Payload(), Suspended: true}

	assert.Equal(t, model.Patch{model.FieldSuspended: "false"}, r.ResolvePatch(c, d))

	c.Role = model.RoleRemovable
	assert.Nil(t, r.ResolvePatch(c, d))
}

// TestResolvePatchDoesNotMutate tests purity.
func TestResolvePatchDoesNotMutate(t *testing.T) {
	r := newResolver(t)
	c := ivanov()
	fields := map[string]string{model.FieldPhone: "+79991111111"}
	d := model.DownstreamEntity{Fields: fields}

	_ = r.ResolvePatch(c, d)
	_ = r.ResolvePatch(c, d)

	assert.Equal(t, map[string]string{model.FieldPhone: "+79991111111"}, fields)
	assert.Equal(t, ivanov(), c)
}

func TestNewRejectsBadPolicies(t *testing.T) {
	_, err := New(nil, FieldPolicy{Field: "x", Kind: "fuzzy"})
	assert.ErrorContains(t, err, "unknown kind")

	_, err = New(nil, FieldPolicy{Field: "x", Kind: KindPlain}, FieldPolicy{Field: "x", Kind: KindSet})
	assert.ErrorContains(t, err, "listed twice")

	_, err = New(nil, FieldPolicy{Kind: KindPlain})
	assert.Error(t, err)
}

func TestSplitSet(t *testing.T) {
	assert.Equal(t, []string{"a", "b c"}, SplitSet(" b  c ; a,,a "))
	assert.Empty(t, SplitSet(" ; , "))
}
