package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableSnapshotAbsent(t *testing.T) {
	snap := Absent("users")

	assert.False(t, snap.Present())
	assert.Equal(t, "users", snap.Table())
	assert.False(t, snap.HasColumn("id"))
	assert.Empty(t, snap.Columns())
}

func TestTableSnapshotColumnLookupIsCaseInsensitive(t *testing.T) {
	snap := Present("users", []ColumnInfo{
		{Name: "id", DataType: "uuid", PrimaryKey: true},
		{Name: "Company_Name", DataType: "text", Nullable: true},
	})

	col, ok := snap.Column("company_name")
	require.True(t, ok)
	assert.Equal(t, "Company_Name", col.Name)
	assert.Equal(t, []string{"Company_Name", "id"}, snap.ColumnNames())
}

func TestTableSnapshotWithAndWithoutColumn(t *testing.T) {
	snap := Present("users", []ColumnInfo{{Name: "id"}})

	added := snap.WithColumn(ColumnInfo{Name: "organization_id", Nullable: true})
	assert.True(t, added.HasColumn("organization_id"))
	assert.False(t, snap.HasColumn("organization_id"))

	removed := added.WithoutColumn("organization_id")
	assert.False(t, removed.HasColumn("organization_id"))
	assert.True(t, removed.HasColumn("id"))
}

func TestValidateIdentifiers(t *testing.T) {
	require.NoError(t, ValidateIdentifiers("users", "organization_id", "_ledger2"))

	err := ValidateIdentifiers("users", "users; DROP TABLE users")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidIdentifier))

	assert.False(t, ValidIdentifier("1users"))
	assert.False(t, ValidIdentifier(`"quoted"`))
}

func TestDriftErrorUnwraps(t *testing.T) {
	err := &DriftError{Kind: "index", Name: "idx_users_org", Expected: "(organization_id)", Actual: "(email)"}
	assert.True(t, errors.Is(err, ErrDefinitionDrift))
	assert.Contains(t, err.Error(), "idx_users_org")
}

func TestCapabilityUsable(t *testing.T) {
	assert.True(t, CapabilityEnabled.Usable())
	assert.True(t, CapabilityAlreadyEnabled.Usable())
	assert.False(t, CapabilityUnsupported.Usable())
	assert.False(t, CapabilityDeniedByPermissions.Usable())
}
