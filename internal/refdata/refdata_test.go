package refdata

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EmbeddedDefaults(t *testing.T) {
	tables, err := Load("")
	require.NoError(t, err)

	code, ok := tables.ICD10("J10.1")
	require.True(t, ok)
	assert.Contains(t, code.Description, "Influenza")

	visit, ok := tables.CPT4("99213")
	require.True(t, ok)
	assert.Equal(t, "office visits", visit.Category)
	assert.True(t, visit.BaseRate.Equal(decimal.NewFromFloat(125.00)))

	_, ok = tables.ICD10("Z99.99")
	assert.False(t, ok)

	assert.NotEmpty(t, tables.ICD10Codes())
	assert.NotEmpty(t, tables.CPT4Codes())
}

func TestLoad_MissingDir(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
}

func TestPolicy_Lifecycle(t *testing.T) {
	tables, err := Load("")
	require.NoError(t, err)

	active, ok := tables.Policy("HCI834512")
	require.True(t, ok)
	assert.Equal(t, "HealthCare Inc.", active.Provider)
	assert.True(t, active.ActiveAt(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, active.CoverageValid())
	assert.True(t, active.Covers("laboratory"))
	assert.False(t, active.Covers("surgery"))

	expired, ok := tables.Policy("AET221009")
	require.True(t, ok)
	assert.False(t, expired.ActiveAt(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, expired.ActiveAt(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)))

	suspended, ok := tables.Policy("CIG903317")
	require.True(t, ok)
	assert.False(t, suspended.CoverageValid())

	_, ok = tables.Policy("XXX000000")
	assert.False(t, ok)
}

func TestTables_Lookup(t *testing.T) {
	tables, err := Load("")
	require.NoError(t, err)

	rec, ok := tables.Lookup(KindICD10, "I10")
	require.True(t, ok)
	assert.IsType(t, Code{}, rec)

	rec, ok = tables.Lookup(KindPolicy, "UHC455872")
	require.True(t, ok)
	assert.IsType(t, Policy{}, rec)

	_, ok = tables.Lookup(KindCPT4, "00000")
	assert.False(t, ok)

	_, ok = tables.Lookup(Kind("bogus"), "x")
	assert.False(t, ok)
}
