package audit

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration test; requires a reachable Postgres.
func TestPGSinkRoundTrip(t *testing.T) {
	dsn := os.Getenv("MEDISUITE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MEDISUITE_TEST_POSTGRES_DSN not set")
	}

	ctx := context.Background()
	sink, err := OpenPG(ctx, dsn)
	require.NoError(t, err)
	defer sink.Close()

	runID := uuid.NewString()
	first := NewEntry(runID, "patient-data", "success")
	first.InputSummary = "submission for patient PT-1001"
	second := NewEntry(runID, "document-code", "soft_fail")
	second.Err = "no codes matched"

	require.NoError(t, sink.Append(ctx, first))
	require.NoError(t, sink.Append(ctx, second))

	got, err := sink.ByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, "patient-data", got[0].StageID)
	assert.Equal(t, "no codes matched", got[1].Err)

	// A different run sees nothing.
	other, err := sink.ByRun(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, other)
}
