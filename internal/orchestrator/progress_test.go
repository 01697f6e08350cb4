package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medirun/medisuite/internal/claim"
)

func TestProgressReporter_EmitAndSubscribe(t *testing.T) {
	pr := NewProgressReporter()
	defer pr.Close()

	ch := pr.Subscribe()
	want := ProgressEvent{
		RunID:   "run-1",
		Stage:   claim.StageDocumentCode,
		Status:  ProgressWorking,
		Message: "matching codes",
	}

	pr.Emit(want)

	select {
	case got := <-ch:
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for progress event")
	}
}

func TestProgressReporter_EmitWhenFull_DoesNotBlock(t *testing.T) {
	pr := NewProgressReporter()
	defer pr.Close()

	// The internal channel buffer is 64. Emitting 100 events must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			pr.Emit(ProgressEvent{
				RunID:  "run-1",
				Stage:  claim.StagePatientData,
				Status: ProgressWorking,
			})
		}
		close(done)
	}()

	select {
	case <-done:
		// Success: all 100 emits returned without blocking.
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked when the channel was full")
	}
}

func TestProgressReporter_Close_ChannelClosed(t *testing.T) {
	pr := NewProgressReporter()
	ch := pr.Subscribe()

	pr.Emit(ProgressEvent{
		RunID:  "run-1",
		Stage:  claim.StageTriage,
		Status: ProgressComplete,
	})
	pr.Close()

	// Range over the channel; it must terminate because Close was called.
	var received []ProgressEvent
	for ev := range ch {
		received = append(received, ev)
	}
	require.Len(t, received, 1)
	assert.Equal(t, ProgressComplete, received[0].Status)
}

func TestFormatProgress_AllStatuses(t *testing.T) {
	tests := []struct {
		name   string
		event  ProgressEvent
		expect string
	}{
		{
			name:   "working",
			event:  ProgressEvent{Stage: claim.StageCoverageValidation, Status: ProgressWorking},
			expect: "  ● coverage-validation...",
		},
		{
			name:   "complete",
			event:  ProgressEvent{Stage: claim.StageCoverageValidation, Status: ProgressComplete},
			expect: "  ✓ coverage-validation complete",
		},
		{
			name:   "failed",
			event:  ProgressEvent{Stage: claim.StageCoverageValidation, Status: ProgressFailed, Message: "timeout"},
			expect: "  ✗ coverage-validation failed: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatProgress(tt.event)
			assert.Equal(t, tt.expect, got)
		})
	}
}

func TestFormatStageHeader(t *testing.T) {
	got := FormatStageHeader("run-1", claim.StageDocumentCode)
	assert.Equal(t, "[run-1] Stage 1: document-code", got)
}
