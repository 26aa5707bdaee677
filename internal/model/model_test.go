package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusAdvanceNeverRegresses(t *testing.T) {
	tests := []struct {
		from, next, want CaseStatus
	}{
		{StatusPending, StatusInProgress, StatusInProgress},
		{StatusInProgress, StatusCompleted, StatusCompleted},
		{StatusPending, StatusCompleted, StatusCompleted},
		{StatusCompleted, StatusInProgress, StatusCompleted},
		{StatusCompleted, StatusCompleted, StatusCompleted},
		{"", StatusCompleted, StatusCompleted},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.Advance(tt.next), "%s -> %s", tt.from, tt.next)
	}
}

func TestSlotValid(t *testing.T) {
	for _, s := range AllSlots {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Slot("id_proprietario").Valid())
	assert.False(t, Slot("").Valid())
}

func TestDocumentsGetIgnoresEmpty(t *testing.T) {
	d := Documents{SlotRevenue: "http://x/r.pdf", SlotLabor: ""}

	v, ok := d.Get(SlotRevenue)
	assert.True(t, ok)
	assert.Equal(t, "http://x/r.pdf", v)

	_, ok = d.Get(SlotLabor)
	assert.False(t, ok)
	_, ok = Documents(nil).Get(SlotAD)
	assert.False(t, ok)
}

func TestRunStateTerminal(t *testing.T) {
	assert.True(t, RunCompleted.Terminal())
	assert.True(t, RunSkipped.Terminal())
	assert.True(t, RunAborted.Terminal())
	assert.False(t, RunScheduled.Terminal())
	assert.False(t, RunMerged.Terminal())
}
