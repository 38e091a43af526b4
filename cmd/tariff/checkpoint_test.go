package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tariff/internal/storage"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		want string
		size int64
	}{
		{size: 0, want: "0 B"},
		{size: 1023, want: "1023 B"},
		{size: 1024, want: "1.0 KB"},
		{size: 1536, want: "1.5 KB"},
		{size: 5 * 1024 * 1024, want: "5.0 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFileSize(tt.size))
	}
}

func TestWriteCheckpoints(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	err := writeCheckpoints(&buf, []storage.CheckpointInfo{
		{ID: "before-import", CreatedAt: now.Add(-3 * time.Hour), FileSize: 2048, Runs: 4, Products: 3, Results: 2, Approvals: 1},
		{ID: "auto-bulk-2026", CreatedAt: now, FileSize: 512, IsAuto: true},
	}, now)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "APPROVALS")
	assert.Contains(t, out, "before-import")
	assert.Contains(t, out, "3 hours ago")
	assert.Contains(t, out, "2.0 KB")
	assert.Contains(t, out, "manual")
	assert.Contains(t, out, "auto-bulk-2026")
	assert.Contains(t, out, "Just now")
	assert.Contains(t, out, "auto\n")
}
