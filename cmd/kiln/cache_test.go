package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/kiln/internal/image"
)

func seedEntries(now time.Time) []image.CacheEntry {
	return []image.CacheEntry{
		{Key: "aaaaaaaaaaaaaaaa", Kind: "deps", Size: 5 << 20, CreatedAt: now.AddDate(0, 0, -10)},
		{Key: "bbbbbbbbbbbbbbbb", Kind: "deps", Size: 200 << 20, CreatedAt: now.Add(-time.Hour)},
		{Key: "cccccccccccccccc", Kind: "source", Size: 4 << 10, CreatedAt: now.AddDate(0, 0, -30)},
	}
}

func keysOf(entries []image.CacheEntry) []string {
	var keys []string
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys
}

func TestSelectEntries(t *testing.T) {
	t.Parallel()

	entries := seedEntries(time.Now().UTC())

	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{
			name:   "empty filter matches everything",
			filter: "",
			want:   []string{"aaaaaaaaaaaaaaaa", "bbbbbbbbbbbbbbbb", "cccccccccccccccc"},
		},
		{
			name:   "stale deps layers only",
			filter: "kind == 'deps' && age_days > 7",
			want:   []string{"aaaaaaaaaaaaaaaa"},
		},
		{
			name:   "large entries regardless of kind",
			filter: "size > 100000000",
			want:   []string{"bbbbbbbbbbbbbbbb"},
		},
		{
			name:   "kind alone",
			filter: "kind == 'source'",
			want:   []string{"cccccccccccccccc"},
		},
		{
			name:   "nothing matches",
			filter: "age_days > 365",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := selectEntries(entries, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, keysOf(got))
		})
	}
}

func TestSelectEntries_InvalidExpression(t *testing.T) {
	t.Parallel()

	entries := seedEntries(time.Now().UTC())

	_, err := selectEntries(entries, "kind ==")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --filter expression")

	// Non-boolean expressions are rejected at compile time.
	_, err = selectEntries(entries, "size + 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --filter expression")
}

func TestEntryEnv(t *testing.T) {
	t.Parallel()

	created := time.Now().UTC().AddDate(0, 0, -3)
	env := entryEnv(image.CacheEntry{
		Key:       "deadbeef",
		Kind:      "deps",
		Size:      1024,
		CreatedAt: created,
	})

	assert.Equal(t, "deadbeef", env.Key)
	assert.Equal(t, "deps", env.Kind)
	assert.Equal(t, int64(1024), env.Size)
	assert.Equal(t, 3, env.AgeDays)
	assert.Equal(t, created.Format("2006-01-02"), env.CreatedAt)
}

func TestFormatSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512 B", formatSize(512))
	assert.Equal(t, "4.0 KiB", formatSize(4<<10))
	assert.Equal(t, "1.5 MiB", formatSize(3<<19))
	assert.Equal(t, "2.0 GiB", formatSize(2<<30))
}
