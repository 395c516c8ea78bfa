package xjournal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginEndLeavesNoRecord(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("0000"), 0o644))

	h, err := Begin([]byte("AAAA"), 0, target, filepath.Join(dir, "jrnl"))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(target, []byte("AAAA"), 0o644))
	require.NoError(t, End(h))

	entries, err := os.ReadDir(filepath.Join(dir, "jrnl"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecoverReplaysSurvivingRecord(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("0000"), 0o644))
	jrnlDir := filepath.Join(dir, "jrnl")

	_, err := Begin([]byte("BBBB"), 0, target, jrnlDir)
	require.NoError(t, err)
	// simulate a crash: the mutation to `target` never happened and End was
	// never called, so the record survives for Recover to replay.

	n, err := Recover(jrnlDir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "BBBB", string(data))

	// Recover's lock file stays in the directory; no journal record may.
	entries, err := os.ReadDir(jrnlDir)
	require.NoError(t, err)
	var records []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), recordExt) {
			records = append(records, e.Name())
		}
	}
	assert.Empty(t, records)
}

func TestRecoverNoOpOnMissingDir(t *testing.T) {
	n, err := Recover(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
