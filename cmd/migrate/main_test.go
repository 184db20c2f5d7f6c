package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunValidateNeedsNoConfig(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-cmd", "validate"}, &out))
	assert.Contains(t, out.String(), "passed")
}

func TestRunCreateWritesIntoDir(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-cmd", "create", "-dir", dir, "-name", "add payment reference"}, &out))

	matches, err := filepath.Glob(filepath.Join(dir, "*_add_payment_reference.sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	_, err = os.Stat(matches[0])
	require.NoError(t, err)
}

func TestRunRejectsBadInvocations(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, run(context.Background(), []string{"-cmd", "create"}, &out))
	require.Error(t, run(context.Background(), []string{"-cmd", "version"}, &out))
	require.Error(t, run(context.Background(), []string{"-cmd", "explode"}, &out))
}
