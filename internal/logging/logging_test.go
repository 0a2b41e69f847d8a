package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoGoesToStdoutErrorGoesToStderr(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := New(Options{Stdout: &stdout, Stderr: &stderr})

	logger.Info("all good")
	logger.Error("something broke")

	require.Contains(t, stdout.String(), "all good")
	require.NotContains(t, stdout.String(), "something broke")
	require.Contains(t, stderr.String(), "something broke")
	require.NotContains(t, stderr.String(), "all good")
}

func TestWithAttrsPreservesRouting(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger := New(Options{Stdout: &stdout, Stderr: &stderr}).With("component", "test")

	logger.Warn("a warning")
	logger.Error("an error")

	require.Contains(t, stdout.String(), "a warning")
	require.Contains(t, stdout.String(), `"component":"test"`)
	require.Contains(t, stderr.String(), "an error")
}
