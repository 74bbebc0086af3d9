package config_test

import (
	"errors"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/x-research-team/dtx-sync/internal/config"
)

// os.Exit нельзя перехватить в процессе теста, поэтому Exitf проверяется
// в дочернем процессе.
func TestExitf(t *testing.T) {
	if os.Getenv("SIDECAR_EXITF_SUBPROCESS") == "1" {
		config.Exitf("ошибка: %s", "сломалось")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestExitf$")
	cmd.Env = append(os.Environ(), "SIDECAR_EXITF_SUBPROCESS=1")
	out, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, string(out), "ошибка: сломалось")
}
