//go:build linux

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// running reports whether pid exists and is not a zombie.
func running(pid int) bool {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// The state follows the parenthesised command name.
	rest := string(b[strings.LastIndexByte(string(b), ')')+1:])
	fields := strings.Fields(rest)
	return len(fields) > 0 && fields[0] != "Z"
}

func TestExecuteTimeoutKillsKernelChildren(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "kernel.pid")
	script := writeScript(t, fmt.Sprintf("sleep 60 &\necho $! > %q\nwait\n", pidFile))
	m := NewManager("local", WithKernel(&LocalKernel{Jupyter: script}))

	_, err := m.Execute(context.Background(), ExecSpec{Notebook: loadTestNotebook(t), Timeout: 300 * time.Millisecond})
	var ee *ExecError
	require.True(t, errors.As(err, &ee), "got %v", err)
	require.True(t, ee.Timeout)

	raw, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return !running(pid) }, 5*time.Second, 50*time.Millisecond,
		"kernel child %d still running after timeout", pid)
}
