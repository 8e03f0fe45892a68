package tools

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellarlinkco/mindloop/internal/filestore"
	"github.com/stellarlinkco/mindloop/internal/guardian"
)

func newSystemDispatcher(t *testing.T) (*Dispatcher, string, *filestore.Store) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src", "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "pkg", "util.go"), []byte("package pkg"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "README.md"), []byte("readme"), 0644))

	g, err := guardian.New(root, "n")
	require.NoError(t, err)
	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	d := NewDispatcher(builtinRegistry(t), nil)
	d.Register(SystemTools(SystemDeps{Project: g, Files: store, Now: func() time.Time { return fixedNow }})...)
	return d, root, store
}

func TestSystemFileTools(t *testing.T) {
	d, root, _ := newSystemDispatcher(t)

	res := dispatchOne(t, d, "developer", "system.read_file", map[string]any{"path": "src/main.go"})
	assert.Equal(t, "package main", res.Output)

	res = dispatchOne(t, d, "developer", "system.list_dir", map[string]any{"path": "src"})
	assert.Equal(t, "<DIR> src/pkg\n<FILE> src/README.md\n<FILE> src/main.go", res.Output)

	res = dispatchOne(t, d, "developer", "system.write_file", map[string]any{"path": "plan.md", "content": "step 1"})
	assert.Equal(t, "Write successful: n/plan.md", res.Output)
	res = dispatchOne(t, d, "developer", "system.write_file", map[string]any{"path": "plan.md", "content": "\nstep 2", "mode": "append"})
	assert.False(t, res.Silent)
	data, _ := os.ReadFile(filepath.Join(root, "n", "plan.md"))
	assert.Equal(t, "step 1\nstep 2", string(data))

	res = dispatchOne(t, d, "developer", "system.copy_file", map[string]any{"source": "src/main.go", "dest": "main.go"})
	assert.Contains(t, res.Output, "Copy successful")

	res = dispatchOne(t, d, "developer", "system.replace_in_file", map[string]any{"path": "main.go", "find": "main", "replace": "draft"})
	assert.Contains(t, res.Output, "Replacement successful")

	res = dispatchOne(t, d, "developer", "system.write_file", map[string]any{"path": "../src/main.go", "content": "x"})
	assert.Contains(t, res.Output, "write permission denied")
	assert.False(t, res.Silent)

	res = dispatchOne(t, d, "developer", "system.read_file", map[string]any{"path": "../../etc/passwd"})
	assert.Contains(t, res.Output, "outside the project root")
}

func TestSystemDump(t *testing.T) {
	d, root, _ := newSystemDispatcher(t)

	res := dispatchOne(t, d, "developer", "system.dump", map[string]any{"path": "src", "output": "dump.txt"})
	assert.Equal(t, "system.dump: 2 files saved to n/dump.txt", res.Output)

	data, err := os.ReadFile(filepath.Join(root, "n", "dump.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "FILE: src/main.go")
	assert.Contains(t, string(data), "FILE: src/pkg/util.go")
	assert.NotContains(t, string(data), "readme")
}

func TestLogEvent(t *testing.T) {
	d, _, store := newSystemDispatcher(t)

	res := dispatchOne(t, d, "general", "system.log_event", map[string]any{"level": "WARN", "message": "disk almost full"})
	assert.True(t, res.Silent)
	events, err := filestore.LoadList[Event](store, EventLogDoc)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, Event{Timestamp: fixedNow, Mode: "general", Level: "warn", Message: "disk almost full"}, events[0])

	res = dispatchOne(t, d, "general", "system.read_file", map[string]any{"path": "src/main.go"})
	assert.Contains(t, res.Output, "UNAUTHORIZED")
}
