package filestore

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Count int    `json:"count"`
	Name  string `json:"name"`
}

func TestSaveLoad(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	var missing doc
	found, err := s.Load("a/b.json", &missing)
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, s.ModTime("a/b.json").IsZero())

	require.NoError(t, s.Save("a/b.json", doc{Count: 2, Name: "x"}))
	var got doc
	found, err = s.Load("a/b.json", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, doc{Count: 2, Name: "x"}, got)
	assert.False(t, s.ModTime("a/b.json").IsZero())
}

func TestLoadCorruptDocument(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path("bad.json"), []byte("{oops"), 0644))

	var got doc
	found, err := s.Load("bad.json", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpdateIsAtomicPerDocument(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var d doc
			assert.NoError(t, s.Update("counter.json", &d, func() error {
				d.Count++
				return nil
			}))
		}()
	}
	wg.Wait()

	var d doc
	_, err = s.Load("counter.json", &d)
	require.NoError(t, err)
	assert.Equal(t, 50, d.Count)
}

func TestAppendCapped(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		require.NoError(t, AppendCapped(s, "list.json", 5, i))
	}
	list, err := LoadList[int](s, "list.json")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4, 5, 6}, list)
}
