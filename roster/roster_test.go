package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-rocrail/rcp"
)

func TestAddAndSelection(t *testing.T) {
	require := require.New(t)

	l := NewList(nil, nil)
	require.Equal(0, l.Count())
	require.Equal("", l.SelectedID())

	_, ok := l.Selected()
	require.False(ok)

	require.True(l.Add("BR103", ""))
	require.False(l.Add("BR103", "dup"))
	require.True(l.Add("BR01", "BR01 (Express)"))

	// sorted alphabetically, selection reset to first
	require.Equal(2, l.Count())
	require.Equal("BR01", l.SelectedID())
	require.Equal(0, l.SelectedIndex())

	require.True(l.SelectNext())
	require.Equal("BR103", l.SelectedID())
	require.True(l.SelectNext()) // wraps
	require.Equal("BR01", l.SelectedID())

	require.True(l.SelectPrevious()) // wraps backwards
	require.Equal("BR103", l.SelectedID())

	require.True(l.SelectIndex(0))
	require.False(l.SelectIndex(0)) // no change
	require.False(l.SelectIndex(5)) // out of range
}

func TestSelectionSingleEntry(t *testing.T) {
	require := require.New(t)

	l := NewList(nil, nil)
	l.Add("BR103", "")
	require.False(l.SelectNext())
	require.False(l.SelectPrevious())
	require.Equal("BR103", l.SelectedID())
}

func TestCapacity(t *testing.T) {
	require := require.New(t)

	l := NewList(nil, nil)
	for i := 0; i < MaxLocomotives; i++ {
		require.True(l.Add(string(rune('A'+i)), ""))
	}
	require.False(l.Add("overflow", ""))
	require.Equal(MaxLocomotives, l.Count())
}

func TestCommit(t *testing.T) {
	require := require.New(t)

	l := NewList(nil, nil)
	l.Add("stale", "stale")

	locos := []rcp.LocoEntry{
		{ID: "Zulu", Name: "Zulu"},
		{ID: "Alpha", Name: "Alpha (Express)"},
		{ID: "Zulu", Name: "Zulu"}, // duplicate
		{ID: "", Name: "anonymous"},
	}

	added := l.Commit(locos)
	require.Equal(2, added)
	require.Equal(2, l.Count())

	// alphabetical order, stale entry gone
	entries := l.Entries()
	require.Equal("Alpha", entries[0].ID)
	require.Equal("Zulu", entries[1].ID)
	require.Equal(0, l.SelectedIndex())
}

// Committing the same extraction twice yields the same roster both times.
func TestCommitIdempotent(t *testing.T) {
	require := require.New(t)

	locos := []rcp.LocoEntry{
		{ID: "BR01", Name: "BR01 (Express)"},
		{ID: "BR02", Name: "BR02 #2"},
	}

	l := NewList(nil, nil)
	require.Equal(2, l.Commit(locos))
	first := l.Entries()

	require.Equal(2, l.Commit(locos))
	require.Equal(first, l.Entries())
	require.Equal(0, l.SelectedIndex())
}

func TestCommitCap(t *testing.T) {
	require := require.New(t)

	locos := make([]rcp.LocoEntry, 0, MaxLocomotives+3)
	for i := 0; i < MaxLocomotives+3; i++ {
		id := string(rune('A' + i))
		locos = append(locos, rcp.LocoEntry{ID: id, Name: id})
	}

	l := NewList(nil, nil)
	require.Equal(MaxLocomotives, l.Commit(locos))
	require.Equal(MaxLocomotives, l.Count())
}

func TestFileStoreRoundTrip(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "loco_list.json")
	store := NewFileStore(path)

	l := NewList(store, nil)
	l.Add("BR103", "")
	l.Add("BR01", "BR01 (Express)")
	require.NoError(l.Save())

	reloaded := NewList(store, nil)
	require.Equal(2, reloaded.Count())
	require.Equal(l.Entries(), reloaded.Entries())
	require.Equal(0, reloaded.SelectedIndex())
}

func TestLoadFailureYieldsEmptyRoster(t *testing.T) {
	require := require.New(t)

	// missing file
	l := NewList(NewFileStore(filepath.Join(t.TempDir(), "missing.json")), nil)
	require.Equal(0, l.Count())

	// corrupt file
	path := filepath.Join(t.TempDir(), "corrupt.json")
	require.NoError(os.WriteFile(path, []byte("{not json"), 0o644))
	l = NewList(NewFileStore(path), nil)
	require.Equal(0, l.Count())
}

func TestLoadClampsSelection(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "loco_list.json")
	data := `{"locomotives":[{"id":"BR01","name":"BR01"}],"selected_index":7}`
	require.NoError(os.WriteFile(path, []byte(data), 0o644))

	l := NewList(NewFileStore(path), nil)
	require.Equal(1, l.Count())
	require.Equal(0, l.SelectedIndex())
}
