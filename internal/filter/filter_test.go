package filter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_IgnoresBlankLinesAndCase(t *testing.T) {
	f, err := Parse(strings.NewReader("Spam-Word\n\n   \n  badword  \r\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
}

func TestIsBlocked(t *testing.T) {
	f := New([]string{"spam-word", "darn"})

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"clean", "What is recursion?", false},
		{"exact", "spam-word", true},
		{"embedded", "this is spam-word", true},
		{"upper case text", "THIS IS SPAM-WORD", true},
		{"substring inside larger word", "darnedest question", true},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.IsBlocked(tt.text))
		})
	}
}

func TestIsBlocked_EmptyList(t *testing.T) {
	f := New(nil)
	assert.False(t, f.IsBlocked("anything at all"))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blacklist.txt")
	require.NoError(t, os.WriteFile(path, []byte("foo\nBAR\n"), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
	assert.True(t, f.IsBlocked("a bar question"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
