package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_SkipsBlankAndCommentLines(t *testing.T) {
	m, err := Compile([]string{"", "  ", "# a comment", "*.tmp"})
	require.NoError(t, err)
	assert.False(t, m.Empty())
	assert.True(t, m.Match("foo.tmp"))
}

func TestCompile_InvalidPattern(t *testing.T) {
	_, err := Compile([]string{"["})
	require.Error(t, err)
	var invalidErr *InvalidPatternError
	assert.ErrorAs(t, err, &invalidErr)
}

func TestMatcher_Empty(t *testing.T) {
	m, err := Compile(nil)
	require.NoError(t, err)
	assert.True(t, m.Empty())
	assert.False(t, m.Match("anything"))
}

func TestMatch_GlobAtDepth(t *testing.T) {
	m, err := Compile([]string{"**/*.tmp"})
	require.NoError(t, err)
	assert.True(t, m.Match("a/b/c.tmp"))
	assert.False(t, m.Match("a/b/c.epub"))
}

func TestMatch_BareBasenamePatternMatchesAtAnyDepth(t *testing.T) {
	m, err := Compile([]string{"*.tmp"})
	require.NoError(t, err)
	assert.True(t, m.Match("nested/deep/file.tmp"))
}

func TestLoadDotfile_Missing(t *testing.T) {
	patterns, err := LoadDotfile(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, patterns)
}

func TestLoadDotfile_ParsesPatternsSkippingComments(t *testing.T) {
	dir := t.TempDir()
	content := "# comment\n\n*.tmp\n*.bak\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".stumpignore"), []byte(content), 0o644))

	patterns, err := LoadDotfile(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"*.tmp", "*.bak"}, patterns)
}

func TestMerge_CombinesLibraryAndDirRules(t *testing.T) {
	m, err := Merge([]string{"*.tmp"}, []string{"*.bak"})
	require.NoError(t, err)
	assert.True(t, m.Match("a.tmp"))
	assert.True(t, m.Match("b.bak"))
	assert.False(t, m.Match("c.epub"))
}
