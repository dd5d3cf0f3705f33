package match

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m, err := New(Config{})
	require.NoError(t, err)
	assert.True(t, m.Match("anything/at/all"))

	_, err = New(Config{Includes: []string{"[invalid"}})
	var patErr *PatternError
	require.True(t, errors.As(err, &patErr))
	assert.Equal(t, "[invalid", patErr.Pattern)
	assert.True(t, errors.Is(err, ErrInvalidPattern))

	_, err = New(Config{Excludes: []string{"{a,b"}})
	assert.True(t, errors.Is(err, ErrInvalidPattern))
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		key  string
		want bool
	}{
		{"double star", Config{Includes: []string{"data/**/*.csv"}}, "data/2024/01/x.csv", true},
		{"double star zero dirs", Config{Includes: []string{"data/**/*.csv"}}, "data/x.csv", true},
		{"star stops at slash", Config{Includes: []string{"data/*.csv"}}, "data/2024/x.csv", false},
		{"no include match", Config{Includes: []string{"logs/**"}}, "data/x.csv", false},
		{"any include", Config{Includes: []string{"logs/**", "data/**"}}, "data/x.csv", true},
		{"excluded", Config{Includes: []string{"**"}, Excludes: []string{"**/_tmp/**"}}, "a/_tmp/b", false},
		{"exclude only", Config{Excludes: []string{"*.log"}}, "app.log", false},
		{"exclude only passes", Config{Excludes: []string{"*.log"}}, "app.txt", true},
		{"braces", Config{Includes: []string{"app-{a,b}/*"}}, "app-b/x", true},
		{"hidden kept by default", Config{Includes: []string{"**"}}, "dir/.env", true},
		{"hidden excluded", Config{Includes: []string{"**"}, ExcludeHidden: true}, "dir/.env", false},
		{"hidden dir excluded", Config{ExcludeHidden: true}, ".git/config", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.key))
		})
	}
}

func TestListPrefix(t *testing.T) {
	tests := []struct {
		name     string
		includes []string
		base     string
		want     string
	}{
		{"narrows", []string{"data/2024/**"}, "data/", "data/2024/"},
		{"narrows from root", []string{"data/2024/**", "data/2025/*.csv"}, "", "data/202"},
		{"no includes", nil, "data/", "data/"},
		{"pattern broader than base", []string{"**/*.csv"}, "data/", "data/"},
		{"disjoint keeps base", []string{"logs/**"}, "data/", "data/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(Config{Includes: tt.includes})
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.ListPrefix(tt.base))
		})
	}
}

func TestPatternsAccessors(t *testing.T) {
	m, err := New(Config{Includes: []string{"a/**"}, Excludes: []string{"a/b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a/**"}, m.IncludePatterns())
	assert.Equal(t, []string{"a/b"}, m.ExcludePatterns())
}

func TestIsHidden(t *testing.T) {
	assert.False(t, IsHidden("path/to/file.txt"))
	assert.True(t, IsHidden(".hidden/file.txt"))
	assert.True(t, IsHidden("path/to/.gitignore"))
	assert.False(t, IsHidden("path/to/file.txt."))
	assert.False(t, IsHidden(""))
}
