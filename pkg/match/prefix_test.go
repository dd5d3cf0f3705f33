package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerivePrefix(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"data/2024/**/*.parquet", "data/2024/"},
		{"*.json", ""},
		{"**", ""},
		{"logs/app-{a,b}/*.log", "logs/"},
		{"exact/path/file.txt", "exact/path/file.txt"},
		{"data/[0-9]*/*.csv", "data/"},
		{"data/2024-*", "data/"},
		{"prefix/", "prefix/"},
		{`data/file\*.txt`, "data/file*.txt"},
		{`data/\[backup\]/*.log`, "data/[backup]/"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, DerivePrefix(tt.pattern))
		})
	}
}

func TestDerivePrefixes(t *testing.T) {
	assert.Equal(t, []string{"data/2024/", "data/2025/"}, DerivePrefixes([]string{"data/2025/**", "data/2024/**"}))
	assert.Equal(t, []string{"data/"}, DerivePrefixes([]string{"data/2024/**", "data/**"}))
	assert.Equal(t, []string{""}, DerivePrefixes([]string{"data/**", "**/*.json"}))
	assert.Nil(t, DerivePrefixes(nil))
}

func TestCommonPrefix(t *testing.T) {
	assert.Equal(t, "", CommonPrefix(nil))
	assert.Equal(t, "data/", CommonPrefix([]string{"data/"}))
	assert.Equal(t, "data/202", CommonPrefix([]string{"data/2024/", "data/2025/"}))
	assert.Equal(t, "", CommonPrefix([]string{"a/", "b/"}))
}

func TestIsGlobPattern(t *testing.T) {
	assert.True(t, IsGlobPattern("data/**/*.parquet"))
	assert.False(t, IsGlobPattern(`data/file\*.txt`))
	assert.True(t, IsGlobPattern("data/file?.csv"))
	assert.False(t, IsGlobPattern("path/to/file.txt"))
}
