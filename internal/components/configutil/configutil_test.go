package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	BaseUrl    string   `json:"base_url"`
	MaxRetries int      `json:"max_retries"`
	Words      []string `json:"words"`
}

func writeFile(t *testing.T, path, contents string) {
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{
		// comments are allowed
		base_url: "https://example.com",
		max_retries: 3,
		words: ["a"],
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{ max_retries: 5 }`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://example.com", cfg.BaseUrl)
	require.Equal(t, 5, cfg.MaxRetries)
	require.Equal(t, []string{"a"}, cfg.Words)
}

func TestReadConfigOnlyLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{ base_url: "https://local" }`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "https://local", cfg.BaseUrl)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.True(t, os.IsNotExist(err))
}

func TestReadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{ base_url: `)

	_, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.Error(t, err)
	require.False(t, os.IsNotExist(err))
}

func TestLocalName(t *testing.T) {
	table := []struct {
		input    string
		expected string
	}{
		{input: "config.json5", expected: "config.local.json5"},
		{input: "a/b/telemetry.json5", expected: "a/b/telemetry.local.json5"},
		{input: "noext", expected: "noext.local"},
	}
	for _, row := range table {
		require.Equal(t, row.expected, localName(row.input))
	}
}
