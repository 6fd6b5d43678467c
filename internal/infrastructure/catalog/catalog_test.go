package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	assert.Equal(t, 12, c.LessonsInLevel("Qaida", "2"))
	assert.Equal(t, 12, c.LessonsInLevel("qaida", "level_2"))
	assert.Equal(t, 52, c.LessonsInModule("Qaida"))
	assert.Equal(t, 0, c.LessonsInLevel("Qaida", "99"))
	assert.Equal(t, 0, c.LessonsInModule("Hadith"))
}

func TestParse_ModuleOverride(t *testing.T) {
	c, err := Parse([]byte(`
version: 1
modules:
  - name: Dua
    lessons: 40
    levels:
      - id: "1"
        lessons: 5
`))
	require.NoError(t, err)
	assert.Equal(t, 40, c.LessonsInModule("Dua"))
	assert.Equal(t, 5, c.LessonsInLevel("Dua", "1"))
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"version":      "version: 2\nmodules: []\n",
		"no name":      "version: 1\nmodules:\n  - levels: []\n",
		"zero lessons": "version: 1\nmodules:\n  - name: Qaida\n    levels:\n      - id: \"1\"\n        lessons: 0\n",
		"dup module":   "version: 1\nmodules:\n  - name: Qaida\n  - name: qaida\n",
		"dup level":    "version: 1\nmodules:\n  - name: Qaida\n    levels:\n      - id: \"2\"\n        lessons: 1\n      - id: level_2\n        lessons: 1\n",
		"not yaml":     "modules: [",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\nmodules:\n  - name: Quran\n    lessons: 114\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 114, c.LessonsInModule("Quran"))

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
