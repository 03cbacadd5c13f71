package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVocabulary(t *testing.T) {
	t.Parallel()

	t.Run("aliases share an index", func(t *testing.T) {
		v, err := NewVocabulary([]string{"0_Idle", "Hksl_hat-Jsl_cap", "Jsl_yellow"})
		require.NoError(t, err)

		assert.Equal(t, 3, v.Len())
		for _, name := range []string{"Hksl_hat-Jsl_cap", "Hksl_hat", "Jsl_cap"} {
			i, err := v.Index(name)
			require.NoError(t, err)
			assert.Equal(t, 1, i, name)
		}
		assert.Equal(t, []string{"Hksl_hat", "Jsl_cap"}, v.Aliases(1))
		assert.Nil(t, v.Aliases(0))
	})

	t.Run("unknown label", func(t *testing.T) {
		v, err := NewVocabulary([]string{"a"})
		require.NoError(t, err)
		_, err = v.Index("b")
		assert.ErrorIs(t, err, ErrUnknownLabel)
	})

	t.Run("rejects conflicting aliases", func(t *testing.T) {
		_, err := NewVocabulary([]string{"Hksl_bicycle-Jsl_bicycle", "Jsl_bicycle"})
		assert.Error(t, err)
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := NewVocabulary(nil)
		assert.Error(t, err)
		_, err = NewVocabulary([]string{"a", "  "})
		assert.Error(t, err)
	})

	t.Run("labels are copied", func(t *testing.T) {
		v, err := NewVocabulary([]string{"a", "b"})
		require.NoError(t, err)
		labels := v.Labels()
		labels[0] = "z"
		assert.Equal(t, "a", v.Label(0))
	})
}

func TestLoadVocabulary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	t.Run("text", func(t *testing.T) {
		path := filepath.Join(dir, "labels.txt")
		require.NoError(t, os.WriteFile(path, []byte("# signs\n0_Idle\n\nHksl_busy\n  Jsl_wine  \n"), 0o644))

		v, err := LoadVocabulary(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"0_Idle", "Hksl_busy", "Jsl_wine"}, v.Labels())
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "labels.json")
		require.NoError(t, os.WriteFile(path, []byte(`["0_Idle","Hksl_winter-Jsl_winter"]`), 0o644))

		v, err := LoadVocabulary(path)
		require.NoError(t, err)
		i, err := v.Index("Jsl_winter")
		require.NoError(t, err)
		assert.Equal(t, 1, i)
	})

	t.Run("bad json", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"labels":1}`), 0o644))

		_, err := LoadVocabulary(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadVocabulary(filepath.Join(dir, "nope.txt"))
		assert.Error(t, err)
	})

	t.Run("shipped vocabulary", func(t *testing.T) {
		v, err := LoadVocabulary(filepath.Join("..", "..", "configs", "labels.txt"))
		require.NoError(t, err)
		assert.Equal(t, 100, v.Len())
		assert.Equal(t, "0_Idle", v.Label(0))

		i, err := v.Index("Jsl_bicycle")
		require.NoError(t, err)
		assert.Equal(t, 3, i)
	})
}
