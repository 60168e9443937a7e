package pkg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLineIndex(t *testing.T) {
	text := []byte("const a = 1;\nif (a) {\n  use(a);\n}\n")
	ix := NewLineIndex(text)

	t.Run("Lines counts the trailing empty line", func(t *testing.T) {
		require.Equal(t, 5, ix.Lines())
	})

	t.Run("Position at line starts", func(t *testing.T) {
		line, col := ix.Position(0)
		require.Equal(t, 0, line)
		require.Equal(t, 0, col)

		line, col = ix.Position(13) // first byte of "if"
		require.Equal(t, 1, line)
		require.Equal(t, 0, col)
	})

	t.Run("Position mid line", func(t *testing.T) {
		line, col := ix.Position(24) // "use" on the third line
		require.Equal(t, 2, line)
		require.Equal(t, 2, col)
	})

	t.Run("Position clamps out-of-range offsets", func(t *testing.T) {
		line, col := ix.Position(-5)
		require.Equal(t, 0, line)
		require.Equal(t, 0, col)

		line, _ = ix.Position(1 << 20)
		require.Equal(t, ix.Lines()-1, line)
	})

	t.Run("Offset round-trips Position", func(t *testing.T) {
		for _, offset := range []int{0, 5, 13, 24, len(text) - 1} {
			line, col := ix.Position(offset)
			require.Equal(t, offset, ix.Offset(line, col), "offset %d", offset)
		}
	})

	t.Run("Offset clamps past line end", func(t *testing.T) {
		// Column 99 on line 0 stays before the newline.
		require.Equal(t, 12, ix.Offset(0, 99))
	})

	t.Run("empty text", func(t *testing.T) {
		empty := NewLineIndex(nil)
		require.Equal(t, 1, empty.Lines())

		line, col := empty.Position(3)
		require.Equal(t, 0, line)
		require.Equal(t, 0, col)
	})
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		name  string
		label string
		want  string
	}{
		{"plain name survives", "renders_the_form", "renders_the_form"},
		{"spaces and slashes collapse", "app.spec.js > renders / updates", "app.spec.js-renders-updates"},
		{"leading and trailing junk trimmed", "  ///weird///  ", "weird"},
		{"empty label falls back", "", "event"},
		{"only junk falls back", "###", "event"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, SanitizeLabel(tt.label))
		})
	}

	t.Run("long labels truncate", func(t *testing.T) {
		require.LessOrEqual(t, len(SanitizeLabel(longLabel(300))), maxSanitizedLen)
	})
}

func longLabel(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}

	return string(b)
}
