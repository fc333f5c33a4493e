package richtext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderEscapesRawHTML(t *testing.T) {
	out, err := NewRenderer().Render("# Hi\n\n<script>alert(1)</script>")
	require.NoError(t, err)
	require.Contains(t, out, "<h1>Hi</h1>")
	require.NotContains(t, out, "<script>")
}

func TestTruncateBytes(t *testing.T) {
	s, cut := TruncateBytes("hello", 10)
	require.False(t, cut)
	require.Equal(t, "hello", s)

	s, cut = TruncateBytes("héllo", 2)
	require.True(t, cut)
	require.Equal(t, "h", s)

	s, cut = TruncateBytes("hello", 3)
	require.True(t, cut)
	require.Equal(t, "hel", s)
}
