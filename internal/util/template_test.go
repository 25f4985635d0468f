package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jsonMethod map[string]any

func (jsonMethod) JSON() string { return "custom" }

func TestRenderTemplate_NoMarkers(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)
}

func TestRenderTemplate_JoinAndJSON(t *testing.T) {
	out, err := RenderTemplate(`- {{join "\n- " .Conflicts}}
{{json .Data}}`, map[string]any{
		"Conflicts": []string{"a", "b"},
		"Data":      map[string]any{"totalAmount": 10.5},
	})
	require.NoError(t, err)
	assert.Equal(t, "- a\n- b\n{\n  \"totalAmount\": 10.5\n}", out)
}

func TestRenderTemplate_JSONPrefersOwnMethod(t *testing.T) {
	out, err := RenderTemplate("{{json .Data}}", map[string]any{"Data": jsonMethod{}})
	require.NoError(t, err)
	assert.Equal(t, "custom", out)
}

func TestRenderTemplate_MissingKey(t *testing.T) {
	out, err := RenderTemplate("[{{.Missing}}]", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "[<no value>]", out)
}

func TestRenderTemplate_ParseError(t *testing.T) {
	_, err := RenderTemplate("{{upper .Text}}", map[string]any{"Text": "x"})
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate(0, "abc"))
	assert.Equal(t, "ab", Truncate(2, "abc"))
	assert.Equal(t, "añ", Truncate(2, "añb"))
	assert.Equal(t, "abc", Truncate(5, "abc"))
}
