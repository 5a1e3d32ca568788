package docs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopics(t *testing.T) {
	topics := Topics()
	require.NotEmpty(t, topics)
	assert.Contains(t, topics, "overview")
	for _, topic := range topics {
		body, ok := Get(topic)
		assert.True(t, ok, topic)
		assert.NotEmpty(t, body, topic)
		assert.NotEqual(t, topic, Title(topic), "topic %s has no heading", topic)
	}
}

func TestGet_Rejects(t *testing.T) {
	for _, topic := range []string{"", "  ", "../docs", "nope"} {
		_, ok := Get(topic)
		assert.False(t, ok, topic)
	}
	body, ok := Get(" Overview ")
	assert.True(t, ok)
	assert.NotEmpty(t, body)
}

func TestRender_Plain(t *testing.T) {
	body, ok := Get("overview")
	require.True(t, ok)
	out := Render(body, 60, StylePlain)
	assert.Contains(t, out, Title("overview"))
	assert.Equal(t, "", Render("  \n", 60, StylePlain))
}

func TestStyleFromEnv(t *testing.T) {
	t.Setenv("STAGING_MD_STYLE", "")
	assert.Equal(t, StyleDark, StyleFromEnv(StyleDark))
	t.Setenv("STAGING_MD_STYLE", "Light")
	assert.Equal(t, StyleLight, StyleFromEnv(StyleDark))
	t.Setenv("STAGING_MD_STYLE", "ascii")
	assert.Equal(t, StylePlain, StyleFromEnv(StyleDark))
}
