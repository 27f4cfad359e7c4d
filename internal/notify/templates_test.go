package notify

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRendererRender(t *testing.T) {
	r := NewRenderer(zerolog.Nop())

	t.Run("fills placeholders", func(t *testing.T) {
		title, message := r.Render("like", map[string]string{
			"sender":       "alice",
			"content_type": "post",
		})
		assert.Equal(t, "New like", title)
		assert.Equal(t, "alice liked your post", message)
	})

	t.Run("unresolved placeholder stays literal", func(t *testing.T) {
		_, message := r.Render("comment", map[string]string{"sender": "bob"})
		assert.Contains(t, message, "{content_type}")
		assert.Contains(t, message, "bob")
	})

	t.Run("unknown kind falls back to system template", func(t *testing.T) {
		title, message := r.Render("poke", map[string]string{"message": "hi"})
		assert.Equal(t, "System notice", title)
		assert.Equal(t, "hi", message)
	})

	t.Run("system helpers render", func(t *testing.T) {
		title, message := r.Render(TemplateSecurity, map[string]string{"event": "was signed in from a new device"})
		assert.Equal(t, "Security alert", title)
		assert.Contains(t, message, "was signed in from a new device")
	})
}
