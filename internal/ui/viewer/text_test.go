package viewer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mrzeku2000XTTT/FluxKmail/internal/mailbox"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"line breaks", "Hello<br>World", "Hello\nWorld"},
		{"paragraphs", "<p>One</p><p>Two</p>", "One\nTwo"},
		{"link keeps target", `<a href="https://fluxk.kas">site</a>`, "site <https://fluxk.kas>"},
		{"bare link", `<a href="https://fluxk.kas">https://fluxk.kas</a>`, "https://fluxk.kas"},
		{"script dropped", "<script>alert(1)</script>Hi", "Hi"},
		{"entities", "&lt;b&gt; &amp; more", "<b> & more"},
		{"list", "<ul><li>a</li><li>b</li></ul>", "- a\n- b"},
		{"plain text passes", "just text", "just text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}

func TestPlainTextUndoesRenderBody(t *testing.T) {
	in := "a & b\nsecond <line>"
	assert.Equal(t, in, PlainText(mailbox.RenderBody(in)))
}
