package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		maxLength int
		want      string
	}{
		{"plain", "Help! I am in danger.", 0, "Help! I am in danger."},
		{"control characters", "Help\x00\x07 me", 0, "Help me"},
		{"collapses whitespace", "  stuck \n\n near   Domlur  ", 0, "stuck near Domlur"},
		{"strips tags", "<b>MG Road</b>, Bengaluru", 0, "MG Road, Bengaluru"},
		{"drops scripts", `call me<script>alert(1)</script>`, 0, "call me"},
		{"truncates on runes", "ನಮಸ್ಕಾರ", 3, "ನಮಸ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeText(tt.input, tt.maxLength))
		})
	}
}

func TestContainsScript(t *testing.T) {
	assert.True(t, ContainsScript(`<img onerror=alert(1)>`))
	assert.True(t, ContainsScript("javascript:void(0)"))
	assert.False(t, ContainsScript("Whitefield, Bengaluru"))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "abc", TruncateString("abcdef", 3))
	assert.Equal(t, "abc", TruncateString("abc", 10))
	assert.Equal(t, "abc", TruncateString("abc", 0))
}

func TestSanitizeLineKeepsPrintableText(t *testing.T) {
	assert.Equal(t, "Plot <12>, Sector V, Salt Lake", SanitizeLine("  Plot <12>,\tSector V,\x00 Salt Lake "))
	assert.Equal(t, "Gate 3 onRamp=2, Hebbal", SanitizeLine("Gate 3 onRamp=2,\n Hebbal"))
}
