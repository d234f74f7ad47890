package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"whatsapp:+14155550100": "14155550100",
		"+1 415-555-0100":       "14155550100",
		"14155550100":           "14155550100",
		"WhatsApp:+44 20 7946":  "44207946",
		"":                      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestE164(t *testing.T) {
	assert.Equal(t, "+14155550100", E164("whatsapp:14155550100"))
	assert.Equal(t, "", E164("abc"))
}
