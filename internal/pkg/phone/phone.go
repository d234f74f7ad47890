package phone

import "strings"

// Normalize reduces a provider address ("whatsapp:+1 555-0100") to its digits.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(strings.ToLower(raw), "whatsapp:")
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// E164 renders digits with a leading plus sign.
func E164(digits string) string {
	d := Normalize(digits)
	if d == "" {
		return ""
	}
	return "+" + d
}
