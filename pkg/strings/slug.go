package strings

// Slugify maps every rune outside [1-9A-Za-z] to '-' after folding it into
// the ASCII range, producing file-system safe names for screenshots and
// report directories. The mapping keeps one output byte per input rune.
func Slugify(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		code := int(r) % 128
		switch {
		case code > 48 && code < 58, code > 64 && code < 91, code > 96 && code < 123:
			out = append(out, byte(code))
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}
