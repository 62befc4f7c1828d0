package canvas

import (
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

// ParseColor resolves a CSS color name or #rgb / #rrggbb hex string. Anything
// else resolves to black.
func ParseColor(s string) color.RGBA {
	s = strings.ToLower(strings.TrimSpace(s))

	if strings.HasPrefix(s, "#") {
		if c, ok := parseHex(s[1:]); ok {
			return c
		}
		return colornames.Black
	}
	if c, ok := colornames.Map[s]; ok {
		return c
	}
	return colornames.Black
}

func parseHex(h string) (color.RGBA, bool) {
	switch len(h) {
	case 3:
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	case 6:
	default:
		return color.RGBA{}, false
	}

	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, true
}
