package captcha

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Rendered image dimensions, matching the widget box the frontend expects.
const (
	svgWidth   = 160
	svgHeight  = 50
	noiseLines = 2
)

// renderSVG draws the challenge text as inline SVG: one <text> element per
// glyph with random rotation and vertical jitter, plus a few noise strokes.
// The jitter only has to defeat naive OCR, so math/rand is enough here; the
// challenge text itself comes from crypto/rand.
func renderSVG(text string) string {
	var b strings.Builder

	fmt.Fprintf(&b,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		svgWidth, svgHeight, svgWidth, svgHeight)
	b.WriteString(`<rect width="100%" height="100%" fill="#f4f4f4"/>`)

	for i := 0; i < noiseLines; i++ {
		fmt.Fprintf(&b,
			`<path d="M%d %d Q %d %d %d %d" stroke="%s" stroke-width="1.5" fill="none"/>`,
			rand.IntN(20), rand.IntN(svgHeight),
			svgWidth/2, rand.IntN(svgHeight),
			svgWidth-rand.IntN(20), rand.IntN(svgHeight),
			noiseColor())
	}

	step := svgWidth / (len(text) + 1)
	for i, r := range text {
		x := step * (i + 1)
		y := svgHeight/2 + 8 + rand.IntN(9) - 4
		rot := rand.IntN(41) - 20
		fmt.Fprintf(&b,
			`<text x="%d" y="%d" font-family="monospace" font-size="28" fill="%s" transform="rotate(%d %d %d)">%s</text>`,
			x, y, glyphColor(), rot, x, y, string(r))
	}

	b.WriteString(`</svg>`)
	return b.String()
}

func glyphColor() string {
	colors := []string{"#2b2b2b", "#44427a", "#5a2b2b", "#2b4a2b"}
	return colors[rand.IntN(len(colors))]
}

func noiseColor() string {
	colors := []string{"#b0b0b0", "#9aa7b8", "#c2a9a9"}
	return colors[rand.IntN(len(colors))]
}
