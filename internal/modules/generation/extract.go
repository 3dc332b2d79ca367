package generation

import (
	"encoding/xml"
	"io"
	"regexp"
	"strings"
)

var (
	svgOpenRe  = regexp.MustCompile(`(?i)<svg[\s>/]`)
	svgLooseRe = regexp.MustCompile(`(?i)<svg[\s\S]*?</svg>`)
)

// ExtractSVG returns the first well-formed <svg>...</svg> element in reply.
// When none parses it falls back to the first lexical <svg ...</svg> span,
// and when there is no span at all it returns reply unchanged.
func ExtractSVG(reply string) string {
	for _, loc := range svgOpenRe.FindAllStringIndex(reply, -1) {
		if span, ok := wellFormedSVGAt(reply, loc[0]); ok {
			return span
		}
	}
	if m := svgLooseRe.FindString(reply); m != "" {
		return m
	}
	return reply
}

// HasSVG reports whether reply contains an extractable svg element.
func HasSVG(reply string) bool {
	return svgLooseRe.MatchString(reply)
}

func wellFormedSVGAt(s string, start int) (string, bool) {
	dec := xml.NewDecoder(strings.NewReader(s[start:]))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity

	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", false
		}
		if err != nil {
			return "", false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 && !strings.EqualFold(t.Name.Local, "svg") {
				return "", false
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				end := start + int(dec.InputOffset())
				return s[start:end], true
			}
		}
	}
}
