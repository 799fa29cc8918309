package location

import "strings"

// Static is a fixed location fragment read at dispatch time.
type Static string

func (s Static) Fragment() string {
	return string(s)
}

// Parse returns the raw text after the first '#', matching what a browser
// reports for location.hash without its marker. No decoding is applied.
func Parse(rawURL string) Static {
	_, fragment, found := strings.Cut(rawURL, "#")
	if !found {
		return Static("")
	}
	return Static(fragment)
}
