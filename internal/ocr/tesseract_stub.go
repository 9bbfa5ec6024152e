//go:build !tesseract

package ocr

// Available reports whether tesseract support is compiled in.
func Available() bool { return false }

func readLines(string, []string) ([]line, error) {
	return nil, ErrUnavailable
}
