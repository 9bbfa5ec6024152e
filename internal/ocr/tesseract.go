//go:build tesseract

package ocr

import "github.com/otiai10/gosseract/v2"

// Available reports whether tesseract support is compiled in.
func Available() bool { return true }

func readLines(path string, languages []string) ([]line, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(languages...); err != nil {
		return nil, err
	}
	if err := client.SetImage(path); err != nil {
		return nil, err
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, err
	}
	lines := make([]line, 0, len(boxes))
	for _, b := range boxes {
		lines = append(lines, line{Rect: b.Box, Text: b.Word, Confidence: b.Confidence})
	}
	return lines, nil
}
