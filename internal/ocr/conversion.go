package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"
)

// imageToPNG converts any decodable image to PNG
func imageToPNG(imageData []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") {
			return nil, fmt.Errorf("unsupported screenshot format. Supported formats: PNG, JPEG, GIF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// prepareImageData normalizes a screenshot to PNG.
// Returns the PNG data and whether conversion occurred.
func prepareImageData(imageData []byte, contentType string) ([]byte, bool, error) {
	if len(imageData) == 0 {
		return nil, false, fmt.Errorf("empty screenshot")
	}

	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "image/png" {
		return imageData, false, nil
	}

	pngData, err := imageToPNG(imageData)
	if err != nil {
		return nil, false, fmt.Errorf("converting screenshot to PNG: %w", err)
	}
	return pngData, true, nil
}
