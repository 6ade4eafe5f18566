// Package preview writes small QOI thumbnails next to blurred outputs.
package preview

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
	"github.com/xfmoulet/qoi"

	"go-blur/pkg/bitmap"
)

// Path derives the preview filename from an output bitmap path.
func Path(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".qoi"
}

// Write downscales img to fit within maxDim x maxDim and saves it as QOI.
// Images already smaller than maxDim keep their size.
func Write(img *bitmap.Image, path string, maxDim uint) error {
	thumb := resize.Thumbnail(maxDim, maxDim, img.ToRGBA(), resize.Lanczos3)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create preview: %w", err)
	}
	if err := qoi.Encode(f, thumb); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode preview: %w", err)
	}
	return f.Close()
}
