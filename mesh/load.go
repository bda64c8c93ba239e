package mesh

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Load decodes the image at path. Besides the formats registered by the
// standard library it understands BMP, TIFF and WebP. The EXIF orientation of
// JPEGs is applied.
func Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("mesh: loading %s: %w", path, err)
	}
	return img, nil
}
