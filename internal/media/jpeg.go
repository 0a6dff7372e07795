package media

import (
	"fmt"
	"image/jpeg"
	"io"
)

// EncodeJPEG writes f as a baseline JPEG. 4:2:0 frames are encoded from their
// planes directly; quality ranges from 1 to 100.
func EncodeJPEG(w io.Writer, f *VideoFrame, quality int) error {
	img, err := ToImage(f)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("encoding jpeg: %w", err)
	}
	return nil
}
