package media

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// WritePGM writes a binary (P5) greyscale image from a strided 8-bit plane.
func WritePGM(w io.Writer, plane []byte, stride, width, height int) error {
	return writePNM(w, "P5", plane, stride, width, height, width)
}

// WritePPM writes a binary (P6) colour image from a strided packed RGB24 plane.
func WritePPM(w io.Writer, plane []byte, stride, width, height int) error {
	return writePNM(w, "P6", plane, stride, width, height, width*3)
}

func writePNM(w io.Writer, magic string, plane []byte, stride, width, height, rowBytes int) error {
	if stride < rowBytes || len(plane) < stride*(height-1)+rowBytes {
		return fmt.Errorf("plane of %d bytes too small for %dx%d with stride %d", len(plane), width, height, stride)
	}
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s\n%d %d\n255\n", magic, width, height); err != nil {
		return err
	}
	for y := 0; y < height; y++ {
		if _, err := bw.Write(plane[y*stride : y*stride+rowBytes]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SavePGM writes the luma plane of f to path.
func SavePGM(path string, f *VideoFrame) error {
	return saveFile(path, func(w io.Writer) error {
		return WritePGM(w, f.Planes[0], f.Strides[0], f.Width, f.Height)
	})
}

// SavePPM writes an RGB24 frame to path.
func SavePPM(path string, f *VideoFrame) error {
	if f.Format != PixFmtRGB24 {
		return fmt.Errorf("ppm needs rgb24, got %s: %w", f.Format, ErrUnsupportedFormat)
	}
	return saveFile(path, func(w io.Writer) error {
		return WritePPM(w, f.Planes[0], f.Strides[0], f.Width, f.Height)
	})
}

func saveFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}
