package media

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Scaler converts frames to RGB24 at a fixed destination size using
// golang.org/x/image/draw. It keeps its RGBA scratch image between calls.
type Scaler struct {
	dstWidth  int
	dstHeight int
	interp    draw.Interpolator
	scratch   *image.RGBA
}

// NewScaler returns a bilinear scaler producing dstWidth x dstHeight RGB24 frames.
func NewScaler(dstWidth, dstHeight int) (*Scaler, error) {
	if dstWidth <= 0 || dstHeight <= 0 {
		return nil, fmt.Errorf("invalid destination size %dx%d", dstWidth, dstHeight)
	}
	return &Scaler{
		dstWidth:  dstWidth,
		dstHeight: dstHeight,
		interp:    draw.BiLinear,
		scratch:   image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight)),
	}, nil
}

// Scale converts src into a newly allocated, tightly packed RGB24 frame.
func (s *Scaler) Scale(src *VideoFrame) (*VideoFrame, error) {
	dst, err := NewVideoFrame(s.dstWidth, s.dstHeight, PixFmtRGB24, 1)
	if err != nil {
		return nil, err
	}
	if err := s.ScaleInto(dst, src); err != nil {
		return nil, err
	}
	return dst, nil
}

// ScaleInto converts src into dst, which must be an RGB24 frame of the scaler's size.
func (s *Scaler) ScaleInto(dst, src *VideoFrame) error {
	if dst.Format != PixFmtRGB24 || dst.Width != s.dstWidth || dst.Height != s.dstHeight {
		return fmt.Errorf("destination must be rgb24 %dx%d, got %s %dx%d",
			s.dstWidth, s.dstHeight, dst.Format, dst.Width, dst.Height)
	}
	img, err := ToImage(src)
	if err != nil {
		return err
	}

	bounds := s.scratch.Bounds()
	if img.Bounds().Dx() == s.dstWidth && img.Bounds().Dy() == s.dstHeight {
		draw.Draw(s.scratch, bounds, img, img.Bounds().Min, draw.Src)
	} else {
		s.interp.Scale(s.scratch, bounds, img, img.Bounds(), draw.Src, nil)
	}

	packRGB24(dst, s.scratch)
	dst.PTS = src.PTS
	return nil
}

// ToImage wraps the frame planes in an image.Image without copying pixel data
// for 4:2:0 and gray frames.
func ToImage(f *VideoFrame) (image.Image, error) {
	rect := image.Rect(0, 0, f.Width, f.Height)
	switch f.Format {
	case PixFmtYUV420P, PixFmtYUVJ420P:
		return &image.YCbCr{
			Y:              f.Planes[0],
			Cb:             f.Planes[1],
			Cr:             f.Planes[2],
			YStride:        f.Strides[0],
			CStride:        f.Strides[1],
			SubsampleRatio: image.YCbCrSubsampleRatio420,
			Rect:           rect,
		}, nil
	case PixFmtGray:
		return &image.Gray{Pix: f.Planes[0], Stride: f.Strides[0], Rect: rect}, nil
	case PixFmtRGB24:
		img := image.NewRGBA(rect)
		for y := 0; y < f.Height; y++ {
			row := f.Row(0, y)
			out := img.Pix[y*img.Stride:]
			for x := 0; x < f.Width; x++ {
				out[x*4] = row[x*3]
				out[x*4+1] = row[x*3+1]
				out[x*4+2] = row[x*3+2]
				out[x*4+3] = 0xff
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("converting %s to image: %w", f.Format, ErrUnsupportedFormat)
	}
}

func packRGB24(dst *VideoFrame, img *image.RGBA) {
	for y := 0; y < dst.Height; y++ {
		row := dst.Row(0, y)
		in := img.Pix[y*img.Stride:]
		for x := 0; x < dst.Width; x++ {
			row[x*3] = in[x*4]
			row[x*3+1] = in[x*4+1]
			row[x*3+2] = in[x*4+2]
		}
	}
}
