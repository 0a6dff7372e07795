package media

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformYUV(t *testing.T, w, h int, y, cb, cr byte) *VideoFrame {
	t.Helper()
	f, err := NewVideoFrame(w, h, PixFmtYUV420P, 16)
	require.NoError(t, err)
	for i, v := range []byte{y, cb, cr} {
		for j := range f.Planes[i] {
			f.Planes[i][j] = v
		}
	}
	return f
}

func TestScaler_UniformGrey(t *testing.T) {
	src := uniformYUV(t, 16, 12, 128, 128, 128)
	src.PTS = 7

	for _, size := range []Size{{16, 12}, {40, 30}, {5, 3}} {
		t.Run(size.String(), func(t *testing.T) {
			s, err := NewScaler(size.Width, size.Height)
			require.NoError(t, err)

			out, err := s.Scale(src)
			require.NoError(t, err)
			assert.Equal(t, PixFmtRGB24, out.Format)
			assert.Equal(t, size.Width, out.Width)
			assert.Equal(t, size.Height, out.Height)
			assert.Equal(t, int64(7), out.PTS)
			assert.Len(t, out.Bytes(), size.Width*size.Height*3)

			for _, v := range out.Bytes() {
				assert.InDelta(t, 128, int(v), 1)
			}
		})
	}
}

func TestScaler_RGBIdentity(t *testing.T) {
	src, err := NewVideoFrame(2, 2, PixFmtRGB24, 8)
	require.NoError(t, err)
	raw := []byte{255, 0, 0, 0, 255, 0, 0, 0, 255, 10, 20, 30}
	require.NoError(t, src.SetBytes(raw))

	s, err := NewScaler(2, 2)
	require.NoError(t, err)
	out, err := s.Scale(src)
	require.NoError(t, err)
	assert.Equal(t, raw, out.Bytes())
}

func TestScaler_Errors(t *testing.T) {
	_, err := NewScaler(0, 10)
	assert.Error(t, err)

	s, err := NewScaler(4, 4)
	require.NoError(t, err)

	wrong, err := NewVideoFrame(8, 8, PixFmtRGB24, 1)
	require.NoError(t, err)
	assert.Error(t, s.ScaleInto(wrong, uniformYUV(t, 4, 4, 0, 128, 128)))

	_, err = s.Scale(&VideoFrame{Width: 4, Height: 4, Format: PixelFormat("nv12")})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEncodeJPEG(t *testing.T) {
	src := uniformYUV(t, 32, 16, 200, 90, 160)
	src.Format = PixFmtYUVJ420P

	var buf bytes.Buffer
	require.NoError(t, EncodeJPEG(&buf, src, 90))
	assert.Equal(t, []byte{0xff, 0xd8}, buf.Bytes()[:2])

	img, err := jpeg.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
}
