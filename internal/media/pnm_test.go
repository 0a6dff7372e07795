package media

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePGM_Strided(t *testing.T) {
	plane := []byte{1, 2, 3, 0xee, 4, 5, 6, 0xee}

	var buf bytes.Buffer
	require.NoError(t, WritePGM(&buf, plane, 4, 3, 2))

	want := append([]byte("P5\n3 2\n255\n"), 1, 2, 3, 4, 5, 6)
	assert.Equal(t, want, buf.Bytes())
}

func TestWritePPM(t *testing.T) {
	plane := []byte{10, 20, 30, 40, 50, 60}

	var buf bytes.Buffer
	require.NoError(t, WritePPM(&buf, plane, 6, 2, 1))

	want := append([]byte("P6\n2 1\n255\n"), plane...)
	assert.Equal(t, want, buf.Bytes())
}

func TestWritePNM_PlaneTooSmall(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WritePPM(&buf, make([]byte, 5), 6, 2, 1))
	assert.Error(t, WritePGM(&buf, make([]byte, 8), 2, 3, 2), "stride below row width")
}

func TestSavePGMAndPPM(t *testing.T) {
	dir := t.TempDir()

	yuv, err := NewVideoFrame(4, 2, PixFmtYUV420P, 16)
	require.NoError(t, err)
	require.NoError(t, FillPattern(yuv, 0, PatternEncode))

	pgm := filepath.Join(dir, "test00.pgm")
	require.NoError(t, SavePGM(pgm, yuv))
	data, err := os.ReadFile(pgm)
	require.NoError(t, err)
	assert.Equal(t, append([]byte("P5\n4 2\n255\n"), 0, 1, 2, 3, 1, 2, 3, 4), data)

	assert.ErrorIs(t, SavePPM(filepath.Join(dir, "frame1.ppm"), yuv), ErrUnsupportedFormat)

	rgb, err := NewVideoFrame(1, 1, PixFmtRGB24, 1)
	require.NoError(t, err)
	copy(rgb.Planes[0], []byte{255, 0, 128})
	ppm := filepath.Join(dir, "frame1.ppm")
	require.NoError(t, SavePPM(ppm, rgb))
	data, err = os.ReadFile(ppm)
	require.NoError(t, err)
	assert.Equal(t, append([]byte("P6\n1 1\n255\n"), 255, 0, 128), data)
}
