package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVideoSize(t *testing.T) {
	tests := []struct {
		input   string
		want    Size
		wantErr bool
	}{
		{"640x480", Size{640, 480}, false},
		{"1x1", Size{1, 1}, false},
		{"hd720", Size{1280, 720}, false},
		{"cif", Size{352, 288}, false},
		{"qvga", Size{320, 240}, false},
		{"ntsc-film", Size{352, 240}, false},
		{"uhd2160", Size{3840, 2160}, false},
		{"0x480", Size{}, true},
		{"640x-1", Size{}, true},
		{"640x", Size{}, true},
		{"640", Size{}, true},
		{"640x480x2", Size{}, true},
		{"HD720", Size{}, true},
		{"", Size{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVideoSize(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSize)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSize_String(t *testing.T) {
	assert.Equal(t, "1280x720", Size{1280, 720}.String())
}
