package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected ByteSize
		wantErr  bool
	}{
		{"bytes", "4096", 4096, false},
		{"kibibytes", "4KiB", 4096, false},
		{"audio buffer", "20 KiB", 20480, false},
		{"si kilobytes", "4kB", 4000, false},
		{"mebibytes", "1MiB", 1 << 20, false},
		{"zero", "0", 0, false},
		{"invalid", "lots", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, err := ParseByteSize(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, size)
		})
	}
}

func TestByteSize_UnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("8KiB")))
	assert.Equal(t, 8192, b.Int())
}

func TestByteSize_JSON(t *testing.T) {
	t.Run("string", func(t *testing.T) {
		var b ByteSize
		require.NoError(t, json.Unmarshal([]byte(`"4KiB"`), &b))
		assert.Equal(t, ByteSize(4096), b)
	})

	t.Run("number", func(t *testing.T) {
		var b ByteSize
		require.NoError(t, json.Unmarshal([]byte(`20480`), &b))
		assert.Equal(t, ByteSize(20480), b)
	})

	t.Run("marshal is human readable", func(t *testing.T) {
		data, err := json.Marshal(ByteSize(4096))
		require.NoError(t, err)
		assert.Equal(t, `"4.0 KiB"`, string(data))
	})
}
