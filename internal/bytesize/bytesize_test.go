package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ByteSize
	}{
		{"plain", "1024", 1024},
		{"bytes suffix", "512B", 512},
		{"kibibytes", "1KiB", 1024},
		{"short binary", "16Mi", 16 * MiB},
		{"mebibytes with space", "16 MiB", 16 * MiB},
		{"decimal", "100MB", 100 * MB},
		{"lowercase", "1gib", GiB},
		{"fraction", "1.5KiB", 1536},
		{"padded", "  2KB ", 2 * KB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "12XB", "-5MB"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.Error(t, err)
		})
	}
}

func TestTextRoundTrip(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("16MiB")))
	assert.Equal(t, 16*MiB, b)

	text, err := b.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "16 MiB", string(text))

	var back ByteSize
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, b, back)
}

func TestUnmarshalTextError(t *testing.T) {
	var b ByteSize
	assert.Error(t, b.UnmarshalText([]byte("lots")))
}
