package codec_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/notifier/internal/codec"
)

type person struct {
	Address     string `json:"address"`
	DisplayName string `json:"displayName"`
}

type batch struct {
	People []person           `json:"people"`
	Labels map[string]string `json:"labels,omitempty"`
	Count  int                `json:"count"`
}

func TestRoundTrip(t *testing.T) {
	t.Run("struct", func(t *testing.T) {
		in := person{Address: "a@x.com", DisplayName: "Ä Ünicode"}
		b, err := codec.Encode(in)
		require.NoError(t, err)
		out, err := codec.Decode[person](b)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("nested", func(t *testing.T) {
		in := batch{
			People: []person{{Address: "a@x.com", DisplayName: "A"}, {Address: "b@x.com"}},
			Labels: map[string]string{"k": "v"},
			Count:  2,
		}
		b, err := codec.Encode(in)
		require.NoError(t, err)
		out, err := codec.Decode[batch](b)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})

	t.Run("zero value", func(t *testing.T) {
		b, err := codec.Encode(person{})
		require.NoError(t, err)
		out, err := codec.Decode[person](b)
		require.NoError(t, err)
		assert.Equal(t, person{}, out)
	})

	t.Run("pointer", func(t *testing.T) {
		in := &person{Address: "p@x.com"}
		b, err := codec.Encode(in)
		require.NoError(t, err)
		out, err := codec.Decode[*person](b)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	})
}

func TestEncode_AbsentValueIsEmptyPayload(t *testing.T) {
	var p *person
	b, err := codec.Encode(p)
	require.NoError(t, err)
	assert.Empty(t, b)

	out, err := codec.Decode[*person](b)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestDecode_EmptyPayloadIsZeroValue(t *testing.T) {
	for _, in := range [][]byte{nil, {}, []byte("  \n")} {
		out, err := codec.Decode[person](in)
		require.NoError(t, err)
		assert.Equal(t, person{}, out)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"truncated", `{"address":"a@x.com"`},
		{"wrong type", `{"address":42}`},
		{"not json", `address=a@x.com`},
		{"trailing data", `{"address":"a"} {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode[person]([]byte(tt.in))
			require.Error(t, err)

			var de *codec.DecodeError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, "codec_test.person", de.Type)
			assert.Contains(t, err.Error(), "decoding codec_test.person payload")
		})
	}
}
