package enum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
)

type color uint8

const (
	red  color = 1
	blue color = 2
)

var colors = NewTable("color", Member[color]{red, "RED"}, Member[color]{blue, "BLUE"})

func TestTable(t *testing.T) {
	t.Run("codes round trip", func(t *testing.T) {
		for _, v := range colors.Values() {
			got, err := colors.FromCode(int(v))
			require.NoError(t, err)
			assert.Equal(t, v, got)
		}
	})

	t.Run("unknown code is invalid argument", func(t *testing.T) {
		for _, code := range []int{0, 3, -1, 1000} {
			_, err := colors.FromCode(code)
			assert.True(t, apperror.IsInvalidArgument(err), "code %d", code)
		}
	})

	t.Run("names are case-insensitive", func(t *testing.T) {
		got, err := colors.FromName(" blue ")
		require.NoError(t, err)
		assert.Equal(t, blue, got)

		_, err = colors.FromName("GREEN")
		assert.Error(t, err)
	})

	t.Run("json accepts name or code", func(t *testing.T) {
		var c color
		require.NoError(t, colors.Unmarshal([]byte(`"RED"`), &c))
		assert.Equal(t, red, c)
		require.NoError(t, colors.Unmarshal([]byte(`2`), &c))
		assert.Equal(t, blue, c)
		assert.Error(t, colors.Unmarshal([]byte(`7`), &c))

		data, err := colors.Marshal(blue)
		require.NoError(t, err)
		assert.JSONEq(t, `"BLUE"`, string(data))

		_, err = colors.Marshal(color(9))
		assert.Error(t, err)
	})

	t.Run("duplicate codes panic", func(t *testing.T) {
		assert.Panics(t, func() {
			NewTable("dup", Member[color]{red, "A"}, Member[color]{red, "B"})
		})
	})

	assert.Equal(t, "UNKNOWN(9)", colors.Name(color(9)))
}
