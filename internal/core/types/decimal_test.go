package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		in    string
		scale int32
		want  string
	}{
		{"1.25", 1, "1.3"},
		{"1.24", 1, "1.2"},
		{"-1.25", 1, "-1.3"},
		{"2.5", 0, "3"},
		{"0.33333333", 4, "0.3333"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := RoundHalfUp(MustDecimal(tt.in), tt.scale)
			assert.True(t, MustDecimal(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestRounder(t *testing.T) {
	r := NewRounder(2)
	assert.Equal(t, "3.35", r.String(MustDecimal("3.345")))
	assert.Equal(t, "10.00", r.String(MustDecimal("10")))

	assert.Equal(t, DefaultDisplayScale, NewRounder(-1).Scale)
}

func TestMin(t *testing.T) {
	assert.True(t, MustDecimal("2").Equal(Min(MustDecimal("2"), MustDecimal("3"))))
	assert.True(t, MustDecimal("2").Equal(Min(MustDecimal("3"), MustDecimal("2"))))
}
