package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatValueFactor(t *testing.T) {
	tests := []struct {
		value float64
		unit  string
		want  string
	}{
		{0, "V", "0.000 V"},
		{1.5e-3, "A", "1.500 mA"},
		{-2.2e3, "", "-2.200 k"},
		{3.3, "V", "3.300 V"},
		{47e-12, "F", "47.000 pF"},
		{1e-18, "F", "1.000e-18 F"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, FormatValueFactor(tc.value, tc.unit))
	}
}

func TestFormatFrequency(t *testing.T) {
	assert.Equal(t, " 10.000 Hz ", FormatFrequency(10))
	assert.Equal(t, "  1.000 kHz", FormatFrequency(1e3))
	assert.Equal(t, "  2.500 MHz", FormatFrequency(2.5e6))
	assert.Equal(t, "  1.000 GHz", FormatFrequency(1e9))
}

func TestFormatNoise(t *testing.T) {
	assert.Equal(t, "4.000 nV/sqrt(Hz)", FormatNoise(4e-9, "V"))
	assert.Equal(t, " -45.0", FormatPhase(-45))
}
