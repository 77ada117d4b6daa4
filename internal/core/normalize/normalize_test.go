package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"decimal comma and spaces", "12,5   mg", "12.5 mg"},
		{"newlines and tabs", "Hb:\n\t13,2\r\ng/dL", "Hb: 13.2 g/dL"},
		{"thousands separator is not special", "Plaquetas 1,200", "Plaquetas 1.200"},
		{"leading and trailing runs collapse but stay", "\n\n FC 80 \n", " FC 80 "},
		{"unicode spaces", "Temp   36,6\v°C", "Temp 36.6 °C"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}
