package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountryCode(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"France", "FR"},
		{"  united states of america  ", "US"},
		{"Czechia", "CZ"},
		{"Czech Republic", "CZ"},
		{"de", "DE"},
		{"jp", "JP"},
		{"Atlantis", ""},
		{"", ""},
		{"12", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CountryCode(tt.label), "label %q", tt.label)
	}
}
