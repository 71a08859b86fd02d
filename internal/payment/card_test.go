package payment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidCard(t *testing.T) {
	tests := []struct {
		name   string
		number string
		want   bool
	}{
		{"visa test number", "4242424242424242", true},
		{"visa another", "4111111111111111", true},
		{"mastercard 51-55 range", "5555555555554444", true},
		{"mastercard 2-series range", "2223003122003222", true},
		{"luhn failure", "4242424242424241", false},
		{"luhn ok but unknown issuer", "378282246310005", false},
		{"reversed with extra digit", "24242424242424243", false},
		{"non decimal", "4242abcd42424242", false},
		{"empty", "", false},
		{"too short for prefix", "424", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ValidCard(tt.number))
		})
	}
}

func TestValidateCardMessage(t *testing.T) {
	err := ValidateCard("4242424242424241")
	require.Error(t, err)
	require.Equal(t, "Card number is invalid.", err.Error())

	require.NoError(t, ValidateCard("4242424242424242"))
}
