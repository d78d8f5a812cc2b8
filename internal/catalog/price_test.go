package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoercePrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   any
		want int64
	}{
		{"int", 1290, 1290},
		{"int64", int64(45900), 45900},
		{"float", 999.0, 999},
		{"float truncates", 999.99, 999},
		{"numeric string", "1290", 1290},
		{"string with symbol", "$1,290", 1290},
		{"string with unit", "NT$45,900 元", 45900},
		{"decimal string", "129.50", 129},
		{"empty string", "", 0},
		{"garbage", "call for price", 0},
		{"nil", nil, 0},
		{"unsupported type", []string{"x"}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, CoercePrice(tc.in))
		})
	}
}
