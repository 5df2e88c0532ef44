package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint("b:paid", "a:failed")
	assert.Equal(t, a, Fingerprint("a:failed", "b:paid"))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, Fingerprint("a:failed", "b:failed"))
}

func TestFormatMinor(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		5:      "0.05",
		18877:  "188.77",
		-1250:  "-12.50",
		900000: "9000.00",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatMinor(in))
	}
}
