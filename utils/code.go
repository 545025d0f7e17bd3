// utils/code.go
package utils

import (
	"crypto/rand"
	"math/big"

	"bargain-arcade/models"
)

// Unambiguous alphabet: no 0/O or 1/I, codes get typed at checkout.
const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeSuffixLength = 8

// GenerateDiscountCode returns a fresh engine code: the structural prefix
// plus 8 random characters, e.g. BARGAINAB12CD34-style tokens.
func GenerateDiscountCode() (string, error) {
	suffix, err := randomAlphaNumeric(codeSuffixLength)
	if err != nil {
		return "", err
	}
	return models.CodePrefix + suffix, nil
}

func randomAlphaNumeric(n int) (string, error) {
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		if err != nil {
			return "", err
		}
		b[i] = codeChars[num.Int64()]
	}
	return string(b), nil
}
