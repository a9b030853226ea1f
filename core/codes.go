package core

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	DefaultCodeLength   = 8
	DefaultCodeAttempts = 4
)

// codeAlphabet leaves out characters that are easy to misread.
var codeAlphabet = func() string {
	var sb strings.Builder

	for _, c := range "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789" {
		if !strings.ContainsRune("Il1O0", c) {
			sb.WriteRune(c)
		}
	}

	return sb.String()
}()

func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}

	limit := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, length)

	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}

		buf[i] = codeAlphabet[n.Int64()]
	}

	return string(buf), nil
}
