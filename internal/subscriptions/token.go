package subscriptions

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Confirmation tokens are 25 characters from an alphanumeric alphabet,
// drawn from crypto/rand. At ~149 bits of entropy the value space makes
// guessing infeasible; the store's uniqueness constraint catches the
// astronomically unlikely collision.
const (
	tokenLength   = 25
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// generateToken returns a fresh confirmation token. Tokens are never
// reused or derived from subscriber data.
func generateToken() (string, error) {
	token := make([]byte, tokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range token {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		token[i] = tokenAlphabet[n.Int64()]
	}
	return string(token), nil
}
