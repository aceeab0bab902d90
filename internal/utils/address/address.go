// Package address validates base58 encoded Solana keys and signatures.
package address

import (
	"github.com/mr-tron/base58"
)

const (
	publicKeyLength = 32
	signatureLength = 64
)

func IsValidPublicKey(s string) bool {
	return decodedLength(s) == publicKeyLength
}

func IsValidSignature(s string) bool {
	return decodedLength(s) == signatureLength
}

func decodedLength(s string) int {
	if s == "" {
		return -1
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return -1
	}
	return len(raw)
}
