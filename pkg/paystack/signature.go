package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the HMAC-SHA512 of a webhook body keyed by the secret key.
const SignatureHeader = "X-Paystack-Signature"

var ErrInvalidSignature = errors.New("invalid webhook signature")

type Signer struct {
	secretKey []byte
}

func NewSigner(secretKey string) *Signer {
	return &Signer{secretKey: []byte(secretKey)}
}

func (s *Signer) Sign(body []byte) string {
	mac := hmac.New(sha512.New, s.secretKey)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a webhook body against the value of SignatureHeader.
func (s *Signer) Verify(body []byte, signature string) error {
	if len(s.secretKey) == 0 {
		return ErrInvalidSignature
	}
	expected := s.Sign(body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return ErrInvalidSignature
	}
	return nil
}
