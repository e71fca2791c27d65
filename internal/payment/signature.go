package payment

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"strings"
)

// Algorithm selects the digest used by the Signer.
type Algorithm string

const (
	AlgorithmMD5    Algorithm = "md5"
	AlgorithmSHA256 Algorithm = "sha256"
	AlgorithmSHA512 Algorithm = "sha512"
)

// Field orders covered by the signature. The secret is always appended last.
var (
	PurchaseSignatureOrder = []string{KeyAccessKey, KeyOrderID, KeyAmount, KeyTax, KeyDateTime}

	CardSignatureOrder = []string{
		KeyOrderID, KeyCardType, KeyMethod, KeyPayTimes,
		KeyApprovalCode, KeyTransactionID, KeyTransactionDate,
	}

	CarrierSignatureOrder = []string{KeyOrderID, KeyAccessID, KeyTransactionDate}
)

// ParseAlgorithm validates an algorithm name from configuration.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(name))); a {
	case AlgorithmMD5, AlgorithmSHA256, AlgorithmSHA512:
		return a, nil
	}
	return "", configErrorf("unsupported hash algorithm %q", name)
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case AlgorithmSHA256:
		return sha256.New()
	case AlgorithmSHA512:
		return sha512.New()
	default:
		return md5.New()
	}
}

// Signer computes keyed digests over positional field lists.
type Signer struct {
	alg    Algorithm
	secret string
}

func NewSigner(alg Algorithm, secret string) (*Signer, error) {
	if _, err := ParseAlgorithm(string(alg)); err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, configErrorf("signing secret is empty")
	}
	return &Signer{alg: alg, secret: secret}, nil
}

func (s *Signer) Algorithm() Algorithm { return s.alg }

// Sign returns the lowercase hex digest of fields concatenated in order,
// followed by the secret. Empty strings keep their position.
func (s *Signer) Sign(fields []string) string {
	h := s.alg.newHash()
	for _, f := range fields {
		h.Write([]byte(f))
	}
	h.Write([]byte(s.secret))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether digest matches the signature of fields.
func (s *Signer) Verify(fields []string, digest string) bool {
	want := s.Sign(fields)
	got := strings.ToLower(strings.TrimSpace(digest))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
