package kcb

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingSignature = errors.New("kcb: missing signature")
	ErrInvalidSignature = errors.New("kcb: invalid signature")
	ErrNoPublicKey      = errors.New("kcb: public key not configured")
)

// ParsePublicKey reads a PEM encoded RSA public key.
func ParsePublicKey(pemText string) (*rsa.PublicKey, error) {
	if strings.TrimSpace(pemText) == "" {
		return nil, ErrNoPublicKey
	}
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("kcb: public key is not PEM encoded")
	}

	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("kcb: public key is %T, want RSA", pub)
		}
		return rsaPub, nil
	}
	pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("kcb: parsing public key: %w", err)
	}
	return pub, nil
}

// VerifySignature checks a base64 RSA-SHA256 (PKCS#1 v1.5) signature over
// the canonical form of the JSON payload (see CanonicalJSON).
func VerifySignature(pub *rsa.PublicKey, payload []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrMissingSignature
	}
	if pub == nil {
		return ErrNoPublicKey
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return fmt.Errorf("canonicalizing payload: %w", err)
	}

	digest := sha256.Sum256(canonical)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
		return ErrInvalidSignature
	}
	return nil
}
