package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"folderzip/internal/metrics"
)

var (
	ErrInvalidExpiry     = errors.New("invalid expiry")
	ErrExpired           = errors.New("request has expired")
	ErrSignatureRequired = errors.New("signature required")
	ErrInvalidSignature  = errors.New("invalid signature")
)

// Verifier handles export link signature verification
type Verifier struct {
	secret         []byte
	enforceSigning bool
	metrics        *metrics.Metrics
}

// NewVerifier creates a new signature verifier
func NewVerifier(secret []byte, enforceSigning bool, m *metrics.Metrics) *Verifier {
	return &Verifier{
		secret:         secret,
		enforceSigning: enforceSigning,
		metrics:        m,
	}
}

// Verify checks the signature and expiry of an export link for folderID
func (v *Verifier) Verify(folderID, expiryStr, signature string) error {
	hasExpiry := expiryStr != ""

	if hasExpiry {
		expiry, err := strconv.ParseInt(expiryStr, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidExpiry, err)
		}
		if time.Now().Unix() > expiry {
			v.metrics.ExpiredRequestsTotal.Inc()
			return ErrExpired
		}
	}

	// Check signature if enforced or provided
	if v.enforceSigning || signature != "" {
		if signature == "" {
			v.metrics.SignatureFailuresTotal.Inc()
			return ErrSignatureRequired
		}

		expected := v.Sign(folderID, expiryStr)
		if !hmac.Equal([]byte(signature), []byte(expected)) {
			v.metrics.SignatureFailuresTotal.Inc()
			return ErrInvalidSignature
		}
	}

	return nil
}

// Sign returns the hex HMAC-SHA256 of "folderID" or "folderID|expiry"
func (v *Verifier) Sign(folderID, expiryStr string) string {
	payload := folderID
	if expiryStr != "" {
		payload += "|" + expiryStr
	}

	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
