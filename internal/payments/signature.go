package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
)

// SignatureHeader carries hex(HMAC-SHA256(raw body, secret)).
const SignatureHeader = "X-Signature"

// Verifier authenticates webhook bodies against the shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook secret required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// Sign returns the hex signature for payload.
func (v *Verifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature over the raw, unparsed payload in constant time.
func (v *Verifier) Verify(payload []byte, signature string) error {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature missing")
	}
	expected := v.Sign(payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature mismatch")
	}
	return nil
}
