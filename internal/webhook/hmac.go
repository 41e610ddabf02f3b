package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"hash"
	"strings"
)

// ErrAuthentication is returned for every verification failure.
var ErrAuthentication = errors.New("webhook verification failed")

var signatureAlgorithms = map[string]func() hash.Hash{
	"sha1":   sha1.New,
	"sha256": sha256.New,
}

// VerifySignature checks an "algorithm=hexdigest" header against the HMAC of
// body under secret. sha1 (X-Hub-Signature) and sha256 (X-Hub-Signature-256)
// are accepted. The comparison is constant-time.
func VerifySignature(body []byte, header, secret string) error {
	if secret == "" || header == "" {
		return ErrAuthentication
	}

	algo, digest, ok := strings.Cut(header, "=")
	if !ok {
		return ErrAuthentication
	}
	newHash, ok := signatureAlgorithms[strings.ToLower(strings.TrimSpace(algo))]
	if !ok {
		return ErrAuthentication
	}
	actual, err := hex.DecodeString(strings.TrimSpace(digest))
	if err != nil {
		return ErrAuthentication
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), actual) {
		return ErrAuthentication
	}
	return nil
}
