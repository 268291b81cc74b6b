package mexc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"time"
)

// Signer handles MEXC spot v3 request signatures
type Signer struct {
	apiKey     string
	secretKey  string
	recvWindow int
	now        func() time.Time
}

// NewSigner creates a new Signer instance
func NewSigner(apiKey, secretKey string, recvWindowMS int) *Signer {
	return &Signer{
		apiKey:     apiKey,
		secretKey:  secretKey,
		recvWindow: recvWindowMS,
		now:        time.Now,
	}
}

// APIKey returns the key sent in the X-MEXC-APIKEY header.
func (s *Signer) APIKey() string {
	return s.apiKey
}

// Sign adds timestamp, recvWindow and signature to params and returns the encoded query.
// MEXC signs the exact query string: HMAC-SHA256(secret, totalParams), hex encoded.
func (s *Signer) Sign(params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(s.now().UnixMilli(), 10))
	if s.recvWindow > 0 {
		params.Set("recvWindow", strconv.Itoa(s.recvWindow))
	}

	payload := params.Encode()
	return payload + "&signature=" + computeHmacSha256(payload, s.secretKey)
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}
