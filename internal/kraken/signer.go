package kraken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
)

// Sign produces the API-Sign header for a private request:
// base64(HMAC-SHA512(key, path || SHA256(nonce || urlencoded body))) keyed by
// the base64-decoded secret. The nonce must already be present in values and
// must strictly increase across calls; the client serializes private calls
// to guarantee that.
func Sign(path string, values url.Values, nonce int64, secretB64 string) (string, error) {
	secret, err := base64.StdEncoding.DecodeString(secretB64)
	if err != nil {
		return "", fmt.Errorf("invalid api secret: %w", err)
	}

	digest := sha256.Sum256([]byte(strconv.FormatInt(nonce, 10) + values.Encode()))

	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(path))
	mac.Write(digest[:])

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
