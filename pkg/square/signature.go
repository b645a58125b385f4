package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignatureHeader carries Square's webhook HMAC.
const SignatureHeader = "x-square-hmacsha256-signature"

// Sign computes the Square webhook signature: base64(HMAC-SHA256(key, url+body)).
func Sign(signatureKey, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header is the valid signature of body as
// delivered to notificationURL.
func VerifySignature(signatureKey, notificationURL string, body []byte, header string) bool {
	if header == "" || signatureKey == "" {
		return false
	}
	expected := Sign(signatureKey, notificationURL, body)
	return hmac.Equal([]byte(expected), []byte(header))
}

// VerifyWebhook checks a delivery against this client's key and URL.
func (c *Client) VerifyWebhook(body []byte, header string) bool {
	if c == nil {
		return false
	}
	return VerifySignature(c.webhookSecret, c.webhookURL, body, header)
}
