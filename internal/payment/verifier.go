// Package payment integrates the Razorpay-style payment gateway: signature
// verification of completed payments and server-side order creation.
package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/xenking/storefront/internal/domain/payment"
)

var _ payment.Verifier = (*HMACVerifier)(nil)

// HMACVerifier checks gateway signatures, which are the hex HMAC-SHA256 of
// "order_id|payment_id" keyed with the gateway secret.
type HMACVerifier struct {
	secret []byte
}

// NewHMACVerifier returns a verifier using the gateway key secret.
func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify implements payment.Verifier.
func (v *HMACVerifier) Verify(c payment.Confirmation) bool {
	got, err := hex.DecodeString(c.Signature)
	if err != nil {
		return false
	}
	return hmac.Equal(v.sign(c.GatewayOrderID, c.GatewayPaymentID), got)
}

// Sign returns the hex signature the gateway would produce.
func (v *HMACVerifier) Sign(orderID, paymentID string) string {
	return hex.EncodeToString(v.sign(orderID, paymentID))
}

func (v *HMACVerifier) sign(orderID, paymentID string) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return mac.Sum(nil)
}
