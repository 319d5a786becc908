package billing

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// hmacGateway implements Gateway against a gateway whose callbacks are
// signed with HMAC-SHA256 over "orderID|paymentID" using a shared key
// secret. Order identifiers are minted locally and handed to the checkout
// flow; the gateway echoes them back in the verified callback.
type hmacGateway struct {
	keyID  string
	secret []byte
}

// NewHMACGateway creates a gateway client with the given API key pair.
func NewHMACGateway(keyID, keySecret string) Gateway {
	return &hmacGateway{
		keyID:  keyID,
		secret: []byte(keySecret),
	}
}

func (g *hmacGateway) CreateOrder(_ context.Context, amount int64, metadata OrderMetadata) (string, error) {
	if amount < 0 {
		return "", fmt.Errorf("billing: negative order amount %d", amount)
	}

	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("billing: generate order id: %w", err)
	}
	return "order_" + hex.EncodeToString(buf), nil
}

func (g *hmacGateway) VerifyPayment(orderID, paymentID, signature string) (bool, error) {
	if orderID == "" || paymentID == "" || signature == "" {
		return false, nil
	}

	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature)), nil
}
