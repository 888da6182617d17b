package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignPayment вычисляет подпись checkout-ответа шлюза: HMAC-SHA256(orderID|paymentID) в hex.
func SignPayment(orderID, paymentID, secret string) string {
	return sign([]byte(orderID+"|"+paymentID), secret)
}

// SignWebhook вычисляет подпись тела webhook.
func SignWebhook(body []byte, secret string) string {
	return sign(body, secret)
}

// VerifyPaymentSignature сверяет подпись за постоянное время.
func VerifyPaymentSignature(orderID, paymentID, signature, secret string) bool {
	if orderID == "" || paymentID == "" || signature == "" || secret == "" {
		return false
	}
	return equalHex(SignPayment(orderID, paymentID, secret), signature)
}

// VerifyWebhookSignature сверяет подпись сырого тела webhook за постоянное время.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	return equalHex(SignWebhook(body, secret), signature)
}

func sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func equalHex(expected, actual string) bool {
	return hmac.Equal([]byte(expected), []byte(actual))
}
