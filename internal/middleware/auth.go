// Package middleware содержит HTTP middleware движка начислений.
package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
)

const (
	// SignatureHeader содержит HMAC-SHA256 тела запроса в hex.
	SignatureHeader = "X-Signature"
	signaturePrefix = "sha256="

	maxWebhookBody = 1 << 20
)

// WebhookSignature проверяет подпись входящих событий платёжного провайдера.
type WebhookSignature struct {
	secretKey []byte
}

// NewWebhookSignature создаёт проверку подписи с указанным секретом.
func NewWebhookSignature(secret string) *WebhookSignature {
	return &WebhookSignature{secretKey: []byte(secret)}
}

// Sign возвращает подпись тела в том виде, в котором её ожидает Middleware.
func (s *WebhookSignature) Sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Middleware пропускает запрос дальше, только если подпись совпала.
// Тело запроса читается целиком и восстанавливается для обработчика.
func (s *WebhookSignature) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature := strings.TrimPrefix(strings.TrimSpace(r.Header.Get(SignatureHeader)), signaturePrefix)
		if signature == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		_ = r.Body.Close()

		expected := s.Sign(body)
		if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		next.ServeHTTP(w, r)
	})
}

// ControlAuth пропускает запросы управления с корректным Bearer-токеном.
type ControlAuth struct {
	token []byte
}

// NewControlAuth создаёт проверку токена управления.
func NewControlAuth(token string) *ControlAuth {
	return &ControlAuth{token: []byte(token)}
}

// Middleware проверяет заголовок Authorization.
func (a *ControlAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || len(a.token) == 0 || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), a.token) != 1 {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
