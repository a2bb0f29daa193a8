package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
)

// SignatureHeader — заголовок с HMAC-подписью тела webhook-запроса.
const SignatureHeader = "X-Korapay-Signature"

// SignatureMiddleware проверяет HMAC-SHA256 подпись входящих webhook-запросов.
type SignatureMiddleware struct {
	secretKey []byte
}

// NewSignatureMiddleware создаёт middleware проверки подписи с указанным секретом.
// Пустой секрет отключает проверку.
func NewSignatureMiddleware(secret string) *SignatureMiddleware {
	return &SignatureMiddleware{secretKey: []byte(secret)}
}

// Middleware сверяет подпись тела запроса и возвращает 401 при несовпадении.
// Тело восстанавливается для последующих обработчиков.
func (s *SignatureMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.secretKey) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		r.Body.Close()

		if !s.verify(body, r.Header.Get(SignatureHeader)) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

// Sign возвращает hex-подпись HMAC-SHA256 для указанного тела.
func (s *SignatureMiddleware) Sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *SignatureMiddleware) verify(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(s.Sign(body)), []byte(signature))
}
