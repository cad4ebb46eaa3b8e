// Package middleware contém os HTTP middlewares do serviço rotaExata.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

type contextKey string

const driverIDKey contextKey = "driverID"

const bearerPrefix = "Bearer "

// AuthMiddleware autentica o aplicativo do motorista por token assinado
// enviado no cabeçalho Authorization.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware cria o middleware de autenticação com o segredo
// informado. Sem segredo configurado, um aleatório é gerado: os tokens
// deixam de sobreviver a reinícios do serviço.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware valida o token do motorista e injeta o identificador no
// contexto da requisição.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		driverID, ok := a.parseToken(strings.TrimPrefix(header, bearerPrefix))
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), driverIDKey, driverID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SignDriverToken emite o token assinado para o motorista informado.
func (a *AuthMiddleware) SignDriverToken(driverID string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(driverID))
	signature := mac.Sum(nil)
	return driverID + "." + hex.EncodeToString(signature)
}

func (a *AuthMiddleware) parseToken(token string) (string, bool) {
	idx := strings.LastIndex(token, ".")
	if idx <= 0 || idx == len(token)-1 {
		return "", false
	}

	driverID := token[:idx]
	signature := token[idx+1:]

	expected := a.SignDriverToken(driverID)
	expectedSig := expected[strings.LastIndex(expected, ".")+1:]

	if !hmac.Equal([]byte(signature), []byte(expectedSig)) {
		return "", false
	}

	return driverID, true
}

// GetDriverIDFromContext extrai o identificador do motorista do
// contexto da requisição.
func GetDriverIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(driverIDKey).(string)
	return id, ok
}
