package realtime

import (
	"net/http"
	"strings"

	"github.com/carebridge/realtime/ws"
)

// WSAuthenticator verifies the connection token the upstream identity
// provider issued and turns it into the claims a connection carries. The
// token is read from the token query parameter or the Authorization header.
type WSAuthenticator struct {
	secret []byte
}

func NewWSAuthenticator(secret []byte) *WSAuthenticator {
	return &WSAuthenticator{secret: secret}
}

func (a *WSAuthenticator) Authenticate(w http.ResponseWriter, req *http.Request) (ws.Claims, bool) {
	token := req.URL.Query().Get("token")
	if token == "" {
		header := req.Header.Get("Authorization")
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return ws.Claims{}, false
	}

	claims, err := VerifyToken(token, a.secret)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return ws.Claims{}, false
	}

	return ws.Claims{
		UserID:      claims.Subject,
		Role:        claims.Role,
		DisplayName: claims.Name,
	}, true
}
