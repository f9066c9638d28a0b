package utils

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/filecoin-project/go-jsonrpc/auth"
	logging "github.com/ipfs/go-log/v2"
	"go.opencensus.io/trace"

	"github.com/kadena-community/cabinet-gateway/types"
)

var log = logging.Logger("auth")

// AuthHandler puts the permissions of the bearer token into the request
// context. Loopback callers without a token get every permission.
type AuthHandler struct {
	Verify func(ctx context.Context, token string) (*JWTPayload, []auth.Permission, error)
	Next   http.HandlerFunc
}

func jwtUserFromToken(token string) (string, error) {
	sks := strings.Split(token, ".")
	if len(sks) != 3 {
		return "", fmt.Errorf("invalid token")
	}

	enc := []byte(sks[1])
	encoding := base64.RawURLEncoding
	dec := make([]byte, encoding.DecodedLen(len(enc)))
	if _, err := encoding.Decode(dec, enc); err != nil {
		return "", err
	}
	payload := &JWTPayload{}
	err := json.Unmarshal(dec, payload)
	return payload.Name, err
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "AuthHandler.ServeHTTP",
		func(so *trace.StartOptions) { so.Sampler = trace.AlwaysSample() })
	defer span.End()

	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.FormValue("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	if len(token) == 0 {
		// local call doesn't need a token
		if isLoopback(r.RemoteAddr) {
			ctx = auth.WithPerm(ctx, AdaptPerm(PermAdmin))
		} else {
			message := "JWT verification failed, empty token"
			span.SetStatus(trace.Status{Code: trace.StatusCodeUnauthenticated, Message: message})
			log.Warn(message)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	ctx = context.WithValue(ctx, types.IPKey, h.getClientIP(r))

	if token != "" {
		if !strings.HasPrefix(token, "Bearer ") {
			log.Warn("missing Bearer prefix in auth header")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		token = strings.TrimPrefix(token, "Bearer ")

		if mayUser, _ := jwtUserFromToken(token); len(mayUser) != 0 {
			span.AddAttributes(trace.StringAttribute("Account-Unverified", mayUser))
		}

		span.AddAttributes(trace.StringAttribute("X-Real-IP", r.RemoteAddr),
			trace.StringAttribute("preHost", r.Host))

		payload, perms, err := h.Verify(ctx, token)
		if err != nil {
			message := fmt.Sprintf("JWT Verification failed (originating from %s): %s", r.RemoteAddr, err.Error())
			span.SetStatus(trace.Status{
				Code:    trace.StatusCodeUnauthenticated,
				Message: message})
			log.Warn(message)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		span.AddAttributes(trace.StringAttribute("Account", payload.Name))

		ctx = context.WithValue(ctx, types.AccountKey, payload.Name)
		ctx = auth.WithPerm(ctx, perms)
	}

	h.Next(w, r.WithContext(ctx))
}

func (h *AuthHandler) getClientIP(r *http.Request) string {
	realIP := r.Header.Get("X-Real-IP")
	if len(realIP) == 0 {
		return r.RemoteAddr
	}
	return realIP
}
