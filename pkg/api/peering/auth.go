package peering

import (
	"context"
	"net/http"
	"strings"

	apierrors "github.com/autopeerd/autopeerd/pkg/api/errors"
	"github.com/autopeerd/autopeerd/pkg/errors"
	"github.com/autopeerd/autopeerd/pkg/token"
)

type contextKey string

const asnContextKey contextKey = "asn"

// tokenCookieName is the cookie clients may present instead of an
// Authorization header.
const tokenCookieName = "autopeer_token"

// RequireToken validates a bearer token from either the Authorization
// header or the autopeer_token cookie and stores the ASN it proves on
// the request context. It never issues the cookie itself — CookieDomain
// is only consulted by handlers that set one after verify.
func RequireToken(tokens *token.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerFromHeader(r)
			if raw == "" {
				raw = bearerFromCookie(r)
			}
			if raw == "" {
				apierrors.WriteJSONError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			asn, err := tokens.Validate(raw)
			if err != nil {
				apierrors.WriteJSONError(w, errors.StatusCode(errors.ErrUnauthorized), "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), asnContextKey, asn)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerFromHeader(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func bearerFromCookie(r *http.Request) string {
	c, err := r.Cookie(tokenCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// asnFromContext returns the ASN RequireToken proved for this request.
func asnFromContext(ctx context.Context) uint32 {
	asn, _ := ctx.Value(asnContextKey).(uint32)
	return asn
}

// setTokenCookie issues the autopeer_token cookie; domain is the
// operator-configured cookie domain (may be empty to omit it).
func setTokenCookie(w http.ResponseWriter, tok, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    tok,
		Domain:   domain,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}
