package middleware

import (
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/lushly-dev/afd/pkg/afdcontext"
	"github.com/lushly-dev/afd/pkg/result/errcode"
)

// TokenVerifier checks a bearer token and returns the authenticated user ID.
// Hosts plug in whatever verification scheme they need (introspection
// endpoint, JWKS, a static allowlist for tests); the framework defines the
// hook point and deliberately prescribes no authz policy of its own.
type TokenVerifier func(ctx *afdcontext.Context, token string) (userID string, err error)

// AuthHook builds a middleware that extracts a bearer token the caller
// stored on the context (see WithBearerToken) and rejects the invocation
// with FORBIDDEN if verify fails. Passing a nil verifier disables the
// check entirely, so hosts that don't need auth can omit this middleware
// from their stock chain instead.
func AuthHook(verify TokenVerifier) Middleware {
	return func(ctx *afdcontext.Context, commandName string, input json.RawMessage, next Next) (json.RawMessage, error) {
		if verify == nil {
			return next(ctx)
		}
		token, _ := ctx.Get(bearerTokenKey)
		tokenStr, _ := token.(string)
		if tokenStr == "" {
			return nil, &forbiddenError{reason: "missing bearer token"}
		}
		userID, err := verify(ctx, tokenStr)
		if err != nil {
			return nil, &forbiddenError{reason: err.Error()}
		}
		ctx.UserID = userID
		return next(ctx)
	}
}

const bearerTokenKey = "middleware.bearerToken"

// WithBearerToken stashes a raw "Authorization: Bearer <token>" header value
// on ctx for AuthHook to pick up.
func WithBearerToken(ctx *afdcontext.Context, header string) {
	ctx.Set(bearerTokenKey, strings.TrimPrefix(header, "Bearer "))
}

type forbiddenError struct{ reason string }

func (e *forbiddenError) Error() string { return "forbidden: " + e.reason }
func (e *forbiddenError) Code() string  { return errcode.Forbidden }

// ClientCredentialsVerifier demonstrates wiring golang.org/x/oauth2's
// client-credentials flow as a TokenVerifier: it fetches a token for cfg's
// own client credentials and, if that token is valid, reports the
// configured client ID as the resolved user. The inbound token is not
// inspected, so any non-empty bearer value passes. Hosts with a real identity provider will replace
// this with their own introspection call; it exists so the auth hook point
// has a concrete, runnable example rather than only an interface.
func ClientCredentialsVerifier(cfg clientcredentials.Config) TokenVerifier {
	return func(ctx *afdcontext.Context, token string) (string, error) {
		src := cfg.TokenSource(ctx)
		tok, err := src.Token()
		if err != nil {
			return "", err
		}
		if !tok.Valid() {
			return "", errors.New("client credentials token is not valid")
		}
		return cfg.ClientID, nil
	}
}
