// Package auth provides optional bearer-token authentication for the
// parley-gateway HTTP API.
//
// # Tokens
//
// Callers authenticate with HS256-signed JWTs carrying a "sub" claim that
// names the caller. Tokens are minted by `parley-gateway token` with the
// configured auth.jwt_secret:
//
//	v, err := auth.NewJWTVerifier([]byte(secret))
//	token, err := v.Generate("alice", 30*24*time.Hour)
//
// # HTTP Middleware
//
// Middleware rejects requests without a valid bearer token with 401 and a
// JSON {"detail": ...} body, and otherwise attaches the Principal to the
// request context:
//
//	mux.Handle("/api/", auth.Middleware(v)(apiHandler))
//	p := auth.FromContext(r.Context())
//
// When no secret is configured the gateway does not install the middleware
// at all and every request is anonymous.
package auth
