package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSVerifier validates RS256/ES256 tokens issued by an external identity
// provider. Keys are fetched from the provider's JWKS endpoint and refreshed
// in the background.
type JWKSVerifier struct {
	jwks   keyfunc.Keyfunc
	issuer string
	leeway time.Duration
}

// JWKSOptions configures NewJWKSVerifier.
type JWKSOptions struct {
	URL             string
	Issuer          string
	RefreshInterval time.Duration
	ClientTimeout   time.Duration
	Leeway          time.Duration
}

// NewJWKSVerifier builds a verifier backed by a refreshing JWKS storage.
// Startup does not fail if the provider is still unreachable.
func NewJWKSVerifier(ctx context.Context, log *slog.Logger, opts JWKSOptions) (*JWKSVerifier, error) {
	timeout := opts.ClientTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	storage, err := jwkset.NewStorageFromHTTP(opts.URL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: timeout},
		Ctx:                       ctx,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           opts.RefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			log.Error("jwks refresh failed",
				slog.String("error", err.Error()),
				slog.String("url", opts.URL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create jwks storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{
		Ctx:     ctx,
		Storage: storage,
	})
	if err != nil {
		return nil, fmt.Errorf("create keyfunc: %w", err)
	}

	return NewJWKSVerifierWithKeyfunc(k, opts.Issuer, opts.Leeway), nil
}

// NewJWKSVerifierWithKeyfunc wraps an existing keyfunc, e.g. one built from
// a static JWK set.
func NewJWKSVerifierWithKeyfunc(k keyfunc.Keyfunc, issuer string, leeway time.Duration) *JWKSVerifier {
	return &JWKSVerifier{jwks: k, issuer: issuer, leeway: leeway}
}

type providerClaims struct {
	jwt.RegisteredClaims
	rolesClaim
}

// ValidateToken verifies the token signature against the provider keys.
func (v *JWKSVerifier) ValidateToken(ctx context.Context, tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &providerClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.KeyfuncCtx(ctx), opts...); err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	return identityFrom(claims.Subject, claims.rolesClaim)
}
