package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Common validation errors.
var (
	ErrMissingIssuer = errors.New("identity provider issuer is required")
	ErrInvalidToken  = errors.New("invalid token")
)

// JWTValidatorConfig configures the JWKS-backed token validator.
type JWTValidatorConfig struct {
	// Issuer is the OIDC issuer URL. Tokens must carry it in `iss`.
	Issuer string

	// Audience is the expected `aud` claim. Empty skips the check.
	Audience string

	// JWKSURL overrides the issuer-derived JWKS endpoint.
	JWKSURL string
}

// JWTValidator verifies bearer tokens against the identity provider's
// JWKS. It implements TokenValidator.
type JWTValidator struct {
	issuer   string
	audience string
	jwksURL  string
	keys     *jwk.Cache
}

// NewJWTValidator creates a validator whose JWKS auto-refreshes for the
// lifetime of ctx.
func NewJWTValidator(ctx context.Context, config JWTValidatorConfig) (*JWTValidator, error) {
	if config.Issuer == "" {
		return nil, ErrMissingIssuer
	}

	jwksURL := config.JWKSURL
	if jwksURL == "" {
		jwksURL = strings.TrimSuffix(config.Issuer, "/") + "/.well-known/jwks.json"
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}

	return &JWTValidator{
		issuer:   config.Issuer,
		audience: config.Audience,
		jwksURL:  jwksURL,
		keys:     cache,
	}, nil
}

// ValidateToken parses and verifies the token, returning its claims.
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return v.signingKey(ctx, token)
	}, options...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v *JWTValidator) signingKey(ctx context.Context, token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("token header missing kid")
	}

	keySet, err := v.keys.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	key, found := keySet.LookupKeyID(kid)
	if !found {
		return nil, fmt.Errorf("key ID %s not found in JWKS", kid)
	}

	var raw any
	if err := key.Raw(&raw); err != nil {
		return nil, fmt.Errorf("failed to get raw key: %w", err)
	}
	return raw, nil
}
