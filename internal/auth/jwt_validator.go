package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lestrrat-go/jwx/jwk"
)

// JWTTokenValidator validates Clerk session tokens against the instance JWKS.
type JWTTokenValidator struct {
	// mu guards keySet; RefreshKeys swaps it while validations read it.
	mu      sync.RWMutex
	keySet  jwk.Set
	jwksURL string
	devMode bool
}

// NewTokenValidator creates a new JWT token validator with the given JWKS URL.
// Clerk publishes the key set at https://<instance>.clerk.accounts.dev/.well-known/jwks.json.
func NewTokenValidator(jwksURL string) (TokenValidator, error) {
	if jwksURL == "" {
		// If no JWKS URL is provided, use development mode
		return &JWTTokenValidator{
			keySet:  nil,
			jwksURL: "",
			devMode: true,
		}, nil
	}

	// Fetch the JWKS from the URL
	keySet, err := jwk.Fetch(context.Background(), jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	return &JWTTokenValidator{
		keySet:  keySet,
		jwksURL: jwksURL,
		devMode: false,
	}, nil
}

// RefreshKeys refreshes the JWKS from the URL.
func (v *JWTTokenValidator) RefreshKeys() error {
	if v.jwksURL == "" {
		return ErrNoJWKS
	}

	keySet, err := jwk.Fetch(context.Background(), v.jwksURL)
	if err != nil {
		return fmt.Errorf("failed to refresh JWKS from %s: %w", v.jwksURL, err)
	}

	v.mu.Lock()
	v.keySet = keySet
	v.mu.Unlock()
	return nil
}

// keys returns the current key set snapshot.
func (v *JWTTokenValidator) keys() jwk.Set {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.keySet
}

// ValidateToken validates a session token and returns the user ID.
func (v *JWTTokenValidator) ValidateToken(tokenString string) (string, error) {
	// In development mode, extract user ID without validation
	if v.devMode {
		token, _, err := new(jwt.Parser).ParseUnverified(tokenString, &SessionClaims{})
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}

		if claims, ok := token.Claims.(*SessionClaims); ok {
			if claims.Sub == "" {
				return "", fmt.Errorf("%w: no subject (sub) found in token claims", ErrInvalidToken)
			}
			return claims.Sub, nil
		}

		return "", ErrInvalidToken
	}

	keySet := v.keys()
	if keySet == nil {
		return "", ErrNoJWKS
	}

	// First, parse the token header to get the key ID without validation
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, &SessionClaims{})
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse token header: %v", ErrInvalidToken, err)
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return "", fmt.Errorf("%w: token header missing kid", ErrInvalidToken)
	}

	key, found := keySet.LookupKeyID(kid)
	if !found {
		// Clerk rotates keys; refresh once before giving up
		if err := v.RefreshKeys(); err != nil {
			return "", fmt.Errorf("%w: key with ID %s not found and failed to refresh keys: %v", ErrInvalidToken, kid, err)
		}

		keySet = v.keys()
		key, found = keySet.LookupKeyID(kid)
		if !found {
			var availableKeys []string
			for i := 0; i < keySet.Len(); i++ {
				k, _ := keySet.Get(i)
				availableKeys = append(availableKeys, k.KeyID())
			}
			return "", fmt.Errorf("%w: key with ID %s not found, available keys: %v", ErrInvalidToken, kid, availableKeys)
		}
	}

	var rawKey interface{}
	if err := key.Raw(&rawKey); err != nil {
		return "", fmt.Errorf("%w: failed to get raw key: %v", ErrInvalidToken, err)
	}

	// Now validate the token with the found key
	validatedToken, err := jwt.ParseWithClaims(
		tokenString,
		&SessionClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return rawKey, nil
		},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := validatedToken.Claims.(*SessionClaims)
	if !ok || !validatedToken.Valid {
		return "", ErrInvalidToken
	}

	if !claims.VerifyExpiresAt(time.Now(), true) {
		return "", ErrExpiredToken
	}

	if claims.Sub == "" {
		return "", fmt.Errorf("%w: no subject (sub) found in token claims", ErrInvalidToken)
	}

	return claims.Sub, nil
}
