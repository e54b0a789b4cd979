package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamelobby/pkg/interfaces"
	"gamelobby/pkg/types"
	"github.com/golang-jwt/jwt/v5"
)

// TokenAuthenticator verifies HS256 bearer tokens issued by the identity service
type TokenAuthenticator struct {
	secret []byte
	issuer string
	now    func() time.Time
}

var _ interfaces.Authenticator = (*TokenAuthenticator)(nil)

// userClaims is the token body. The identity service stores numeric user ids,
// so id accepts both numbers and strings.
type userClaims struct {
	jwt.RegisteredClaims
	UserID    flexibleID `json:"id"`
	Username  string     `json:"username"`
	AccountID flexibleID `json:"accountId"`
}

// NewTokenAuthenticator creates an authenticator for secret. A non-empty
// issuer must match the token's iss claim.
func NewTokenAuthenticator(secret, issuer string) (*TokenAuthenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	return &TokenAuthenticator{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		now:    time.Now,
	}, nil
}

// Authenticate verifies credential and returns the identity it carries
func (a *TokenAuthenticator) Authenticate(ctx context.Context, credential string) (types.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return types.Identity{}, interfaces.ErrMissingCredential
	}
	if err := ctx.Err(); err != nil {
		return types.Identity{}, err
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		options = append(options, jwt.WithIssuer(a.issuer))
	}

	var claims userClaims
	_, err := jwt.ParseWithClaims(credential, &claims, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, options...)
	if err != nil {
		return types.Identity{}, fmt.Errorf("%w: %w", interfaces.ErrAuthenticationFailed, mapJWTError(err))
	}

	identity := types.Identity{
		ID:        string(claims.UserID),
		Username:  strings.TrimSpace(claims.Username),
		AccountID: string(claims.AccountID),
	}
	if err := identity.Validate(); err != nil {
		return types.Identity{}, fmt.Errorf("%w: %w", interfaces.ErrAuthenticationFailed, ErrClaimsInvalid)
	}
	return identity, nil
}

// Issue signs a token for identity valid for ttl. The identity service owns
// issuance in production; this exists for tooling and tests.
func (a *TokenAuthenticator) Issue(identity types.Identity, ttl time.Duration) (string, error) {
	now := a.now()
	claims := userClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:    flexibleID(identity.ID),
		Username:  identity.Username,
		AccountID: flexibleID(identity.AccountID),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// mapJWTError translates jwt library errors to auth errors
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}

// flexibleID decodes a JSON string or number into its string form
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}
