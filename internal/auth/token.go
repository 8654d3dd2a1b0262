package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/recipebook/recipebook/internal/apperror"
	"github.com/recipebook/recipebook/internal/model"
)

// Claim names carried in session tokens. Timestamps are unix seconds.
const (
	ClaimUserID    = "userId"
	ClaimUsername  = "username"
	ClaimIssuedAt  = "issuedAt"
	ClaimExpiresAt = "expiresAt"
)

// DefaultTokenTTL is the session lifetime.
const DefaultTokenTTL = 14 * 24 * time.Hour

var signingMethod = jwt.SigningMethodHS512

// TokenCodec signs and verifies HS512 session tokens.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenCodec creates a codec with the given secret. A non-positive ttl
// falls back to DefaultTokenTTL.
func NewTokenCodec(secret []byte, ttl time.Duration) *TokenCodec {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenCodec{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingMethod.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithJSONNumber(),
		),
	}
}

// WithClock replaces the codec's time source.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	c.now = now
	return c
}

// TTL returns the lifetime of issued tokens.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Sign issues a token for the user, valid from now for the codec's TTL.
func (c *TokenCodec) Sign(userID int64, username string) (string, *model.Identity, error) {
	issuedAt := c.now().UTC().Truncate(time.Second)
	identity := &model.Identity{
		UserID:    userID,
		Username:  username,
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(c.ttl),
	}

	token, err := c.sign(identity)
	if err != nil {
		return "", nil, err
	}
	return token, identity, nil
}

func (c *TokenCodec) sign(identity *model.Identity) (string, error) {
	token := jwt.NewWithClaims(signingMethod, jwt.MapClaims{
		ClaimUserID:    identity.UserID,
		ClaimUsername:  identity.Username,
		ClaimIssuedAt:  identity.IssuedAt.Unix(),
		ClaimExpiresAt: identity.ExpiresAt.Unix(),
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token and returns the identity it carries.
//
// Claims are inspected before the signature so that an expired token is
// reported as expired whether or not its signature is still valid.
func (c *TokenCodec) Verify(tokenString string) (*model.Identity, error) {
	unverified, _, err := c.parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindMalformedToken, "Token is malformed", err)
	}

	claims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperror.New(apperror.KindMalformedToken, "Token is malformed")
	}

	identity, err := identityFromClaims(claims)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindMalformedToken, "Token claims are missing or invalid", err)
	}

	if c.now().After(identity.ExpiresAt) {
		return nil, apperror.New(apperror.KindExpired, "Token has expired")
	}

	_, err = c.parser.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, apperror.Wrap(apperror.KindMalformedToken, "Token is malformed", err)
		default:
			return nil, apperror.Wrap(apperror.KindInvalidSignature, "Token signature is invalid", err)
		}
	}

	return identity, nil
}

func identityFromClaims(claims jwt.MapClaims) (*model.Identity, error) {
	userID, err := numericClaim(claims, ClaimUserID)
	if err != nil {
		return nil, err
	}

	username, ok := claims[ClaimUsername].(string)
	if !ok || username == "" {
		return nil, fmt.Errorf("claim %q missing", ClaimUsername)
	}

	issuedAt, err := numericClaim(claims, ClaimIssuedAt)
	if err != nil {
		return nil, err
	}

	expiresAt, err := numericClaim(claims, ClaimExpiresAt)
	if err != nil {
		return nil, err
	}

	return &model.Identity{
		UserID:    userID,
		Username:  username,
		IssuedAt:  time.Unix(issuedAt, 0).UTC(),
		ExpiresAt: time.Unix(expiresAt, 0).UTC(),
	}, nil
}

// numericClaim reads an integer claim. Numbers encoded as JSON strings are
// accepted as well.
func numericClaim(claims jwt.MapClaims, name string) (int64, error) {
	raw, ok := claims[name]
	if !ok || raw == nil {
		return 0, fmt.Errorf("claim %q missing", name)
	}

	switch v := raw.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("claim %q not an integer: %w", name, err)
		}
		return n, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("claim %q not an integer", name)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("claim %q not numeric: %w", name, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("claim %q has type %T", name, raw)
	}
}
