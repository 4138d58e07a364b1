package credentials

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of the backend token payload the client inspects.
type Claims struct {
	UserID    string
	ExpiresAt time.Time
}

// HasExpiry reports whether the token carried an expiry claim.
func (c Claims) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

// Expired reports whether the token expiry is at or before now.
func (c Claims) Expired(now time.Time) bool {
	return c.HasExpiry() && !now.Before(c.ExpiresAt)
}

// ErrMalformedToken is returned when a stored credential is not a JWT.
var ErrMalformedToken = errors.New("credential is not a valid token")

// Inspect decodes token claims without verifying the signature. The backend
// remains the authority; the client only uses the result to avoid sending a
// credential it already knows is expired.
func Inspect(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var out Claims
	if sub, ok := claims["user_id"].(string); ok {
		out.UserID = sub
	} else if sub, err := claims.GetSubject(); err == nil {
		out.UserID = sub
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	} else if raw, ok := claims["expires"].(float64); ok && raw > 0 {
		sec, frac := math.Modf(raw)
		out.ExpiresAt = time.Unix(int64(sec), int64(frac*float64(time.Second)))
	}
	return out, nil
}
