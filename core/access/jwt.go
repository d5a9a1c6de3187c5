package access

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenPair is the access/refresh token pair returned by the login and
// token endpoints.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// CreateTokenPair issues a signed access/refresh token pair for the
// given principal id. When TokenValidity is zero the access token does
// not expire.
func (a *Auth) CreateTokenPair(userID string) (TokenPair, error) {
	var expiredAt interface{}
	if a.TokenValidity > 0 {
		expiredAt = time.Now().Add(a.TokenValidity).Unix()
	}

	accessClaims := jwt.MapClaims{
		"user_id":    userID,
		"type":       "access",
		"expired_at": expiredAt,
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(a.Secret)
	if err != nil {
		return TokenPair{}, err
	}

	refreshClaims := jwt.MapClaims{
		"user_id":      userID,
		"access_token": accessToken,
		"type":         "refresh",
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(a.Secret)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// ValidateAccessToken verifies signature and claim shape of an access
// token and returns the principal id it was issued for.
func (a *Auth) ValidateAccessToken(tokenString string) (string, bool) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.Secret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}

	userID, hasUser := claims["user_id"].(string)
	tokenType, hasType := claims["type"].(string)
	expiredAt, hasExpiry := claims["expired_at"]
	if !hasUser || !hasType || !hasExpiry {
		return "", false
	}
	if tokenType != "access" {
		return "", false
	}
	if expiry, isNumber := expiredAt.(float64); isNumber && int64(expiry) <= time.Now().Unix() {
		return "", false
	}
	return userID, true
}
