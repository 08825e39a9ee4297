package auth

import "github.com/golang-jwt/jwt/v5"

// OperatorClaims is the payload of a session token. RegisteredClaims.ID
// carries the session id and Subject the operator login.
type OperatorClaims struct {
	jwt.RegisteredClaims
	Login string `json:"login"`
}
