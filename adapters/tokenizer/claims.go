package tokenizer

import "github.com/golang-jwt/jwt/v5"

// UploadClaims combines standard claims with the granted file name
type UploadClaims struct {
	jwt.RegisteredClaims
	FileName string `json:"fn"`
}
