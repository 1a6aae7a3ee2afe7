package tokenizer

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/handshake/core"
)

const AudienceUpload = "storage:upload"

// JWTTokenizer implements ports.Tokenizer using ES256 JWTs
type JWTTokenizer struct {
	signKey *ecdsa.PrivateKey
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(signKey *ecdsa.PrivateKey) *JWTTokenizer {
	return &JWTTokenizer{signKey: signKey}
}

// GrantToToken converts an UploadGrant to a JWT token
func (j *JWTTokenizer) GrantToToken(grant *core.UploadGrant) (string, error) {
	claims := UploadClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        grant.ID,
			ExpiresAt: jwt.NewNumericDate(grant.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(grant.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceUpload},
		},
		FileName: grant.FileName,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signedToken, nil
}

// TokenToGrant parses and validates an upload token
func (j *JWTTokenizer) TokenToGrant(tokenStr string) (*core.UploadGrant, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &UploadClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(AudienceUpload), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*UploadClaims)
	if !ok || !token.Valid {
		return nil, core.ErrUnauthenticated
	}

	grant := &core.UploadGrant{
		ID:        claims.ID,
		FileName:  claims.FileName,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		grant.IssuedAt = claims.IssuedAt.Time
	}

	return grant, nil
}
