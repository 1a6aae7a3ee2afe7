package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidSignature = errors.New("invalid signature")

// RecoverPersonalSigner returns the address that produced an EIP-191
// personal_sign signature over message.
func RecoverPersonalSigner(message []byte, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes: %w", ErrInvalidSignature)
	}

	// Wallets emit v as 27/28
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id: %w", ErrInvalidSignature)
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", ErrInvalidSignature)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

// VerifyPersonalSignature checks that expected signed message
func VerifyPersonalSignature(message []byte, signature string, expected common.Address) error {
	signer, err := RecoverPersonalSigner(message, signature)
	if err != nil {
		return err
	}
	if signer != expected {
		return fmt.Errorf("signer %s does not match %s: %w", signer.Hex(), expected.Hex(), ErrInvalidSignature)
	}
	return nil
}

// SignPersonal produces an EIP-191 personal_sign signature the way wallets do
func SignPersonal(message []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return hexutil.Encode(sig), nil
}
