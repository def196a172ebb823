package swap

import (
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// TokenDomainTag is prepended to the message bytes before signing so a
// message token can never be replayed as a signature over any other payload
// the fee payer key produces.
const TokenDomainTag = "gasless:swap-build:v1"

// SignMessageToken signs the compiled message bytes under the service's
// domain tag and returns the base64-encoded signature. The token lets a
// caller prove, offline, that this exact message came from this service.
func SignMessageToken(key solana.PrivateKey, messageBytes []byte) (string, error) {
	payload := make([]byte, 0, len(TokenDomainTag)+len(messageBytes))
	payload = append(payload, TokenDomainTag...)
	payload = append(payload, messageBytes...)

	sig, err := key.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("failed to sign message token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig[:]), nil
}

// VerifyMessageToken checks a message token against the message bytes it
// claims to attest and the signer's public key.
func VerifyMessageToken(token string, messageBytes []byte, signer solana.PublicKey) (bool, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return false, fmt.Errorf("message token is not valid base64: %w", err)
	}
	if len(raw) != 64 {
		return false, fmt.Errorf("message token has length %d, want 64", len(raw))
	}
	var sig solana.Signature
	copy(sig[:], raw)

	payload := make([]byte, 0, len(TokenDomainTag)+len(messageBytes))
	payload = append(payload, TokenDomainTag...)
	payload = append(payload, messageBytes...)

	return sig.Verify(signer, payload), nil
}
