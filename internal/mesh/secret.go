package mesh

import "crypto/sha256"

// DeriveChannelSecret derives the shared secret for a named channel: the
// first SecretSize bytes of SHA-256 over the exact (untrimmed, case
// preserved) channel name. Every node that derives the secret from the same
// name can decrypt the channel.
func DeriveChannelSecret(name string) [SecretSize]byte {
	sum := sha256.Sum256([]byte(name))
	var secret [SecretSize]byte
	copy(secret[:], sum[:SecretSize])
	return secret
}
