package server

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// Identity is the server's asymmetric key pair, generated once at
// process start. Only the public half ever leaves the process: it is
// included in the welcome frame at each registration so clients can
// encrypt handshake material to the server. The relay itself performs
// no encryption or decryption.
type Identity struct {
	PublicKeyPEM string

	private *rsa.PrivateKey
}

// NewIdentity generates a fresh RSA-2048 key pair and encodes the
// public key as SPKI PEM, the format clients expect.
func NewIdentity() (*Identity, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate server key pair: %w", err)
	}

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode server public key: %w", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: der,
	})

	return &Identity{
		PublicKeyPEM: string(pemBytes),
		private:      key,
	}, nil
}
