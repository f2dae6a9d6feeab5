package oauth

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/MicahParks/jwkset"
	"github.com/natefinch/atomic"
	"github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/fedhost/internal/utils"
)

// Keys is the id_token signing key pair. The key id is derived from the public key, so it stays the same for as
// long as the persisted key does.
type Keys struct {
	private *rsa.PrivateKey
	kid     string
	jwks    json.RawMessage
}

// PrivateKeyPath returns where the PEM encoded private key that belongs to the set at jwksPath is stored.
func PrivateKeyPath(jwksPath string) string {
	return strings.TrimSuffix(jwksPath, filepath.Ext(jwksPath)) + ".pem"
}

// LoadOrCreateKeys reads the private key stored next to jwksPath, generating and persisting a new one of the given
// size if there is none. The public set is rewritten on every start.
func LoadOrCreateKeys(jwksPath string, bits int) (*Keys, error) {
	keyPath := PrivateKeyPath(jwksPath)

	var priv *rsa.PrivateKey
	raw, err := os.ReadFile(keyPath)
	switch {
	case err == nil:
		if priv, err = utils.ParsePrivateKeyPem(string(raw)); err != nil {
			return nil, fmt.Errorf("parsing signing key %s: %w", keyPath, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Str("path", keyPath).Msg("generating id token signing key")
		_, privPem, err := utils.GenerateKeysPem(bits)
		if err != nil {
			return nil, err
		}
		if err = os.MkdirAll(filepath.Dir(keyPath), 0o750); err != nil {
			return nil, err
		}
		if err = atomic.WriteFile(keyPath, strings.NewReader(privPem)); err != nil {
			return nil, fmt.Errorf("writing signing key: %w", err)
		}
		if err = os.Chmod(keyPath, 0o600); err != nil {
			return nil, err
		}
		if priv, err = utils.ParsePrivateKeyPem(privPem); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	keys, err := NewKeys(priv)
	if err != nil {
		return nil, err
	}

	if err = atomic.WriteFile(jwksPath, bytes.NewReader(keys.jwks)); err != nil {
		return nil, fmt.Errorf("writing %s: %w", jwksPath, err)
	}
	return keys, nil
}

// NewKeys wraps an existing key pair.
func NewKeys(priv *rsa.PrivateKey) (*Keys, error) {
	kid, err := keyID(&priv.PublicKey)
	if err != nil {
		return nil, err
	}

	jwk, err := jwkset.NewJWKFromKey(&priv.PublicKey, jwkset.JWKOptions{
		Metadata: jwkset.JWKMetadataOptions{
			ALG: jwkset.AlgRS256,
			KID: kid,
			USE: jwkset.UseSig,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("building jwk: %w", err)
	}

	set := jwkset.NewMemoryStorage()
	ctx := context.Background()
	if err = set.KeyWrite(ctx, jwk); err != nil {
		return nil, err
	}
	raw, err := set.JSONPublic(ctx)
	if err != nil {
		return nil, err
	}

	return &Keys{private: priv, kid: kid, jwks: raw}, nil
}

func (k *Keys) KID() string {
	return k.kid
}

// JWKS returns the public key set as JSON.
func (k *Keys) JWKS() json.RawMessage {
	return k.jwks
}

func (k *Keys) Public() *rsa.PublicKey {
	return &k.private.PublicKey
}

func keyID(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(der)
	return base64.RawURLEncoding.EncodeToString(sum[:16]), nil
}
