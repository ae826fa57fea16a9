// Package tenant holds the credentials that identify this host application
// to the remote authentication service.
package tenant

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// SuffixLength is how many hex characters of the signature take part in
// dump key derivation.
const SuffixLength = 15

var ErrMissingCredentials = errors.New("tenant public and secret keys are required")

// Credentials is the public/secret pair issued to the tenant.
type Credentials struct {
	Public string
	Secret string
}

func (c Credentials) Validate() error {
	if c.Public == "" || c.Secret == "" {
		return ErrMissingCredentials
	}
	return nil
}

// Signature is hex(SHA256(public + secret)), sent as X-Tenant-Sign.
func (c Credentials) Signature() string {
	sum := sha256.Sum256([]byte(c.Public + c.Secret))
	return hex.EncodeToString(sum[:])
}

// SignatureSuffix is the leading part of Signature mixed into dump keys.
func (c Credentials) SignatureSuffix() string {
	return c.Signature()[:SuffixLength]
}
