// Package dump packs local users into an encrypted, compressed artifact that
// can be handed to the remote operator, and unpacks such artifacts back into
// remote users.
//
// Artifact layout:
//
//	base64url(JSON{"public","modes"}) "/" envelope
//
// where envelope is the Encrypter output over gzip(JSON(users)). The
// encryption key is random16 ":" SignatureSuffix; only random16 is handed
// out, base64 encoded, as the shared key.
package dump

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/authconnector/internal/cryptox"
	"github.com/dmitrijs2005/authconnector/internal/models"
	"github.com/dmitrijs2005/authconnector/internal/tenant"
)

// RandomKeySize is the length of the random half of the encryption key.
const RandomKeySize = 16

// DefaultAction is assigned to imported records that carry no action.
const DefaultAction = models.ActionCreate

var (
	ErrDumpNotFound  = errors.New("dump file not found")
	ErrMalformedDump = errors.New("malformed dump")
	ErrInvalidKey    = errors.New("invalid dump key")
	ErrDecryption    = errors.New("cannot decrypt dump")
	ErrDecompression = errors.New("cannot decompress dump")
	ErrMalformedJSON = errors.New("malformed dump contents")
)

// Header is the plaintext prefix of an artifact.
type Header struct {
	Public string       `json:"public"`
	Modes  models.Modes `json:"modes"`
}

// Dump is a decoded artifact.
type Dump struct {
	Header
	Users []models.RemoteUser
}

// FileName is the conventional artifact name for an export made at now.
func FileName(now time.Time) string {
	return "sync_export_" + now.Format("2006_01_02_150405") + ".gz"
}

// Encode packs locals for the tenant identified by creds. It returns the
// artifact and the shared key the operator needs to open it.
func Encode(locals []models.LocalUser, modes models.Modes, creds tenant.Credentials) ([]byte, string, error) {
	if err := creds.Validate(); err != nil {
		return nil, "", err
	}

	plain, err := json.Marshal(models.Payloads(locals))
	if err != nil {
		return nil, "", fmt.Errorf("encode users: %w", err)
	}

	var zipped bytes.Buffer
	zw := gzip.NewWriter(&zipped)
	if _, err := zw.Write(plain); err != nil {
		return nil, "", fmt.Errorf("compress users: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, "", fmt.Errorf("compress users: %w", err)
	}

	random, err := cryptox.RandomBytes(RandomKeySize)
	if err != nil {
		return nil, "", err
	}
	key := encryptionKey(random, creds)
	defer cryptox.Wipe(key)

	enc, err := cryptox.NewEncrypter(key)
	if err != nil {
		return nil, "", err
	}
	sealed, err := enc.Encrypt(zipped.Bytes())
	if err != nil {
		return nil, "", err
	}

	if modes == nil {
		modes = models.Modes{}
	}
	header, err := json.Marshal(Header{Public: creds.Public, Modes: modes})
	if err != nil {
		return nil, "", fmt.Errorf("encode header: %w", err)
	}

	var out bytes.Buffer
	out.Grow(len(header)*2 + 1 + len(sealed))
	out.WriteString(base64.RawURLEncoding.EncodeToString(header))
	out.WriteByte('/')
	out.Write(sealed)

	return out.Bytes(), base64.StdEncoding.EncodeToString(random), nil
}

// DecodeOption tweaks Decode.
type DecodeOption func(*decodeOptions)

type decodeOptions struct {
	defaultAction models.Action
}

// WithDefaultAction overrides the action given to records that carry none.
func WithDefaultAction(a models.Action) DecodeOption {
	return func(o *decodeOptions) { o.defaultAction = a }
}

// Decode opens an artifact with the shared key and the importer's own
// credentials. A record without id, email or creation time fails the whole
// dump; other malformed fields are left in RemoteUser.Problems for the
// syncer to report.
func Decode(artifact []byte, sharedKey string, creds tenant.Credentials, opts ...DecodeOption) (*Dump, error) {
	o := decodeOptions{defaultAction: DefaultAction}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.defaultAction.Valid() {
		return nil, fmt.Errorf("default action: %w: %q", models.ErrUnknownAction, o.defaultAction)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	header, sealed, err := splitArtifact(artifact)
	if err != nil {
		return nil, err
	}

	random, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sharedKey))
	if err != nil || len(random) != RandomKeySize {
		return nil, fmt.Errorf("%w: expected base64 of %d bytes", ErrInvalidKey, RandomKeySize)
	}
	key := encryptionKey(random, creds)
	defer cryptox.Wipe(key)

	enc, err := cryptox.NewEncrypter(key)
	if err != nil {
		return nil, err
	}
	zipped, err := enc.Decrypt(sealed)
	if err != nil {
		if header.Public != creds.Public {
			return nil, fmt.Errorf("%w: dump was made for tenant %q, not %q", ErrDecryption, header.Public, creds.Public)
		}
		return nil, fmt.Errorf("%w: the key does not match or the tenant credentials differ from the exporter's: %v", ErrDecryption, err)
	}

	plain, err := gunzip(zipped)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}

	var records []models.RemoteRecord
	if err := json.Unmarshal(plain, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	users := make([]models.RemoteUser, 0, len(records))
	for i, rec := range records {
		// Exported payloads never carry deletions.
		rec.DeletedAt = nil
		if rec.Action == "" {
			rec.Action = string(o.defaultAction)
		}
		u, err := models.RemoteUserFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		users = append(users, u)
	}

	return &Dump{Header: header, Users: users}, nil
}

// ReadHeader returns the plaintext header without decrypting anything.
func ReadHeader(artifact []byte) (Header, error) {
	h, _, err := splitArtifact(artifact)
	return h, err
}

func splitArtifact(artifact []byte) (Header, []byte, error) {
	var h Header
	idx := bytes.IndexByte(artifact, '/')
	if idx <= 0 {
		return h, nil, fmt.Errorf("%w: header separator is missing", ErrMalformedDump)
	}

	raw, err := decodeHeader(string(artifact[:idx]))
	if err != nil {
		return h, nil, fmt.Errorf("%w: header: %v", ErrMalformedDump, err)
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return h, nil, fmt.Errorf("%w: header: %v", ErrMalformedDump, err)
	}
	if h.Public == "" {
		return h, nil, fmt.Errorf("%w: header has no public key", ErrMalformedDump)
	}

	sealed := bytes.TrimSpace(artifact[idx+1:])
	if len(sealed) == 0 {
		return h, nil, fmt.Errorf("%w: payload is empty", ErrMalformedDump)
	}
	return h, sealed, nil
}

func decodeHeader(s string) ([]byte, error) {
	if raw, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return base64.URLEncoding.DecodeString(s)
}

func encryptionKey(random []byte, creds tenant.Credentials) []byte {
	key := make([]byte, 0, len(random)+1+tenant.SuffixLength)
	key = append(key, random...)
	key = append(key, ':')
	key = append(key, creds.SignatureSuffix()...)
	return key
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
