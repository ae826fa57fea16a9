package dump

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/authconnector/internal/cryptox"
	"github.com/dmitrijs2005/authconnector/internal/models"
	"github.com/dmitrijs2005/authconnector/internal/storage"
	"github.com/dmitrijs2005/authconnector/internal/tenant"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var creds = tenant.Credentials{Public: "pub", Secret: "sec"}

func ptr[T any](v T) *T { return &v }

func sampleLocals(n int) []models.LocalUser {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]models.LocalUser, n)
	for i := range out {
		out[i] = models.LocalUser{
			ID:        int64(i + 1),
			Name:      ptr(fmt.Sprintf("User %d", i+1)),
			Email:     fmt.Sprintf("user%d@example.com", i+1),
			Country:   ptr("DE"),
			Password:  ptr("$2a$10$abcdefghijklmnopqrstuv"),
			CreatedAt: created,
		}
	}
	return out
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	locals := sampleLocals(3)
	modes := models.Modes{models.ModePasswords}

	artifact, key, err := Encode(locals, modes, creds)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, RandomKeySize)

	d, err := Decode(artifact, key, creds)
	require.NoError(t, err)

	assert.Equal(t, "pub", d.Public)
	assert.Equal(t, modes, d.Modes)
	require.Len(t, d.Users, 3)

	want := make([]models.RemoteUser, len(locals))
	for i, l := range locals {
		want[i] = models.RemoteUser{
			RemoteID:  l.ID,
			Name:      l.Name,
			Email:     l.Email,
			Country:   l.Country,
			Password:  l.Password,
			CreatedAt: l.CreatedAt,
			Action:    models.ActionCreate,
		}
	}
	if diff := cmp.Diff(want, d.Users); diff != "" {
		t.Errorf("users mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_MalformedFieldsDoNotLoseTheDump(t *testing.T) {
	locals := sampleLocals(3)
	locals[1].Country = ptr("")
	locals[2].Country = ptr("DEU")

	artifact, key, err := Encode(locals, nil, creds)
	require.NoError(t, err)

	d, err := Decode(artifact, key, creds)
	require.NoError(t, err)
	require.Len(t, d.Users, 3)

	assert.Nil(t, d.Users[0].Problems)
	assert.Nil(t, d.Users[1].Country)
	assert.Nil(t, d.Users[1].Problems)
	assert.Contains(t, d.Users[2].Problems, "country")
}

func TestEncode_HeaderIsReadable(t *testing.T) {
	artifact, _, err := Encode(sampleLocals(1), nil, creds)
	require.NoError(t, err)

	idx := bytes.IndexByte(artifact, '/')
	require.Positive(t, idx)

	raw, err := base64.RawURLEncoding.DecodeString(string(artifact[:idx]))
	require.NoError(t, err)
	assert.JSONEq(t, `{"public":"pub","modes":[]}`, string(raw))

	h, err := ReadHeader(artifact)
	require.NoError(t, err)
	assert.Equal(t, "pub", h.Public)
}

func TestEncode_FreshKeyEachTime(t *testing.T) {
	_, k1, err := Encode(sampleLocals(1), nil, creds)
	require.NoError(t, err)
	_, k2, err := Encode(sampleLocals(1), nil, creds)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k2)
}

func TestDecode_WrongKey(t *testing.T) {
	artifact, _, err := Encode(sampleLocals(2), nil, creds)
	require.NoError(t, err)

	other := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, RandomKeySize))
	_, err = Decode(artifact, other, creds)
	require.ErrorIs(t, err, ErrDecryption)
	assert.Contains(t, err.Error(), "key does not match")
}

func TestDecode_OtherTenant(t *testing.T) {
	artifact, key, err := Encode(sampleLocals(2), nil, creds)
	require.NoError(t, err)

	_, err = Decode(artifact, key, tenant.Credentials{Public: "other", Secret: "sec"})
	require.ErrorIs(t, err, ErrDecryption)
	assert.Contains(t, err.Error(), `made for tenant "pub"`)

	// Same public key, different secret.
	_, err = Decode(artifact, key, tenant.Credentials{Public: "pub", Secret: "rotated"})
	require.ErrorIs(t, err, ErrDecryption)
}

func TestDecode_InvalidInputs(t *testing.T) {
	artifact, key, err := Encode(sampleLocals(1), nil, creds)
	require.NoError(t, err)

	tests := []struct {
		name     string
		artifact []byte
		key      string
		want     error
	}{
		{name: "no separator", artifact: []byte("garbage"), key: key, want: ErrMalformedDump},
		{name: "bad header", artifact: []byte("!!!/payload"), key: key, want: ErrMalformedDump},
		{name: "empty payload", artifact: artifact[:bytes.IndexByte(artifact, '/')+1], key: key, want: ErrMalformedDump},
		{name: "key not base64", artifact: artifact, key: "%%%", want: ErrInvalidKey},
		{name: "key too short", artifact: artifact, key: base64.StdEncoding.EncodeToString([]byte("short")), want: ErrInvalidKey},
		{name: "corrupted payload", artifact: append(bytes.Clone(artifact[:bytes.IndexByte(artifact, '/')+1]), "xyz"...), key: key, want: ErrDecryption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.artifact, tt.key, creds)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

// seal builds an artifact around an arbitrary plaintext so that failures
// past the decryption step can be exercised.
func seal(t *testing.T, plain []byte, compress bool) ([]byte, string) {
	t.Helper()

	body := plain
	if compress {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, err := zw.Write(plain)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		body = buf.Bytes()
	}

	random := bytes.Repeat([]byte{9}, RandomKeySize)
	enc, err := cryptox.NewEncrypter(encryptionKey(random, creds))
	require.NoError(t, err)
	sealed, err := enc.Encrypt(body)
	require.NoError(t, err)

	header, err := json.Marshal(Header{Public: creds.Public, Modes: models.Modes{}})
	require.NoError(t, err)

	artifact := base64.RawURLEncoding.EncodeToString(header) + "/" + string(sealed)
	return []byte(artifact), base64.StdEncoding.EncodeToString(random)
}

func TestDecode_PayloadStages(t *testing.T) {
	t.Run("not gzip", func(t *testing.T) {
		artifact, key := seal(t, []byte(`[]`), false)
		_, err := Decode(artifact, key, creds)
		require.ErrorIs(t, err, ErrDecompression)
	})

	t.Run("not json", func(t *testing.T) {
		artifact, key := seal(t, []byte(`{{`), true)
		_, err := Decode(artifact, key, creds)
		require.ErrorIs(t, err, ErrMalformedJSON)
	})

	t.Run("invalid record", func(t *testing.T) {
		artifact, key := seal(t, []byte(`[{"id":1,"email":"","created_at":"2024-01-01 00:00:00"}]`), true)
		_, err := Decode(artifact, key, creds)
		require.ErrorIs(t, err, models.ErrInvalidRecord)
	})

	t.Run("unknown action", func(t *testing.T) {
		artifact, key := seal(t, []byte(`[{"id":1,"email":"a@b.c","created_at":"2024-01-01 00:00:00","action":"merge"}]`), true)
		_, err := Decode(artifact, key, creds)
		require.ErrorIs(t, err, models.ErrUnknownAction)
	})

	t.Run("explicit and default actions", func(t *testing.T) {
		artifact, key := seal(t, []byte(`[
			{"id":1,"email":"a@b.c","created_at":"2024-01-01 00:00:00","action":"delete","deleted_at":"2024-01-02 00:00:00"},
			{"id":2,"email":"b@b.c","created_at":"2024-01-01 00:00:00"}
		]`), true)
		d, err := Decode(artifact, key, creds, WithDefaultAction(models.ActionUpdate))
		require.NoError(t, err)
		require.Len(t, d.Users, 2)
		assert.Equal(t, models.ActionDelete, d.Users[0].Action)
		assert.Nil(t, d.Users[0].DeletedAt)
		assert.Equal(t, models.ActionUpdate, d.Users[1].Action)
	})

	t.Run("invalid default action", func(t *testing.T) {
		artifact, key := seal(t, []byte(`[]`), true)
		_, err := Decode(artifact, key, creds, WithDefaultAction("merge"))
		require.ErrorIs(t, err, models.ErrUnknownAction)
	})
}

func TestFileName(t *testing.T) {
	got := FileName(time.Date(2024, 7, 9, 8, 5, 3, 0, time.UTC))
	assert.Equal(t, "sync_export_2024_07_09_080503.gz", got)
}

type linkingStore struct {
	storage.Store
	link    string
	linkErr error
	ttl     time.Duration
}

func (s *linkingStore) Link(_ context.Context, location string, ttl time.Duration) (string, error) {
	s.ttl = ttl
	return s.link + "?" + location, s.linkErr
}

func TestExporterImporter_FileStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "exports")
	store := storage.NewFileStore(dir)

	exp, err := NewExporter(store, creds, nil).Export(ctx, "", sampleLocals(4), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, exp.Users)
	assert.Positive(t, exp.Bytes)
	assert.Empty(t, exp.URL)
	assert.True(t, strings.HasPrefix(filepath.Base(exp.Location), "sync_export_"))

	imp := NewImporter(store, creds, nil)

	d, err := imp.Import(ctx, exp.Location, exp.Key)
	require.NoError(t, err)
	assert.Len(t, d.Users, 4)

	d, err = imp.Import(ctx, filepath.Base(exp.Location), exp.Key)
	require.NoError(t, err)
	assert.Len(t, d.Users, 4)

	_, err = imp.Import(ctx, "missing.gz", exp.Key)
	require.ErrorIs(t, err, ErrDumpNotFound)
}

func TestExporter_Link(t *testing.T) {
	ctx := context.Background()
	store := &linkingStore{Store: storage.NewFileStore(t.TempDir()), link: "https://dl"}

	exp, err := NewExporter(store, creds, nil).WithLinkTTL(time.Hour).Export(ctx, "a.gz", sampleLocals(1), nil)
	require.NoError(t, err)
	assert.Equal(t, "https://dl?"+exp.Location, exp.URL)
	assert.Equal(t, time.Hour, store.ttl)

	store.linkErr = fmt.Errorf("presign failed")
	exp, err = NewExporter(store, creds, nil).Export(ctx, "b.gz", sampleLocals(1), nil)
	require.NoError(t, err)
	assert.Empty(t, exp.URL)
	assert.Equal(t, storage.DefaultLinkTTL, store.ttl)
}

func TestExporter_RequiresCredentials(t *testing.T) {
	_, err := NewExporter(storage.NewFileStore(t.TempDir()), tenant.Credentials{}, nil).
		Export(context.Background(), "x.gz", nil, nil)
	require.ErrorIs(t, err, tenant.ErrMissingCredentials)
}
