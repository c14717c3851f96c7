// Package encryption implements the Encryption Adapter from spec §4.8:
// application-level encryption (ALE) of column values the core never
// has to understand beyond a column's ApplicationEncrypted flag and
// configured mode. The adapter is consulted by dbcontext's value-binding
// and row-reading paths; it never decides which fields are encrypted —
// that policy lives in the caller's mapping/configuration, per spec §1's
// "the core consumes an encryption provider interface."
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"

	"github.com/santedb-go/relorm/kernelerr"
)

// Mode mirrors config.EncryptionMode without importing the config
// package, keeping encryption usable from contexts that build their own
// configuration surface.
type Mode string

const (
	Off           Mode = "off"
	Random        Mode = "random"
	Deterministic Mode = "deterministic"
)

// magic is the 5-byte header spec §6 mandates prefixing every
// application-encrypted value, letting the read path distinguish
// encrypted values from plaintext left over from a mid-migration
// coexistence window.
var magic = []byte{0x53, 0x42, 0x00, 0x41, 0x45}

const ivLen = 16 // AES block size

// FieldKey identifies one table+field pair carrying an encryption mode.
type FieldKey struct {
	Table string
	Field string
}

// Adapter transforms values bound to, or read from, columns flagged
// ApplicationEncrypted. One Adapter serves one database: masterKey is
// the already-unwrapped per-database AES-256 key (see UnwrapMasterKey),
// saltSeed derives deterministic IVs.
type Adapter struct {
	masterKey []byte
	saltSeed  string
	fields    map[FieldKey]Mode
}

// NewAdapter constructs an Adapter from an unwrapped 32-byte AES-256
// master key. Use GenerateMasterKey + WrapMasterKey/UnwrapMasterKey to
// manage the key's at-rest X.509-wrapped form; the Adapter itself only
// ever holds the unwrapped key in memory.
func NewAdapter(masterKey []byte, saltSeed string, fields map[FieldKey]Mode) (*Adapter, error) {
	if len(masterKey) != 32 {
		return nil, kernelerr.InvalidState("encryption: master key must be 32 bytes (AES-256), got %d", len(masterKey))
	}
	if fields == nil {
		fields = map[FieldKey]Mode{}
	}
	return &Adapter{masterKey: masterKey, saltSeed: saltSeed, fields: fields}, nil
}

// GenerateMasterKey produces a fresh random AES-256 key, used once per
// database at provisioning time before it is wrapped for storage.
func GenerateMasterKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("encryption: generating master key: %w", err)
	}
	return key, nil
}

// WrapMasterKey encrypts a raw master key under cert's RSA public key,
// producing the form persisted alongside the connection configuration
// (spec §4.8: "wrapped by a configured X.509 certificate").
func WrapMasterKey(cert *x509.Certificate, rawKey []byte) ([]byte, error) {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, kernelerr.InvalidState("encryption: certificate public key is not RSA")
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, rawKey, nil)
	if err != nil {
		return nil, fmt.Errorf("encryption: wrapping master key: %w", err)
	}
	return wrapped, nil
}

// UnwrapMasterKey decrypts a wrapped master key using the certificate's
// private key counterpart, reversing WrapMasterKey at connection-open
// time.
func UnwrapMasterKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	raw, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("encryption: unwrapping master key: %w", err)
	}
	return raw, nil
}

// ModeFor reports the configured mode for one table+field, defaulting
// to Off when unconfigured.
func (a *Adapter) ModeFor(table, field string) Mode {
	if m, ok := a.fields[FieldKey{Table: table, Field: field}]; ok {
		return m
	}
	return Off
}

// EncryptValue implements the write path: serialise v to its string
// form, encrypt under AES-256 with a mode-appropriate IV, and return the
// on-the-wire representation — hex for string-typed columns, raw bytes
// for binary columns.
func (a *Adapter) EncryptValue(table, field string, v any, binary bool) (any, error) {
	mode := a.ModeFor(table, field)
	if mode == Off {
		return v, nil
	}
	plain := []byte(fmt.Sprintf("%v", v))

	var iv [ivLen]byte
	switch mode {
	case Deterministic:
		iv = a.deterministicIV(table, field, plain)
	case Random:
		if _, err := rand.Read(iv[:]); err != nil {
			return nil, fmt.Errorf("encryption: generating IV: %w", err)
		}
	default:
		return nil, kernelerr.InvalidState("encryption: unknown mode %q for %s.%s", mode, table, field)
	}

	block, err := aes.NewCipher(a.masterKey)
	if err != nil {
		return nil, fmt.Errorf("encryption: constructing cipher: %w", err)
	}
	stream := cipher.NewCTR(block, iv[:])
	ciphertext := make([]byte, len(plain))
	stream.XORKeyStream(ciphertext, plain)

	out := make([]byte, 0, len(magic)+ivLen+len(ciphertext))
	out = append(out, magic...)
	out = append(out, iv[:]...)
	out = append(out, ciphertext...)

	if binary {
		return out, nil
	}
	return hex.EncodeToString(out), nil
}

// DecryptValue implements the read path: detect the magic header and
// decrypt if present; otherwise pass the value through unchanged,
// supporting mid-migration coexistence of plaintext and encrypted rows.
func (a *Adapter) DecryptValue(v any) (any, error) {
	raw, isBinary, err := toBytes(v)
	if err != nil || !hasMagic(raw) {
		return v, nil
	}

	iv := raw[len(magic) : len(magic)+ivLen]
	ciphertext := raw[len(magic)+ivLen:]

	block, err := aes.NewCipher(a.masterKey)
	if err != nil {
		return nil, fmt.Errorf("encryption: constructing cipher: %w", err)
	}
	stream := cipher.NewCTR(block, iv)
	plain := make([]byte, len(ciphertext))
	stream.XORKeyStream(plain, ciphertext)

	if isBinary {
		return plain, nil
	}
	return string(plain), nil
}

// EncryptForQuery implements the query-binding contract: deterministic-
// mode equality encrypts the operand identically to the write path, so
// the comparison still matches stored rows; any other mode fails, since
// random-mode ciphertext is never reproducible across encryptions of the
// same plaintext.
func (a *Adapter) EncryptForQuery(table, field string, v any) (any, error) {
	mode := a.ModeFor(table, field)
	if mode != Deterministic {
		return nil, kernelerr.UnsupportedEncryptedPredicate
	}
	return a.EncryptValue(table, field, v, false)
}

func (a *Adapter) deterministicIV(table, field string, plain []byte) [ivLen]byte {
	mac := hmac.New(sha256.New, []byte(a.saltSeed))
	mac.Write([]byte(table))
	mac.Write([]byte{0})
	mac.Write([]byte(field))
	mac.Write([]byte{0})
	mac.Write(plain)
	sum := mac.Sum(nil)
	var iv [ivLen]byte
	copy(iv[:], sum[:ivLen])
	return iv
}

func hasMagic(b []byte) bool {
	if len(b) < len(magic)+ivLen {
		return false
	}
	for i, m := range magic {
		if b[i] != m {
			return false
		}
	}
	return true
}

func toBytes(v any) ([]byte, bool, error) {
	switch t := v.(type) {
	case []byte:
		return t, true, nil
	case string:
		if b, err := hex.DecodeString(t); err == nil {
			return b, false, nil
		}
		return nil, false, fmt.Errorf("encryption: value is not hex-encoded")
	default:
		return nil, false, fmt.Errorf("encryption: unsupported value type %T", v)
	}
}
