// Package persistence seals game states into authenticated, encrypted save blobs.
//
// Blob layout (big endian):
//
//	"CSIM" | format u16 | argon2 time u32 | argon2 memory KiB u32 | argon2 threads u8 |
//	salt [16] | nonce [24] | XChaCha20-Poly1305 ciphertext
//
// The whole header is authenticated as additional data. Every load failure is reported
// as the same StateCorruption error; the cause only reaches the debug log.
package persistence

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/Guivernoir/CISO-sim/pkg/canonicalize"
	"github.com/Guivernoir/CISO-sim/pkg/engine"
	"github.com/Guivernoir/CISO-sim/pkg/metrics"
	"github.com/Guivernoir/CISO-sim/pkg/observability"
	"github.com/Guivernoir/CISO-sim/pkg/simerr"
	"github.com/Guivernoir/CISO-sim/pkg/version"
)

//go:embed schema/envelope.schema.json
var envelopeSchema string

const envelopeSchemaURL = "https://cisosim.schemas.local/persistence/envelope.schema.json"

const (
	// FormatVersion is the binary layout version written into every blob.
	FormatVersion uint16 = 1

	magic      = "CSIM"
	saltSize   = 16
	keySize    = chacha20poly1305.KeySize
	headerSize = len(magic) + 2 + 4 + 4 + 1 + saltSize + chacha20poly1305.NonceSizeX
	hkdfInfo   = "ciso-sim/save/v1"
)

var errMalformed = errors.New("malformed blob")

// KDFParams is the Argon2id work factor.
type KDFParams struct {
	Time      uint32 `json:"time" yaml:"time"`
	MemoryKiB uint32 `json:"memory_kib" yaml:"memory_kib"`
	Threads   uint8  `json:"threads" yaml:"threads"`
}

// DefaultKDFParams follows the RFC 9106 second recommended option.
func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}
}

// Validate rejects work factors argon2 cannot run with.
func (p KDFParams) Validate() error {
	if p.Time < 1 {
		return fmt.Errorf("kdf time must be at least 1")
	}
	if p.Threads < 1 {
		return fmt.Errorf("kdf threads must be at least 1")
	}
	if p.MemoryKiB < 8*uint32(p.Threads) {
		return fmt.Errorf("kdf memory %d KiB is below 8 KiB per thread", p.MemoryKiB)
	}
	return nil
}

type envelope struct {
	SchemaVersion string          `json:"schema_version"`
	StateDigest   string          `json:"state_digest"`
	State         json.RawMessage `json:"state"`
}

// Manager saves and loads game states. It is safe for concurrent use.
type Manager struct {
	params    KDFParams
	bounds    metrics.Bounds
	schema    *jsonschema.Schema
	rand      io.Reader
	logger    *slog.Logger
	telemetry *observability.Provider
}

// Option configures a Manager.
type Option func(*Manager)

// WithKDFParams sets the work factor. Blobs written with other parameters are refused.
func WithKDFParams(p KDFParams) Option {
	return func(m *Manager) { m.params = p }
}

// WithBounds sets the metric bounds loaded states are checked against.
func WithBounds(b metrics.Bounds) Option {
	return func(m *Manager) { m.bounds = b }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithTelemetry attaches a telemetry provider.
func WithTelemetry(p *observability.Provider) Option {
	return func(m *Manager) { m.telemetry = p }
}

// WithRandom replaces the salt and nonce source.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) { m.rand = r }
}

// NewManager compiles the envelope schema and applies opts.
func NewManager(opts ...Option) (*Manager, error) {
	ctx := context.Background()
	m := &Manager{
		params: DefaultKDFParams(),
		bounds: metrics.DefaultBounds(),
		rand:   rand.Reader,
		logger: slog.Default().With("component", "persistence"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.params.Validate(); err != nil {
		return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "persistence.kdf", err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(envelopeSchemaURL, strings.NewReader(envelopeSchema)); err != nil {
		return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "persistence.schema", err)
	}
	schema, err := c.Compile(envelopeSchemaURL)
	if err != nil {
		return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "persistence.schema", err)
	}
	m.schema = schema

	if m.telemetry == nil {
		if m.telemetry, err = observability.New(ctx, nil); err != nil {
			return nil, simerr.Wrap(ctx, simerr.SystemFailure, "persistence.telemetry", err)
		}
	}
	return m, nil
}

// Params returns the configured work factor.
func (m *Manager) Params() KDFParams {
	return m.params
}

// Save seals s under secret. A fresh salt and nonce are drawn for every call.
// An empty secret is an InvalidAction and a state that fails validation is a
// ConfigurationError; randomness or encoding failures are SystemFailure.
func (m *Manager) Save(ctx context.Context, s engine.State, secret []byte) ([]byte, error) {
	ctx, span := m.telemetry.StartSpan(ctx, "persistence.save",
		attribute.String("cisosim.session", s.SessionID),
		attribute.Int("cisosim.turn", s.Turn),
	)
	defer span.End()

	blob, err := m.seal(ctx, s, secret)
	if err != nil {
		span.SetStatus(codes.Error, string(simerr.KindOf(err)))
		return nil, err
	}
	m.logger.DebugContext(ctx, "state sealed", "session", s.SessionID, "turn", s.Turn, "bytes", len(blob))
	return blob, nil
}

func (m *Manager) seal(ctx context.Context, s engine.State, secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, simerr.Wrap(ctx, simerr.InvalidAction, "persistence.save", fmt.Errorf("empty secret"))
	}
	if err := s.Validate(m.bounds); err != nil {
		return nil, simerr.Wrap(ctx, simerr.ConfigurationError, "persistence.save", err)
	}
	rawState, err := json.Marshal(s)
	if err != nil {
		return nil, simerr.Wrap(ctx, simerr.SystemFailure, "persistence.save", err)
	}
	digest, err := canonicalize.CanonicalHash(s)
	if err != nil {
		return nil, simerr.Wrap(ctx, simerr.SystemFailure, "persistence.save", err)
	}
	plaintext, err := json.Marshal(envelope{
		SchemaVersion: version.SaveSchema,
		StateDigest:   digest,
		State:         rawState,
	})
	if err != nil {
		return nil, simerr.Wrap(ctx, simerr.SystemFailure, "persistence.save", err)
	}
	defer clear(plaintext)
	defer clear(rawState)

	blob, err := m.encrypt(ctx, plaintext, secret)
	if err != nil {
		return nil, simerr.Wrap(ctx, simerr.SystemFailure, "persistence.save", err)
	}
	return blob, nil
}

// encrypt writes the header and seals plaintext behind it.
func (m *Manager) encrypt(ctx context.Context, plaintext, secret []byte) ([]byte, error) {
	header := make([]byte, headerSize, headerSize+len(plaintext)+chacha20poly1305.Overhead)
	off := copy(header, magic)
	binary.BigEndian.PutUint16(header[off:], FormatVersion)
	off += 2
	binary.BigEndian.PutUint32(header[off:], m.params.Time)
	off += 4
	binary.BigEndian.PutUint32(header[off:], m.params.MemoryKiB)
	off += 4
	header[off] = m.params.Threads
	off++
	if _, err := io.ReadFull(m.rand, header[off:]); err != nil {
		return nil, fmt.Errorf("random: %w", err)
	}
	salt := header[off : off+saltSize]
	nonce := header[off+saltSize:]

	key, err := m.deriveKey(ctx, secret, salt, m.params)
	if err != nil {
		return nil, err
	}
	defer clear(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	aad := bytes.Clone(header)
	return aead.Seal(header, nonce, plaintext, aad), nil
}

// Load opens blob with secret and returns the verified state. Any failure is an opaque
// StateCorruption.
func (m *Manager) Load(ctx context.Context, blob, secret []byte) (engine.State, error) {
	ctx, span := m.telemetry.StartSpan(ctx, "persistence.load", attribute.Int("cisosim.blob_bytes", len(blob)))
	defer span.End()

	s, err := m.open(ctx, blob, secret)
	if err != nil {
		span.SetStatus(codes.Error, string(simerr.StateCorruption))
		m.telemetry.LoadFailed(ctx)
		return engine.State{}, simerr.Wrap(ctx, simerr.StateCorruption, "persistence.load", err)
	}
	m.logger.DebugContext(ctx, "state opened", "session", s.SessionID, "turn", s.Turn)
	return s, nil
}

func (m *Manager) open(ctx context.Context, blob, secret []byte) (engine.State, error) {
	if len(secret) == 0 {
		return engine.State{}, fmt.Errorf("empty secret")
	}
	if len(blob) < headerSize+chacha20poly1305.Overhead {
		return engine.State{}, errMalformed
	}
	header := blob[:headerSize]
	if string(header[:len(magic)]) != magic {
		return engine.State{}, errMalformed
	}
	off := len(magic)
	if binary.BigEndian.Uint16(header[off:]) != FormatVersion {
		return engine.State{}, fmt.Errorf("unsupported format %d", binary.BigEndian.Uint16(header[off:]))
	}
	off += 2
	params := KDFParams{
		Time:      binary.BigEndian.Uint32(header[off:]),
		MemoryKiB: binary.BigEndian.Uint32(header[off+4:]),
		Threads:   header[off+8],
	}
	off += 9
	// The work factor is fixed per build; a blob claiming another one is not ours.
	if params != m.params {
		return engine.State{}, fmt.Errorf("kdf parameters %+v differ from %+v", params, m.params)
	}
	salt := header[off : off+saltSize]
	nonce := header[off+saltSize:]

	key, err := m.deriveKey(ctx, secret, salt, params)
	if err != nil {
		return engine.State{}, err
	}
	defer clear(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return engine.State{}, err
	}
	plaintext, err := aead.Open(nil, nonce, blob[headerSize:], header)
	if err != nil {
		return engine.State{}, err
	}
	defer clear(plaintext)
	return m.decodeEnvelope(plaintext)
}

func (m *Manager) decodeEnvelope(plaintext []byte) (engine.State, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(plaintext))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return engine.State{}, err
	}
	if err := m.schema.Validate(doc); err != nil {
		return engine.State{}, err
	}

	var env envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return engine.State{}, err
	}
	if err := version.ReadableSave(env.SchemaVersion); err != nil {
		return engine.State{}, err
	}

	var s engine.State
	dec = json.NewDecoder(bytes.NewReader(env.State))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return engine.State{}, err
	}
	digest, err := canonicalize.CanonicalHash(s)
	if err != nil {
		return engine.State{}, err
	}
	if digest != env.StateDigest {
		return engine.State{}, fmt.Errorf("state digest mismatch")
	}
	if err := s.Validate(m.bounds); err != nil {
		return engine.State{}, err
	}
	return s, nil
}

// deriveKey stretches secret with Argon2id and expands the result with HKDF-SHA256.
// The intermediate key is wiped before returning.
func (m *Manager) deriveKey(ctx context.Context, secret, salt []byte, p KDFParams) ([]byte, error) {
	start := time.Now()
	master := argon2.IDKey(secret, salt, p.Time, p.MemoryKiB, p.Threads, keySize)
	defer clear(master)
	m.telemetry.KDFDuration(ctx, time.Since(start))

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte(hkdfInfo)), key); err != nil {
		clear(key)
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}
