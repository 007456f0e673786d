// Package id generates sortable identifiers for requests, WebSocket
// connections and isolates. IDs are ULIDs behind a short type prefix so
// they read well in logs (req_01J..., conn_01J...).
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID identifies one HTTP request.
type RequestID string

// ConnID identifies one WebSocket connection.
type ConnID string

// IsolateID identifies one script isolate.
type IsolateID string

const (
	RequestPrefix = "req"
	ConnPrefix    = "conn"
	IsolatePrefix = "iso"
)

func (id RequestID) String() string { return string(id) }
func (id ConnID) String() string    { return string(id) }
func (id IsolateID) String() string { return string(id) }

// Generator produces ULIDs that increase monotonically within the same
// millisecond.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator(rand.Reader)
	})
	return defaultGenerator
}

// NewGenerator creates a generator over entropy. Tests pass a deterministic
// reader.
func NewGenerator(entropy io.Reader) *Generator {
	return &Generator{entropy: ulid.Monotonic(entropy, 0)}
}

// Generate returns a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// WithPrefix returns prefix_ULID.
func (g *Generator) WithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate())
}

func NewRequestID() RequestID { return RequestID(Default().WithPrefix(RequestPrefix)) }
func NewConnID() ConnID       { return ConnID(Default().WithPrefix(ConnPrefix)) }
func NewIsolateID() IsolateID { return IsolateID(Default().WithPrefix(IsolatePrefix)) }

// Split separates a prefixed id into its prefix and ULID.
func Split(s string) (prefix string, u ulid.ULID, err error) {
	prefix, raw, ok := strings.Cut(s, "_")
	if !ok {
		raw, prefix = s, ""
	}
	u, err = ulid.Parse(raw)
	return prefix, u, err
}

// IsValid reports whether s is a ULID, prefixed or not.
func IsValid(s string) bool {
	_, _, err := Split(s)
	return err == nil
}

// Timestamp returns the creation time encoded in s.
func Timestamp(s string) (time.Time, error) {
	_, u, err := Split(s)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()), nil
}
