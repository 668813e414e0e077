package service

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"gamelend/internal/models"
	"gamelend/internal/observability"

	"github.com/oklog/ulid/v2"
)

// Clock supplies the current time.
type Clock interface{ Now() time.Time }

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGen issues public lending record references.
type IDGen interface{ NewULID(t time.Time) string }

// ULIDGen issues monotonic ULIDs. Safe for concurrent use.
type ULIDGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewULIDGen returns a generator seeded from crypto/rand.
func NewULIDGen() *ULIDGen {
	return &ULIDGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// NewULID returns a ULID timestamped at t.
func (g *ULIDGen) NewULID(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}

// AccountDirectory resolves community accounts.
type AccountDirectory interface {
	GetByID(ctx context.Context, id uint) (*models.Account, error)
}

func requireCaller(caller models.Identity) error {
	if !caller.Authenticated() {
		return models.NewUnauthenticatedError("authentication required")
	}
	return nil
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return models.ErrorCode(err)
}

// finishSpan closes a service span and counts the operation outcome.
func finishSpan(span *observability.Span, operation string, err error) {
	span.SetError(err)
	span.End()
	observability.RecordOutcome(operation, outcome(err))
}
