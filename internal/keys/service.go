// Package keys implements the license key engine: validation, issuance and
// administration on top of the JSON key store. Every operation reloads the
// store, and every mutation runs inside a single store transaction.
package keys

import (
	"context"
	"log/slog"
	"time"

	"github.com/maxkornevpro/key/internal/keygen"
	"github.com/maxkornevpro/key/internal/model"
	"github.com/maxkornevpro/key/internal/store"
)

// Auditor receives a record of every successful mutation. Errors are logged
// and never fail the mutation itself.
type Auditor interface {
	Record(ctx context.Context, ev model.AuditEvent) error
}

// Service is the entry point used by every front end.
type Service struct {
	store   *store.Store
	auditor Auditor
	metrics *Metrics
	logger  *slog.Logger
	admins  map[int64]struct{}
	clock   func() time.Time
	newKey  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now. Tests use it to move across expiry.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithKeyGenerator replaces keygen.Generate.
func WithKeyGenerator(gen func() string) Option {
	return func(s *Service) { s.newKey = gen }
}

// WithAuditor records mutations to a.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

// WithMetrics records operation metrics to m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAdmins sets the user ids allowed to perform administrative operations.
func WithAdmins(ids ...int64) Option {
	return func(s *Service) {
		for _, id := range ids {
			s.admins[id] = struct{}{}
		}
	}
}

// New creates a Service over st.
func New(st *store.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Service{
		store:  st,
		logger: logger,
		admins: make(map[int64]struct{}),
		clock:  time.Now,
		newKey: keygen.Generate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the current time at the precision the store persists.
func (s *Service) Now() time.Time {
	return s.clock().Truncate(time.Microsecond)
}

// IsAdmin reports whether userID is in the admin allowlist.
func (s *Service) IsAdmin(userID int64) bool {
	_, ok := s.admins[userID]
	return ok
}

// Admins returns the number of configured admin ids.
func (s *Service) Admins() int {
	return len(s.admins)
}

// StorePath returns the absolute path of the backing store file.
func (s *Service) StorePath() string {
	return s.store.Path()
}

// Count returns the number of records in the store.
func (s *Service) Count(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.store.Count(ctx)
	s.metrics.storeOp("count", start, err)
	return n, err
}

func (s *Service) update(ctx context.Context, op string, fn func(set *model.KeySet) error) error {
	start := time.Now()
	err := s.store.Update(ctx, fn)
	s.metrics.storeOp(op, start, err)
	return err
}

func (s *Service) view(ctx context.Context, op string, fn func(set *model.KeySet) error) error {
	start := time.Now()
	err := s.store.View(ctx, fn)
	s.metrics.storeOp(op, start, err)
	return err
}

func (s *Service) audit(ctx context.Context, action, key string, userID int64, detail string) {
	if s.auditor == nil {
		return
	}
	ev := model.AuditEvent{
		Action: action,
		Key:    key,
		UserID: userID,
		Actor:  ActorFrom(ctx),
		Detail: detail,
		At:     s.Now(),
	}
	if err := s.auditor.Record(ctx, ev); err != nil {
		s.logger.Warn("audit record failed", "action", action, "key", key, "error", err)
	}
}

type actorKey struct{}

// WithActor tags ctx with the identity performing an operation, for the
// audit log.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// SystemActor is recorded when no caller identity is known.
const SystemActor = "system"

// ActorFrom returns the actor set by WithActor, or SystemActor.
func ActorFrom(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return SystemActor
}
