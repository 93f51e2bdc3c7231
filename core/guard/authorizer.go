package guard

import (
	"context"

	"github.com/getkayan/mentorship/core/audit"
	"github.com/getkayan/mentorship/core/identity"
	"github.com/getkayan/mentorship/core/logger"
	"github.com/getkayan/mentorship/core/session"
	"github.com/getkayan/mentorship/core/telemetry"
	"go.uber.org/zap"
)

// SnapshotSource yields the current session. session.Controller implements
// it.
type SnapshotSource interface {
	Snapshot() session.Snapshot
}

// Authorizer evaluates navigations against a Table using the live session,
// recording metrics and an audit trail of role denials.
type Authorizer struct {
	table  Table
	source SnapshotSource
	audit  audit.AuditStore
	tel    *telemetry.Provider
	log    *zap.Logger
}

type AuthorizerOption func(*Authorizer)

func WithAuditStore(s audit.AuditStore) AuthorizerOption {
	return func(a *Authorizer) { a.audit = s }
}

func WithTelemetry(p *telemetry.Provider) AuthorizerOption {
	return func(a *Authorizer) { a.tel = p }
}

func NewAuthorizer(table Table, source SnapshotSource, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		table:  table,
		source: source,
		log:    logger.Named("guard"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authorize decides a navigation to path for the current session and
// returns the snapshot the decision was made on.
func (a *Authorizer) Authorize(ctx context.Context, path string) (Decision, session.Snapshot) {
	s := a.source.Snapshot()
	d := a.table.Evaluate(s, path)
	a.tel.RecordDecision(ctx, d.Allow, d.RedirectPath)

	if !d.Allow && d.RedirectPath != LoginPath && s.Profile != nil && !a.table.Requirement(path).guestOnly {
		a.log.Info("route denied for role",
			zap.String("principal_id", s.PrincipalID),
			zap.String("path", path),
			zap.String("role", string(s.Profile.Role)),
		)
		if a.audit != nil {
			meta, _ := identity.NewJSON(map[string]string{"redirect": d.RedirectPath, "role": string(s.Profile.Role)})
			err := audit.NewEvent(audit.EventRouteDenied).
				Actor(s.PrincipalID).
				Subject(Normalize(path)).
				Blocked().
				Metadata(meta).
				Save(ctx, a.audit)
			if err != nil {
				a.log.Warn("audit write failed", zap.Error(err))
			}
		}
	}
	return d, s
}
