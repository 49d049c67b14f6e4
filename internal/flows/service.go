// Package flows composes the stores, limiter, codec, and session machinery
// into the login state machine and the token lifecycle operations. All
// authentication decisions are made here; the HTTP layer only translates
// transport.
package flows

import (
	"log/slog"

	"github.com/mercuryim/authd/internal/audit"
	"github.com/mercuryim/authd/internal/directory"
	"github.com/mercuryim/authd/internal/mail"
	"github.com/mercuryim/authd/internal/metrics"
	"github.com/mercuryim/authd/internal/password"
	"github.com/mercuryim/authd/internal/rate"
	"github.com/mercuryim/authd/internal/session"
	"github.com/mercuryim/authd/internal/stores"
	"github.com/mercuryim/authd/internal/token"
)

// Deps is the dependency set for the flow service, built once at startup.
// Audit and Metrics may be nil.
type Deps struct {
	Directory    directory.Directory
	Hasher       *password.Hasher
	Codec        *token.Codec
	Sessions     session.Store
	Lifecycle    *session.Lifecycle
	Security     *session.Security
	Challenges   *stores.MfaChallengeStore
	TempSessions *stores.TempSessionStore
	Limiter      *rate.Limiter
	Mail         mail.Sender
	Audit        *audit.Dispatcher
	Metrics      *metrics.Metrics
	Log          *slog.Logger
}

// Service runs the authentication flows.
type Service struct {
	deps Deps
	log  *slog.Logger
}

func New(deps Deps) *Service {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Service{deps: deps, log: log}
}
