// Package gateway provides the client boundary to the remote AsthmaCare
// backend. Every operation is one HTTP round-trip with cookies included.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/asthmacare/companion/internal/domain"
)

// ErrUnauthenticated indicates the server rejected the call because no
// valid session exists. Callers surface this as a "please log in"
// condition, distinct from transport failures.
var ErrUnauthenticated = errors.New("not authenticated")

// RejectionError carries the server's verbatim rejection message for
// login and signup attempts. It is a reportable outcome, not a fault.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("rejected by server: %s", e.Reason)
}

// IsRejection reports whether err is a server-side rejection and, if so,
// returns the server's message.
func IsRejection(err error) (string, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

// Client defines the remote operations the companion depends on.
type Client interface {
	// Login authenticates the given credentials. A *RejectionError means
	// the server refused them; any other error is a transport failure.
	Login(ctx context.Context, username, password string) error

	// Signup registers a new account. Rejections (taken username, weak or
	// mismatched passwords) come back as *RejectionError.
	Signup(ctx context.Context, username, password, confirmPassword string) error

	// Logout invalidates the server-side session.
	Logout(ctx context.Context) error

	// CheckSession asks the server whether the current cookie session is
	// still valid and for whom.
	CheckSession(ctx context.Context) (domain.Session, error)

	// SubmitSymptoms sends a symptom report for scoring, scoped to the
	// given username.
	SubmitSymptoms(ctx context.Context, report domain.SymptomReport, username string) (domain.AssessmentResult, error)

	// FetchHistory returns the archived assessments for the given
	// username in server-provided order. Returns ErrUnauthenticated when
	// the session is missing or expired.
	FetchHistory(ctx context.Context, username string) ([]domain.HistoryRecord, error)
}
