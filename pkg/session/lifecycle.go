package session

import (
	"context"
	"errors"
	"fmt"
)

// Outcome reports what Lifecycle.Commit did
type Outcome int

const (
	// OutcomeUntouched means the session was never accessed; no store call was made
	OutcomeUntouched Outcome = iota
	// OutcomeRemoved means the session was cleared and its stored copy removed
	OutcomeRemoved
	// OutcomeClean means the session had no pending mutations; no store call was made
	OutcomeClean
	// OutcomeSaved means pending mutations were saved with one upsert
	OutcomeSaved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUntouched:
		return "untouched"
	case OutcomeRemoved:
		return "removed"
	case OutcomeClean:
		return "clean"
	case OutcomeSaved:
		return "saved"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Lifecycle is the session access of one request. The session is loaded
// lazily on first access and committed once when the request ends.
type Lifecycle struct {
	manager    *Manager
	incomingID string
	session    *Session
	accessed   bool
	cleared    bool
}

// Lifecycle starts a request-scoped accessor for the session the request
// carries, if any
func (m *Manager) Lifecycle(incomingID string) *Lifecycle {
	return &Lifecycle{manager: m, incomingID: incomingID}
}

// Session returns the request's session. An unknown or empty incoming id
// yields a fresh session.
func (l *Lifecycle) Session(ctx context.Context) (*Session, error) {
	if l.session != nil {
		return l.session, nil
	}

	if l.incomingID != "" && !l.cleared {
		s, err := l.manager.Get(ctx, l.incomingID)
		switch {
		case err == nil:
			l.session = s
		case errors.Is(err, ErrNotFound):
			l.session = l.manager.Create()
		default:
			return nil, err
		}
	} else {
		l.session = l.manager.Create()
	}

	l.accessed = true
	return l.session, nil
}

// Clear drops the request's session; Commit removes the stored copy
func (l *Lifecycle) Clear() {
	l.session = nil
	l.accessed = true
	l.cleared = true
}

// Replace makes the request's session hold exactly fields
func (l *Lifecycle) Replace(ctx context.Context, fields map[string]any) error {
	s, err := l.Session(ctx)
	if err != nil {
		return err
	}
	return s.Become(fields)
}

// ID returns the session id the response should carry: the incoming id while
// untouched, the current session's id once accessed, or "" after Clear.
func (l *Lifecycle) ID() string {
	if l.session != nil {
		return l.session.ID()
	}
	if l.cleared {
		return ""
	}
	return l.incomingID
}

// Commit ends the request: it removes a cleared session's stored copy, and
// saves the session if it has pending mutations.
func (l *Lifecycle) Commit(ctx context.Context) (Outcome, error) {
	if !l.accessed {
		return OutcomeUntouched, nil
	}

	if l.cleared && l.incomingID != "" {
		if err := l.manager.Remove(ctx, l.incomingID); err != nil {
			return OutcomeRemoved, err
		}
		// A session created after Clear gets its own id
		l.incomingID = ""
	}

	if l.session == nil {
		return OutcomeRemoved, nil
	}
	if !l.session.IsDirty() {
		return OutcomeClean, nil
	}
	if err := l.session.Save(ctx); err != nil {
		return OutcomeSaved, err
	}
	return OutcomeSaved, nil
}
