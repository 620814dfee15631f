package core

import "github.com/dkeye/tempvoice/internal/domain"

// SessionID identifies one browser session. Sessions are cookie-scoped
// and map one to one onto users.
type SessionID string

func (s SessionID) UserID() domain.UserID { return domain.UserID(s) }

// SessionOf is the inverse of SessionID.UserID.
func SessionOf(u domain.UserID) SessionID { return SessionID(u) }

// MemberSession pairs a member's state with its signal and media
// endpoints. Either endpoint may be nil while the member is connecting.
type MemberSession interface {
	Meta() *domain.Member
	Signal() SignalConnection
	Media() MediaConnection
	UpdateSignal(SignalConnection) MemberSession
	UpdateMedia(MediaConnection) MemberSession
}
