package identity

import "github.com/fares7elsadek/syncspace-watch/internal/domain"

// Provider resolves the local participant. The sync core only uses it for
// host-equality checks and for stamping the actor on outgoing events.
type Provider interface {
	CurrentUser() domain.User
}

type Static struct {
	user domain.User
}

func NewStatic(id, username string) *Static {
	return &Static{user: domain.User{ID: id, Username: username}}
}

func (s *Static) CurrentUser() domain.User {
	return s.user
}
