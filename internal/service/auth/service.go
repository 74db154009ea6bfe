package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/agentdesk/frontend/internal/client"
	"github.com/zhouzirui/agentdesk/frontend/internal/store/token"
)

var (
	ErrEmailRequired    = errors.New("email is required")
	ErrInvalidEmail     = errors.New("email address is invalid")
	ErrPasswordRequired = errors.New("password is required")
)

// Backend is the part of the API client used for account operations.
type Backend interface {
	Login(ctx context.Context, email, password string) (token.Token, error)
	Register(ctx context.Context, name, email, password string) (client.Registration, error)
}

// Session is notified when the signed-in identity changes.
type Session interface {
	Reset()
}

// Service runs the login, register and logout flows against the token store.
type Service struct {
	backend Backend
	tokens  token.Store
	session Session
}

// NewService wires the account flows. session may be nil.
func NewService(backend Backend, tokens token.Store, session Session) *Service {
	return &Service{backend: backend, tokens: tokens, session: session}
}

// Authenticated reports whether a token is currently held.
func (s *Service) Authenticated() bool {
	_, ok := s.tokens.Read()
	return ok
}

// Login authenticates and stores the issued token.
func (s *Service) Login(ctx context.Context, email, password string) error {
	email, err := validate(email, password)
	if err != nil {
		return err
	}

	tok, err := s.backend.Login(ctx, email, password)
	if err != nil {
		log.Info().Err(err).Str("email", email).Msg("[auth] login failed")
		return err
	}

	s.tokens.Write(tok)
	if s.session != nil {
		s.session.Reset()
	}
	log.Info().Str("email", email).Msg("[auth] logged in")
	return nil
}

// Register creates an account. It does not log the user in.
func (s *Service) Register(ctx context.Context, name, email, password string) (client.Registration, error) {
	email, err := validate(email, password)
	if err != nil {
		return client.Registration{}, err
	}

	reg, err := s.backend.Register(ctx, strings.TrimSpace(name), email, password)
	if err != nil {
		log.Info().Err(err).Str("email", email).Msg("[auth] registration failed")
		return client.Registration{}, err
	}
	log.Info().Str("email", email).Msg("[auth] registered")
	return reg, nil
}

// Logout drops the token and ends the chat session.
func (s *Service) Logout() {
	s.tokens.Clear()
	if s.session != nil {
		s.session.Reset()
	}
	log.Info().Msg("[auth] logged out")
}

// DisplayMessage renders a login/register failure for the user.
func DisplayMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmailRequired), errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrPasswordRequired):
		return strings.ToUpper(err.Error()[:1]) + err.Error()[1:] + "."
	default:
		return client.DisplayMessage(err)
	}
}

func validate(email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidEmail
	}
	if password == "" {
		return "", ErrPasswordRequired
	}
	return email, nil
}
