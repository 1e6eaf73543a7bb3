package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"label-printer/internal/interact"
	"label-printer/internal/printserver"
	"label-printer/internal/settings"
)

// Prompt keys asked by the manager.
const (
	PromptAddress  = "address"
	PromptUsername = "username"
	PromptPassword = "password"
)

var (
	ErrAddressRequired     = errors.New("a print server address is required")
	ErrCredentialsRequired = errors.New("username and password are required")
)

type State struct {
	ServerAddress   string
	IsAuthenticated bool
}

type Server interface {
	Status(ctx context.Context, address string) (bool, error)
	Login(ctx context.Context, address string, credentials printserver.Credentials) error
}

// Manager negotiates an authenticated session with the print server.
type Manager struct {
	store      settings.Store
	interactor interact.Interactor
	server     Server
	logger     *slog.Logger
}

func NewManager(store settings.Store, interactor interact.Interactor, server Server, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:      store,
		interactor: interactor,
		server:     server,
		logger:     logger,
	}
}

// ResolveStatus resolves the server address, checks the session and logs in
// when needed. It only returns an authenticated state; everything else is an error.
func (m *Manager) ResolveStatus(ctx context.Context) (State, error) {
	address, err := m.resolveAddress(ctx)
	if err != nil {
		return State{}, err
	}

	for {
		authenticated, err := m.server.Status(ctx, address)
		if err == nil {
			if authenticated {
				m.logger.DebugContext(ctx, "session already authenticated", "address", address)
				return State{ServerAddress: address, IsAuthenticated: true}, nil
			}
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return State{}, ctxErr
		}

		m.logger.WarnContext(ctx, "status query failed", "address", address, "error", err)
		m.interactor.Notify(statusNotice(err))

		// The address is treated as invalid; the user decides whether to keep trying.
		address, err = m.askAddress(ctx, address)
		if err != nil {
			return State{}, err
		}
	}

	if err := m.login(ctx, address); err != nil {
		return State{}, err
	}
	return State{ServerAddress: address, IsAuthenticated: true}, nil
}

func (m *Manager) resolveAddress(ctx context.Context) (string, error) {
	address, ok, err := m.store.Get(ctx, settings.AddressKey)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", settings.AddressKey, err)
	}
	if ok && strings.TrimSpace(address) != "" {
		return strings.TrimSpace(address), nil
	}
	return m.askAddress(ctx, "")
}

// askAddress prompts until the user enters a usable address or cancels, and
// persists the answer.
func (m *Manager) askAddress(ctx context.Context, previous string) (string, error) {
	prompt := interact.Prompt{
		Key:     PromptAddress,
		Message: "Print server address",
		Default: previous,
		Retry:   previous != "",
	}

	for {
		answer, ok, err := m.interactor.Ask(ctx, prompt)
		if err != nil {
			return "", err
		}
		answer = strings.TrimSpace(answer)
		if !ok || answer == "" {
			return "", ErrAddressRequired
		}

		if _, err := printserver.ParseAddress(answer); err != nil {
			m.interactor.Notify(interact.Notice{Level: interact.LevelError, Title: "Error", Message: err.Error()})
			prompt.Default = ""
			prompt.Retry = true
			continue
		}

		if err := m.store.Set(ctx, settings.AddressKey, answer); err != nil {
			return "", fmt.Errorf("failed to persist %s: %w", settings.AddressKey, err)
		}
		m.logger.InfoContext(ctx, "print server address saved", "address", answer)
		return answer, nil
	}
}

func (m *Manager) login(ctx context.Context, address string) error {
	username, ok, err := m.interactor.Ask(ctx, interact.Prompt{Key: PromptUsername, Message: "Username"})
	if err != nil {
		return err
	}
	if !ok || username == "" {
		return ErrCredentialsRequired
	}

	password, ok, err := m.interactor.Ask(ctx, interact.Prompt{Key: PromptPassword, Message: "Password", Secret: true})
	if err != nil {
		return err
	}
	if !ok || password == "" {
		return ErrCredentialsRequired
	}

	if err := m.server.Login(ctx, address, printserver.Credentials{Username: username, Password: password}); err != nil {
		m.logger.WarnContext(ctx, "login failed", "address", address, "username", username, "error", err)
		return fmt.Errorf("login failed: %w", err)
	}

	m.logger.InfoContext(ctx, "logged in to print server", "address", address, "username", username)
	return nil
}
