// Package oauthflow drives a user through a chain of OAuth providers.
//
// Progress is derived from the stored Connection: each provider in the
// chain is satisfied once its token is on record. The signed state token
// is the only thing carried between hops, so a chain abandoned halfway is
// resumed by the next Start.
package oauthflow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BlackMission/credlink/internal/auth"
	"github.com/BlackMission/credlink/internal/connection"
	"github.com/BlackMission/credlink/internal/domain"
	"github.com/BlackMission/credlink/internal/redirect"
	"github.com/BlackMission/credlink/internal/state"
)

// Deps holds the collaborators of an Orchestrator.
type Deps struct {
	Providers   *auth.Registry
	Connections *connection.Service
	State       *state.Service
	// Guard is optional. When set, each state token is honored once.
	Guard     state.Guard
	Allowlist *redirect.Allowlist
	Logger    *zap.Logger
}

type Orchestrator struct {
	chain       []string
	providers   *auth.Registry
	connections *connection.Service
	states      *state.Service
	guard       state.Guard
	allowlist   *redirect.Allowlist
	logger      *zap.Logger
}

// New creates an orchestrator for the given provider chain. Every name in
// chain must be registered and map to a Connection token field.
func New(chain []string, deps Deps) (*Orchestrator, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: provider chain is empty", domain.ErrInvalidConfig)
	}
	if err := deps.Providers.Require(chain...); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(chain))
	for _, name := range chain {
		if _, ok := domain.TokenField(name); !ok {
			return nil, fmt.Errorf("%w: provider %q has no connection field", domain.ErrInvalidConfig, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: provider %q listed twice", domain.ErrInvalidConfig, name)
		}
		seen[name] = true
	}
	return &Orchestrator{
		chain:       append([]string(nil), chain...),
		providers:   deps.Providers,
		connections: deps.Connections,
		states:      deps.State,
		guard:       deps.Guard,
		allowlist:   deps.Allowlist,
		logger:      deps.Logger.Named("oauthflow"),
	}, nil
}

// Chain returns the providers in the order they are authorized.
func (o *Orchestrator) Chain() []string {
	return append([]string(nil), o.chain...)
}

// Start returns where to send the user: straight back to backToURL when
// every provider is already linked, otherwise to the first unlinked
// provider's consent page.
func (o *Orchestrator) Start(ctx context.Context, userID, backToURL string) (string, error) {
	if userID == "" {
		return "", domain.ErrUnauthenticated
	}
	if err := o.allowlist.Validate(backToURL); err != nil {
		return "", err
	}

	conn, err := o.current(ctx, userID)
	if err != nil {
		return "", err
	}

	next, ok := o.nextUnsatisfied(conn)
	if !ok {
		o.logger.Info("all providers already linked", zap.String("user_id", userID))
		return backToURL, nil
	}

	o.logger.Info("starting authorization", zap.String("user_id", userID), zap.String("provider", next))
	return o.redirectTo(next, userID, backToURL)
}

// CallbackRequest is what a provider sends back to its callback endpoint.
type CallbackRequest struct {
	Provider string
	Code     string
	State    string
	// Error is the provider's error parameter, set when the user declined.
	Error string
	// PathUserID is the user id from the callback path, if the route has one.
	PathUserID string
}

// Callback verifies the state, stores the provider's token, and returns the
// next redirect: the next unlinked provider, or the original backToURL.
// Nothing is written unless the state verifies and the code exchange
// succeeds.
func (o *Orchestrator) Callback(ctx context.Context, req CallbackRequest) (string, error) {
	payload, err := o.states.Verify(req.State)
	if err != nil {
		o.logger.Warn("rejected callback state", zap.String("provider", req.Provider), zap.Error(err))
		return "", err
	}
	if payload.Provider != req.Provider {
		o.logger.Warn("state issued for another provider",
			zap.String("provider", req.Provider),
			zap.String("state_provider", payload.Provider),
		)
		return "", fmt.Errorf("%w: provider mismatch", domain.ErrInvalidState)
	}
	if req.PathUserID != "" && req.PathUserID != payload.UserID {
		o.logger.Warn("callback path user does not match state", zap.String("provider", req.Provider))
		return "", fmt.Errorf("%w: user mismatch", domain.ErrInvalidState)
	}

	logger := o.logger.With(zap.String("user_id", payload.UserID), zap.String("provider", req.Provider))

	if o.guard != nil {
		if err := o.guard.Consume(ctx, payload.Nonce, payload.ExpiresAt); err != nil {
			logger.Warn("state not consumable", zap.Error(err))
			return "", err
		}
	}

	if req.Error != "" {
		logger.Info("provider denied authorization", zap.String("reason", req.Error))
		return "", fmt.Errorf("%w: %s", domain.ErrAuthorizationDenied, req.Error)
	}

	provider, err := o.providers.Get(req.Provider)
	if err != nil {
		return "", err
	}

	token, err := provider.Exchange(ctx, req.Code)
	if err != nil {
		logger.Error("token exchange failed", zap.Error(err))
		if !errors.Is(err, domain.ErrValidation) && !errors.Is(err, domain.ErrUpstreamExchange) {
			err = fmt.Errorf("%w: %v", domain.ErrUpstreamExchange, err)
		}
		return "", err
	}

	conn, err := o.connections.SetToken(ctx, payload.UserID, req.Provider, token)
	if err != nil {
		return "", err
	}
	logger.Info("provider linked")

	next, ok := o.nextUnsatisfied(conn)
	if !ok {
		return payload.BackToURL, nil
	}
	return o.redirectTo(next, payload.UserID, payload.BackToURL)
}

// ProviderStatus reports whether a provider in the chain is linked.
type ProviderStatus struct {
	Provider  string `json:"provider"`
	Connected bool   `json:"connected"`
}

// Status lists every provider in the chain with its link state.
func (o *Orchestrator) Status(ctx context.Context, userID string) ([]ProviderStatus, error) {
	conn, err := o.current(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ProviderStatus, 0, len(o.chain))
	for _, name := range o.chain {
		out = append(out, ProviderStatus{Provider: name, Connected: conn.Token(name) != ""})
	}
	return out, nil
}

func (o *Orchestrator) current(ctx context.Context, userID string) (*domain.Connection, error) {
	conn, err := o.connections.GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.Connection{UserID: userID}, nil
	}
	return conn, err
}

func (o *Orchestrator) nextUnsatisfied(conn *domain.Connection) (string, bool) {
	for _, name := range o.chain {
		if conn.Token(name) == "" {
			return name, true
		}
	}
	return "", false
}

func (o *Orchestrator) redirectTo(providerName, userID, backToURL string) (string, error) {
	provider, err := o.providers.Get(providerName)
	if err != nil {
		return "", err
	}
	token, err := o.states.Issue(domain.StatePayload{
		UserID:    userID,
		BackToURL: backToURL,
		Provider:  providerName,
	})
	if err != nil {
		return "", fmt.Errorf("issuing state: %w", err)
	}
	authURL, err := provider.AuthURL(token)
	if err != nil {
		return "", fmt.Errorf("building %s auth URL: %w", providerName, err)
	}
	return authURL, nil
}
