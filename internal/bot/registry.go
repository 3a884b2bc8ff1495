package bot

import (
	"fmt"

	domerrors "github.com/hermod-chat/hermod/internal/errors"
	"github.com/hermod-chat/hermod/internal/users"
)

// Bot is one configured bot type: its queue namespace, its route table,
// its user store, and the platform credentials used to reply. Built once
// at startup and immutable afterwards.
type Bot struct {
	ID          string
	Namespace   string
	AccessToken string
	Router      *Router
	Users       *users.Store
	Sink        Sink
}

// Registry maps bot type identifiers to their configuration. Scheduling
// calls carry the bot ID; workers resolve it here instead of doing any
// runtime name-to-type lookup.
type Registry struct {
	bots map[string]*Bot
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{bots: make(map[string]*Bot)}
}

// Register validates and adds a bot. A bot without a router or user store
// is a configuration error, fatal at startup rather than per-request.
func (r *Registry) Register(b *Bot) error {
	if b.ID == "" || b.Namespace == "" {
		return fmt.Errorf("bot registration: %w", domerrors.ErrInvalidRequest)
	}
	if b.Router == nil {
		return fmt.Errorf("bot %s: %w", b.ID, domerrors.ErrNoRouterRegistered)
	}
	if b.Users == nil {
		return fmt.Errorf("bot %s: %w", b.ID, domerrors.ErrNoUserStoreRegistered)
	}
	if _, exists := r.bots[b.ID]; exists {
		return fmt.Errorf("bot %s registered twice: %w", b.ID, domerrors.ErrInvalidRequest)
	}
	r.bots[b.ID] = b
	return nil
}

// Resolve returns the bot for the given type identifier.
func (r *Registry) Resolve(botID string) (*Bot, error) {
	b, ok := r.bots[botID]
	if !ok {
		return nil, fmt.Errorf("bot %s: %w", botID, domerrors.ErrNotFound)
	}
	return b, nil
}

// IDs returns the registered bot identifiers.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.bots))
	for id := range r.bots {
		ids = append(ids, id)
	}
	return ids
}
