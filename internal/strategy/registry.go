package strategy

import (
	"fmt"
	"sync"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// BotInfo is the summary of a registered bot for status APIs.
type BotInfo struct {
	Name      string          `json:"name"`
	Sources   int             `json:"sources"`
	Overview  domain.Overview `json:"overview"`
	Unhealthy int             `json:"unhealthy_sources"`
}

// Registry manages the named bots of a process. It is safe for concurrent
// use and keeps registration order.
type Registry struct {
	mu    sync.RWMutex
	bots  map[string]*Bot
	order []string
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{bots: make(map[string]*Bot)}
}

// Register adds a bot under its strategy name.
func (r *Registry) Register(b *Bot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bots[b.Name()]; ok {
		return fmt.Errorf("strategy %q: %w", b.Name(), domain.ErrAlreadyExists)
	}
	r.bots[b.Name()] = b
	r.order = append(r.order, b.Name())
	return nil
}

// Get retrieves a bot by name.
func (r *Registry) Get(name string) (*Bot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bots[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: %w", name, domain.ErrNotFound)
	}
	return b, nil
}

// Bots returns every registered bot in registration order.
func (r *Registry) Bots() []*Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Bot, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.bots[n])
	}
	return out
}

// List returns the names of all registered bots in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// ListInfo returns a status summary for every bot.
func (r *Registry) ListInfo() []BotInfo {
	bots := r.Bots()
	infos := make([]BotInfo, 0, len(bots))
	for _, b := range bots {
		sources := b.Sources()
		info := BotInfo{
			Name:     b.Name(),
			Sources:  len(sources),
			Overview: b.Portfolio().Overview(),
		}
		for _, s := range sources {
			if s.Health != domain.HealthGreen {
				info.Unhealthy++
			}
		}
		infos = append(infos, info)
	}
	return infos
}
