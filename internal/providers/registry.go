package providers

import (
	"fmt"
	"sync"

	"github.com/Aman-CERP/repoinsight/internal/embed"
)

// Registry is the single runtime registry keyed by provider name:
// embedder and chatter variants register under a tag, and callers
// select one by the provider field of their request config.
type Registry struct {
	mu        sync.RWMutex
	embedders map[string]embed.DocumentEmbedder
	chatters  map[string]Chatter
}

func NewRegistry() *Registry {
	r := &Registry{
		embedders: map[string]embed.DocumentEmbedder{},
		chatters:  map[string]Chatter{},
	}
	r.RegisterEmbedder("static", NewStaticEmbedder(768))
	r.RegisterChatter("static", NewStaticChatter())
	return r
}

func (r *Registry) RegisterEmbedder(name string, e embed.DocumentEmbedder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedders[name] = e
}

func (r *Registry) RegisterChatter(name string, c Chatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chatters[name] = c
}

func (r *Registry) Embedder(name string) (embed.DocumentEmbedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.embedders[name]
	if !ok {
		return nil, fmt.Errorf("providers: no embedder registered for %q", name)
	}
	return e, nil
}

func (r *Registry) ChatterFor(name string) (Chatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chatters[name]
	if !ok {
		return nil, fmt.Errorf("providers: no chatter registered for %q", name)
	}
	return c, nil
}
