// internal/controller/registry.go
package controller

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"makino-adapter/pkg/link"
)

// LinkFactory creates the link registered under a key. ProX factories return a link.ProXLink,
// Cnc factories a link.CncLink.
type LinkFactory func(key LinkKey, logger *zap.Logger) (any, error)

// LinkKey uniquely identifies a link implementation
type LinkKey struct {
	Channel link.Channel
	// Version is VersionUnknown for the Cnc channel and for a ProX link serving every generation
	Version link.Version
}

func (k LinkKey) String() string {
	if k.Channel == link.ChannelCnc {
		return string(k.Channel)
	}
	return fmt.Sprintf("%s/%s", k.Channel, k.Version)
}

// Registry manages link registration and creation
type Registry struct {
	links  map[LinkKey]LinkFactory
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewRegistry creates a new link registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		links:  make(map[LinkKey]LinkFactory),
		logger: logger,
	}
}

// Register registers a link factory
func (r *Registry) Register(channel link.Channel, version link.Version, factory LinkFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := LinkKey{Channel: channel, Version: version}
	r.links[key] = factory
	r.logger.Info("Link registered", zap.Stringer("link", key))
}

// lookup finds the exact factory for a key, then the generation-independent one
func (r *Registry) lookup(key LinkKey) (LinkFactory, LinkKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if factory, exists := r.links[key]; exists {
		return factory, key, true
	}
	key.Version = link.VersionUnknown
	factory, exists := r.links[key]
	return factory, key, exists
}

// ProX creates the ProX link of a protocol generation
func (r *Registry) ProX(version link.Version) (link.ProXLink, error) {
	factory, key, ok := r.lookup(LinkKey{Channel: link.ChannelProX, Version: version})
	if !ok {
		return nil, fmt.Errorf("no link registered for %s", LinkKey{Channel: link.ChannelProX, Version: version})
	}

	created, err := factory(LinkKey{Channel: key.Channel, Version: version}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s link: %w", version, err)
	}
	l, ok := created.(link.ProXLink)
	if !ok {
		return nil, fmt.Errorf("factory for %s returned %T", key, created)
	}
	if l.Version() != version {
		return nil, fmt.Errorf("factory for %s returned a %s link", key, l.Version())
	}
	return l, nil
}

// Cnc creates the Cnc link
func (r *Registry) Cnc() (link.CncLink, error) {
	key := LinkKey{Channel: link.ChannelCnc}
	factory, _, ok := r.lookup(key)
	if !ok {
		return nil, fmt.Errorf("no link registered for %s", key)
	}

	created, err := factory(key, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cnc link: %w", err)
	}
	l, ok := created.(link.CncLink)
	if !ok {
		return nil, fmt.Errorf("factory for %s returned %T", key, created)
	}
	return l, nil
}

// ListLinks returns all registered links, ordered by channel and version
func (r *Registry) ListLinks() []LinkKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]LinkKey, 0, len(r.links))
	for key := range r.links {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Channel != keys[j].Channel {
			return keys[i].Channel > keys[j].Channel
		}
		return keys[i].Version > keys[j].Version
	})
	return keys
}

// IsSupported checks if a link exists for the channel and version
func (r *Registry) IsSupported(channel link.Channel, version link.Version) bool {
	_, _, ok := r.lookup(LinkKey{Channel: channel, Version: version})
	return ok
}
