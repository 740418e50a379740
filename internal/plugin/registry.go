package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alexisbeaulieu97/diva/internal/logger"
	"github.com/alexisbeaulieu97/diva/internal/ports"
	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

// Registry maps service names to processor services. It is created by the
// caller and injected; there is no global registry.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
	logger   ports.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log ports.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{services: make(map[string]Service), logger: log}
}

// Register adds svc under its metadata name.
func (r *Registry) Register(svc Service) error {
	if svc == nil {
		return divaerrors.NewServiceError("", fmt.Errorf("service is nil"))
	}
	meta := svc.Metadata()
	if err := meta.Validate(); err != nil {
		return divaerrors.NewServiceError(meta.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[meta.Name]; exists {
		return divaerrors.NewServiceError(meta.Name, fmt.Errorf("service already registered"))
	}
	r.services[meta.Name] = svc
	r.logger.Debug(context.Background(), "registered processor service", "service", meta.Name, "version", meta.Version)
	return nil
}

// MustRegister is Register that panics on error, for static wiring.
func (r *Registry) MustRegister(services ...Service) {
	for _, svc := range services {
		if err := r.Register(svc); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the service registered under name.
func (r *Registry) Lookup(name string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	return svc, ok
}

// Resolve returns the service registered under name whose version satisfies
// constraint ("" accepts any version).
func (r *Registry) Resolve(name, constraint string) (Service, error) {
	vc, err := ParseVersionConstraint(constraint)
	if err != nil {
		return nil, divaerrors.NewServiceError(name, err)
	}
	svc, ok := r.Lookup(name)
	if !ok {
		return nil, divaerrors.NewServiceError(name, fmt.Errorf("no service registered"))
	}
	if version := svc.Metadata().Version; !vc.Satisfies(version) {
		return nil, divaerrors.NewServiceError(name, fmt.Errorf("version %s does not satisfy %s", version, vc))
	}
	return svc, nil
}

// Names returns the registered service names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
