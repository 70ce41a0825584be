package registry

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/upb/llm-scheduler/models"
	"github.com/upb/llm-scheduler/utils"
)

var (
	// ErrBackendAlreadyRegistered is returned when registering a duplicate backend
	ErrBackendAlreadyRegistered = errors.New("backend already registered")
)

// Registry manages the pool of LLM backends. The descriptors are
// read-only per batch; only availability can be toggled at runtime.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]models.Backend
}

// NewRegistry creates an empty backend registry
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]models.Backend),
	}
}

// registryFile is the YAML shape of the backend pool description
type registryFile struct {
	Backends []models.Backend `yaml:"backends"`
}

// LoadFromFile loads backend descriptors from a YAML registry file
func (r *Registry) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read backend registry: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse backend registry: %w", err)
	}

	for _, backend := range file.Backends {
		if err := r.Register(backend); err != nil {
			return fmt.Errorf("failed to register backend %q: %w", backend.ID, err)
		}
	}
	return nil
}

// Register adds a backend to the registry
func (r *Registry) Register(backend models.Backend) error {
	if err := utils.ValidateStruct(backend); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[backend.ID]; exists {
		return ErrBackendAlreadyRegistered
	}
	r.backends[backend.ID] = backend
	return nil
}

// Get retrieves a backend by identifier
func (r *Registry) Get(backendID string) (models.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backend, ok := r.backends[backendID]
	if !ok {
		return models.Backend{}, fmt.Errorf("%w: %q", models.ErrBackendUnknown, backendID)
	}
	return backend, nil
}

// List returns all backends sorted by identifier
func (r *Registry) List() []models.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backends := make([]models.Backend, 0, len(r.backends))
	for _, b := range r.backends {
		backends = append(backends, b)
	}
	sort.Slice(backends, func(i, j int) bool {
		return backends[i].ID < backends[j].ID
	})
	return backends
}

// ListAvailable returns the available backends sorted by identifier
func (r *Registry) ListAvailable() []models.Backend {
	all := r.List()
	available := make([]models.Backend, 0, len(all))
	for _, b := range all {
		if b.Available {
			available = append(available, b)
		}
	}
	return available
}

// SetAvailability toggles a backend's availability flag
func (r *Registry) SetAvailability(backendID string, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	backend, ok := r.backends[backendID]
	if !ok {
		return fmt.Errorf("%w: %q", models.ErrBackendUnknown, backendID)
	}
	backend.Available = available
	r.backends[backendID] = backend
	return nil
}

// Count returns the number of registered backends
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}
