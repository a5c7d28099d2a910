// Package commands is the boundary to the host's action registry. The
// registry is small, so the command index is rebuilt wholesale on every
// sync; there is no incremental diffing.
package commands

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperjump/shirabe/internal/models"
)

// Registry enumerates host commands and executes them by id.
type Registry interface {
	List() []models.Command
	Execute(id string) error
}

// StaticRegistry is an in-process Registry backed by registered handlers.
type StaticRegistry struct {
	mu       sync.RWMutex
	commands []models.Command
	handlers map[string]func() error
}

// NewStaticRegistry creates an empty registry.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{handlers: make(map[string]func() error)}
}

// Register adds a command. A blank id gets a generated one; the assigned id
// is returned.
func (r *StaticRegistry) Register(cmd models.Command, handler func() error) string {
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, cmd)
	r.handlers[cmd.ID] = handler
	return cmd.ID
}

// List implements Registry.
func (r *StaticRegistry) List() []models.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Command(nil), r.commands...)
}

// Execute implements Registry.
func (r *StaticRegistry) Execute(id string) error {
	r.mu.RLock()
	handler, ok := r.handlers[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown command: %q", id)
	}
	if handler == nil {
		return nil
	}
	return handler()
}

var _ Registry = (*StaticRegistry)(nil)
