// Package team provides a simple round-robin cycle.Team for the CLI and
// tests. Real agent teams implement the same interface externally.
package team

import (
	"errors"
	"sync"

	"github.com/fyrsmithlabs/cycled/internal/cycle"
)

// Roles assigned to non-primus members, cycled in order.
var supportRoles = []string{"worker", "evaluator", "supervisor"}

// RoundRobin rotates the primus role across a fixed member list and assigns
// support roles to the rest.
type RoundRobin struct {
	mu      sync.Mutex
	members []string
	primus  int
	roles   map[string]string
}

// NewRoundRobin builds a team from member names.
func NewRoundRobin(members ...string) (*RoundRobin, error) {
	if len(members) == 0 {
		return nil, errors.New("team requires at least one member")
	}
	t := &RoundRobin{
		members: append([]string(nil), members...),
		roles:   make(map[string]string),
	}
	t.assignLocked()
	return t, nil
}

// RotatePrimus advances the primus role to the next member.
func (t *RoundRobin) RotatePrimus() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.primus = (t.primus + 1) % len(t.members)
	t.assignLocked()
	return nil
}

// AssignRoles recomputes the role map. Phase and task are accepted for
// interface compatibility; the round-robin strategy ignores them.
func (t *RoundRobin) AssignRoles(phase cycle.Phase, task cycle.TaskRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.assignLocked()
	return nil
}

// RoleMap returns a copy of the current assignment.
func (t *RoundRobin) RoleMap() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]string, len(t.roles))
	for k, v := range t.roles {
		out[k] = v
	}
	return out
}

func (t *RoundRobin) assignLocked() {
	next := 0
	for i, member := range t.members {
		if i == t.primus {
			t.roles[member] = "primus"
			continue
		}
		t.roles[member] = supportRoles[next%len(supportRoles)]
		next++
	}
}
