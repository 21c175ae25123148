package access

import (
	"sync"

	"github.com/vladislavdragonenkov/commerce/internal/domain"
)

// RolePermissions: права, выданные ролям. Потокобезопасно.
type RolePermissions struct {
	mu    sync.RWMutex
	roles map[string]map[string]struct{}
}

var _ domain.PermissionChecker = (*RolePermissions)(nil)

// NewRolePermissions создаёт пустую таблицу прав.
func NewRolePermissions() *RolePermissions {
	return &RolePermissions{roles: make(map[string]map[string]struct{})}
}

// DefaultPermissions выдаёт "access checkout" анонимам и авторизованным.
func DefaultPermissions() *RolePermissions {
	p := NewRolePermissions()
	p.Grant(domain.RoleAnonymous, domain.CapabilityAccessCheckout)
	p.Grant(domain.RoleAuthenticated, domain.CapabilityAccessCheckout)
	return p
}

func (p *RolePermissions) Grant(role, capability string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	caps, ok := p.roles[role]
	if !ok {
		caps = make(map[string]struct{})
		p.roles[role] = caps
	}
	caps[capability] = struct{}{}
}

func (p *RolePermissions) Revoke(role, capability string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.roles[role], capability)
}

// HasCapability: хотя бы одна роль актора имеет право.
func (p *RolePermissions) HasCapability(actor domain.Actor, capability string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, role := range actor.Roles {
		if _, ok := p.roles[role][capability]; ok {
			return true
		}
	}
	return false
}
