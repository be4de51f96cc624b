package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-relations/internal/domain"
	apperrors "github.com/spec-kit/ticket-relations/pkg/util/errorutil"
)

// Capability names an action a staff role may perform.
type Capability string

// CapabilityManageRelationships covers relationship edits, split and merge.
const CapabilityManageRelationships Capability = "manage_relationships"

var roleCapabilities = map[domain.StaffRole][]Capability{
	domain.StaffRoleAgent:    {CapabilityManageRelationships},
	domain.StaffRoleTeamLead: {CapabilityManageRelationships},
	domain.StaffRoleAdmin:    {CapabilityManageRelationships},
}

// HasCapability reports whether role grants capability.
func HasCapability(role domain.StaffRole, capability Capability) bool {
	for _, c := range roleCapabilities[role] {
		if c == capability {
			return true
		}
	}
	return false
}

// RequireCapability ensures the caller is staff whose role grants capability.
func RequireCapability(capability Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if principal.SubjectType != domain.SubjectTypeStaff || principal.Role == nil {
			return apperrors.NewForbidden("staff role required")
		}
		if !HasCapability(*principal.Role, capability) {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAnyRole ensures caller is authenticated (user or staff).
func RequireAnyRole() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}
