// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// HeaderUserID carries the caller's user id, set by the CRM gateway.
	HeaderUserID = "X-User-ID"
	// HeaderUserRoles carries the caller's comma separated roles.
	HeaderUserRoles = "X-User-Roles"
)

// Identity represents the caller as asserted by the upstream gateway.
// Handlers read user information through it without depending on Gin.
type Identity interface {
	// UserID returns the caller's ID.
	UserID() uuid.UUID
	// Roles returns the caller's assigned roles.
	Roles() []string
	// HasRole checks if the caller has a specific role.
	HasRole(role string) bool
	// IsAuthenticated returns true if the gateway identified the caller.
	IsAuthenticated() bool
}

type identity struct {
	userID        uuid.UUID
	roles         []string
	authenticated bool
}

func (i *identity) UserID() uuid.UUID {
	return i.userID
}

func (i *identity) Roles() []string {
	return i.roles
}

func (i *identity) HasRole(role string) bool {
	for _, r := range i.roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

// GetIdentity extracts the Identity from the gateway headers.
// Returns an unauthenticated identity if the user id is absent or malformed.
func GetIdentity(c *gin.Context) Identity {
	uid, err := uuid.Parse(strings.TrimSpace(c.GetHeader(HeaderUserID)))
	if err != nil {
		return &identity{authenticated: false}
	}

	return &identity{
		userID:        uid,
		roles:         splitRoles(c.GetHeader(HeaderUserRoles)),
		authenticated: true,
	}
}

// MustGetIdentity extracts the Identity from the gateway headers.
// If the caller is not identified, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return nil
	}
	return id
}

// RequireRole returns middleware that checks if the caller has the specified role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !GetIdentity(c).HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole is RequireRole for callers holding at least one of roles.
func RequireAnyRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := GetIdentity(c)
		for _, role := range roles {
			if id.HasRole(role) {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	}
}

func splitRoles(raw string) []string {
	roles := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			roles = append(roles, trimmed)
		}
	}
	return roles
}
