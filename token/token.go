// Package token decodes access credential payloads into identities.
//
// The credential is an opaque JWT minted by the backend. The client never
// verifies the signature: it only reads the embedded identity claims for
// display and role checks, and the backend re-verifies the token on every
// request. Use Decode on the raw bearer string.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	taskdesk "github.com/sirnukesalot/taskdesk-go"
)

// Decode extracts the identity and expiry from an access credential without
// verifying its signature. It fails on structurally invalid tokens only.
func Decode(access string) (*taskdesk.Identity, time.Time, error) {
	parser := jwt.NewParser()
	tok, _, err := parser.ParseUnverified(access, jwt.MapClaims{})
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("taskdesk/token: %w", err)
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("taskdesk/token: unexpected claims type")
	}

	return mapToIdentity(claims), expiryOf(claims), nil
}

// mapToIdentity converts raw claims to a taskdesk.Identity. Missing string
// claims default to empty; a missing role defaults to engineer, matching
// the backend's token contract.
func mapToIdentity(m jwt.MapClaims) *taskdesk.Identity {
	id := &taskdesk.Identity{Role: taskdesk.RoleEngineer}

	if v, ok := m["user_id"].(float64); ok {
		id.ID = int64(v)
	}
	if v, ok := m["email"].(string); ok {
		id.Email = v
	}
	if v, ok := m["first_name"].(string); ok {
		id.FirstName = v
	}
	if v, ok := m["last_name"].(string); ok {
		id.LastName = v
	}
	if v, ok := m["role"].(string); ok && v != "" {
		id.Role = taskdesk.Role(v)
	}
	if v, ok := m["organization_id"].(float64); ok {
		orgID := int64(v)
		id.OrganizationID = &orgID
	}

	return id
}

func expiryOf(m jwt.MapClaims) time.Time {
	if v, ok := m["exp"].(float64); ok {
		return time.Unix(int64(v), 0)
	}
	return time.Time{}
}
