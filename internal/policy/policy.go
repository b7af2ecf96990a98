// Package policy evaluates role permissions with an embedded Rego policy.
package policy

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Permissions checked by the HTTP layer
const (
	PermStudentsManage  = "students:manage"
	PermTripsBrowse     = "trips:browse"
	PermTripsManage     = "trips:manage"
	PermFleetManage     = "fleet:manage"
	PermBookingsCreate  = "bookings:create"
	PermBookingsRead    = "bookings:read"
	PermBookingsCancel  = "bookings:cancel"
	PermPaymentsCreate  = "payments:create"
	PermPaymentsReceipt = "payments:receipt"
	PermAdmin           = "admin:operate"
)

//go:embed authz.rego
var authzModule string

// Authorizer answers whether a role holds a permission
type Authorizer struct {
	query rego.PreparedEvalQuery
}

// NewAuthorizer compiles the embedded policy once
func NewAuthorizer(ctx context.Context) (*Authorizer, error) {
	query, err := rego.New(
		rego.Query("data.skulbus.authz.allow"),
		rego.Module("authz.rego", authzModule),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile authorization policy: %w", err)
	}
	return &Authorizer{query: query}, nil
}

// Allowed evaluates the policy for a role and permission
func (a *Authorizer) Allowed(ctx context.Context, role, permission string) (bool, error) {
	results, err := a.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"role":       role,
		"permission": permission,
	}))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate authorization policy: %w", err)
	}
	return results.Allowed(), nil
}
