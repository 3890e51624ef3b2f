package auth

import (
	"context"
	"errors"
	"strings"
)

var ErrUnauthorized = errors.New("unauthorized")

type Role string

const (
	RoleOperator Role = "operator"
	RoleOwner    Role = "owner"
	RoleDelegate Role = "delegate"
)

// Principal is the resolved caller identity. Owner and delegate principals
// are scoped to a single account address.
type Principal struct {
	Role    Role
	Address string
}

func (p Principal) IsOperator() bool {
	return p.Role == RoleOperator
}

// OwnerOf reports whether the principal is the owner of the given account.
// Delegates and operators never satisfy this, which is what enforces the
// asymmetric-resume property end to end.
func (p Principal) OwnerOf(address string) bool {
	return p.Role == RoleOwner && strings.EqualFold(p.Address, strings.TrimSpace(address))
}

// ActsFor reports whether the principal may trigger non-privileged actions
// for the account: the owner, its delegate, or the operator.
func (p Principal) ActsFor(address string) bool {
	if p.IsOperator() {
		return true
	}
	return strings.EqualFold(p.Address, strings.TrimSpace(address))
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
