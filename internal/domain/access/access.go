// Package access carries the caller identity and gates mutating operations
// behind a per-component administrator.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/accessreg/internal/adapters/repository"
	"github.com/okian/accessreg/internal/domain/model"
)

// Component names. Each component has its own administrator.
const (
	ComponentFacility      = "facility"
	ComponentCertification = "certification"
	ComponentImprovement   = "improvement"
	ComponentFeedback      = "feedback"
)

// Components lists every gated component.
var Components = []string{ //nolint:gochecknoglobals // fixed component list
	ComponentFacility,
	ComponentCertification,
	ComponentImprovement,
	ComponentFeedback,
}

const adminBucket = "admin"

type callerKey struct{}

// WithCaller returns a context carrying the caller principal.
func WithCaller(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, callerKey{}, p)
}

// CallerFrom returns the caller principal, or "" for an anonymous call.
func CallerFrom(ctx context.Context) model.Principal {
	p, _ := ctx.Value(callerKey{}).(model.Principal)
	return p
}

// CanMutate reports whether caller may change a record owned by owner.
// The component administrator may change any record.
func CanMutate(admin, caller, owner model.Principal) bool {
	if caller == "" {
		return false
	}
	return caller == admin || (owner != "" && caller == owner)
}

// Gate holds the administrator of one component.
type Gate struct {
	component string
	deployer  model.Principal
}

// NewGate creates the gate of component. Until Init or SetAdmin runs, the
// deployer acts as administrator.
func NewGate(component string, deployer model.Principal) *Gate {
	return &Gate{component: component, deployer: deployer}
}

// Component returns the gated component name.
func (g *Gate) Component() string { return g.component }

// Init records the deployer as genesis administrator if none is stored yet.
func (g *Gate) Init(tx repository.Tx) error {
	if repository.Exists(tx, adminBucket, g.component) {
		return nil
	}
	if g.deployer == "" {
		return model.Errorf("access.init", model.ErrInvalidArgument, "no deployer for %s", g.component)
	}
	return repository.Save(tx, adminBucket, g.component, g.deployer)
}

// Admin returns the current administrator.
func (g *Gate) Admin(r repository.Reader) (model.Principal, error) {
	admin, err := repository.Load[model.Principal](r, adminBucket, g.component)
	if errors.Is(err, repository.ErrNotFound) {
		return g.deployer, nil
	}
	if err != nil {
		return "", fmt.Errorf("access.admin: %w", err)
	}
	return admin, nil
}

// Require fails with ErrUnauthorized unless caller is the administrator.
func (g *Gate) Require(r repository.Reader, caller model.Principal) error {
	admin, err := g.Admin(r)
	if err != nil {
		return err
	}
	if caller == "" || caller != admin {
		return model.Errorf(g.component+".require_admin", model.ErrUnauthorized, "caller %q is not the administrator", caller)
	}
	return nil
}

// SetAdmin replaces the administrator. Only the current administrator may.
func (g *Gate) SetAdmin(tx repository.Tx, caller, newAdmin model.Principal) error {
	if err := g.Require(tx, caller); err != nil {
		return err
	}
	if newAdmin == "" {
		return model.Errorf(g.component+".set_admin", model.ErrInvalidArgument, "empty administrator")
	}
	return repository.Save(tx, adminBucket, g.component, newAdmin)
}
