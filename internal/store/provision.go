// ABOUTME: Process-wide cache of provisioned storage resources
// ABOUTME: Collapses concurrent first-use provisioning calls and remembers successes

package store

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Provisioner remembers which resources (tables, containers) have been
// created. Concurrent first callers for the same resource share one
// provisioning call; successes are remembered, failures are retried by the
// next caller.
type Provisioner struct {
	done  sync.Map // resource -> struct{}
	group singleflight.Group
}

// NewProvisioner returns an empty provisioning cache.
func NewProvisioner() *Provisioner {
	return &Provisioner{}
}

// defaultProvisioner is shared by every SQLiteStorage in the process.
var defaultProvisioner = NewProvisioner()

// Ensure runs create for resource unless it already succeeded. create must
// be idempotent: a process restart or a Forget runs it again.
func (p *Provisioner) Ensure(ctx context.Context, resource string, create func(context.Context) error) error {
	if p.Provisioned(resource) {
		return nil
	}
	_, err, _ := p.group.Do(resource, func() (any, error) {
		if p.Provisioned(resource) {
			return nil, nil
		}
		if err := create(ctx); err != nil {
			return nil, err
		}
		p.done.Store(resource, struct{}{})
		return nil, nil
	})
	return err
}

// Provisioned reports whether resource was provisioned successfully.
func (p *Provisioner) Provisioned(resource string) bool {
	_, ok := p.done.Load(resource)
	return ok
}

// Forget drops the marker for resource so the next Ensure provisions again.
func (p *Provisioner) Forget(resource string) {
	p.done.Delete(resource)
}
