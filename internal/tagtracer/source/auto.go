package source

import (
	"context"
	"errors"
	"log"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

// Auto picks the host capability when it is usable and the simulation
// otherwise.  The choice is made on every call, so a reader that appears
// after a permission grant is picked up by the next scan.
type Auto struct {
	host   *HostSource // nil when the device has no host capability at all
	sim    *Simulated
	logger *log.Logger
}

func NewAuto(h Host, sim *Simulated, logger *log.Logger) *Auto {
	if logger == nil {
		logger = log.Default()
	}
	a := &Auto{sim: sim, logger: logger}
	if h != nil {
		a.host = NewHostSource(h, logger)
	}
	return a
}

func (a *Auto) Name() string { return "auto" }

func (a *Auto) Read(ctx context.Context) (Reading, error) {
	if a.hostUsable() {
		r, err := a.host.Read(ctx)
		if !startFailure(err) {
			return r, err
		}
		a.logger.Printf("host reader unavailable (%v); using simulated reader", err)
	}
	return a.sim.Read(ctx)
}

func (a *Auto) Write(ctx context.Context, accountID string) error {
	if a.hostUsable() {
		err := a.host.Write(ctx, accountID)
		if !errors.Is(err, types.ErrCapabilityUnavailable) {
			return err
		}
		a.logger.Printf("host writer unavailable (%v); using simulated writer", err)
	}
	return a.sim.Write(ctx, accountID)
}

// Current names the variant the next call would try first.
func (a *Auto) Current() string {
	if a.hostUsable() {
		return a.host.Name()
	}
	return a.sim.Name()
}

func (a *Auto) hostUsable() bool {
	return a.host != nil && a.host.host.Supported()
}

func startFailure(err error) bool {
	return errors.Is(err, types.ErrCapabilityUnavailable) || errors.Is(err, types.ErrPermissionDenied)
}
