package source

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/codec"
	"github.com/BrandonDHaskell/tagtracer/internal/tagtracer/types"
)

var (
	simReadFailures = []types.ErrorKind{
		types.ErrTagIncompatible,
		types.ErrTagMovedTooQuickly,
		types.ErrUnreadableData,
		types.ErrInvalidFormat,
	}
	simWriteFailures = []types.ErrorKind{
		types.ErrTagNotWritable,
		types.ErrTagMovedTooQuickly,
		types.ErrWriteFailed,
		types.ErrTagIncompatible,
	}
)

// SimConfig holds the parameters for NewSimulated.
type SimConfig struct {
	// Delay before each read or write completes.  Zero means the 2s default;
	// a negative value means no delay.
	Delay time.Duration

	// SuccessRate is the probability an operation succeeds.  Zero means the
	// 0.8 default; config.CheckSim keeps an explicit 0 from reaching here.
	SuccessRate float64

	// DemoID, when set, is returned on DemoRate of successful reads instead
	// of a random id.
	DemoID   string
	DemoRate float64

	// Rand seeds the simulation.  Nil uses a randomly seeded source.
	Rand *rand.Rand
}

// Simulated stands in for a reader on devices without one.
type Simulated struct {
	cfg SimConfig

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

func NewSimulated(cfg SimConfig) *Simulated {
	if cfg.Delay == 0 {
		cfg.Delay = 2 * time.Second
	}
	if cfg.SuccessRate <= 0 || cfg.SuccessRate > 1 {
		cfg.SuccessRate = 0.8
	}
	if cfg.DemoID != "" && codec.ValidateAccountID(cfg.DemoID) != nil {
		cfg.DemoID = ""
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Simulated{cfg: cfg, rng: rng}
}

func (s *Simulated) Name() string { return "simulated" }

func (s *Simulated) Read(ctx context.Context) (Reading, error) {
	if err := s.wait(ctx); err != nil {
		return Reading{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() >= s.cfg.SuccessRate {
		return Reading{}, simReadFailures[s.rng.IntN(len(simReadFailures))]
	}

	id := fmt.Sprintf("%05d", s.rng.IntN(100000))
	if s.cfg.DemoID != "" && s.rng.Float64() < s.cfg.DemoRate {
		id = s.cfg.DemoID
	}
	return Reading{AccountID: id, Origin: types.OriginSimulated, Source: s.Name()}, nil
}

func (s *Simulated) Write(ctx context.Context, accountID string) error {
	if err := codec.ValidateAccountID(accountID); err != nil {
		return err
	}
	if err := s.wait(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() >= s.cfg.SuccessRate {
		return simWriteFailures[s.rng.IntN(len(simWriteFailures))]
	}
	return nil
}

// wait sleeps for the configured delay.  The timer is stopped on
// cancellation so nothing fires into an abandoned scan.
func (s *Simulated) wait(ctx context.Context) error {
	if s.cfg.Delay < 0 {
		return ctx.Err()
	}
	t := time.NewTimer(s.cfg.Delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
