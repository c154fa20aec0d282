package adapters

import (
	"context"
	"sync"

	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/telemetry"
)

// Manager owns the lifecycle of a set of Adapters, generalizing the
// teacher's CoinManager (main.go) which held a []Exchange and started
// each on its own goroutine, fanning all of them into one trade channel.
type Manager struct {
	adapters []Adapter
	log      *telemetry.Logger
}

func NewManager(adapters ...Adapter) *Manager {
	return &Manager{adapters: adapters, log: telemetry.New("adapter_manager")}
}

// Register adds an adapter before Start is called.
func (m *Manager) Register(a Adapter) {
	m.adapters = append(m.adapters, a)
}

// Start launches every registered adapter on its own goroutine, all
// fanning into out. It returns once every adapter goroutine has exited
// (i.e. once ctx is cancelled and every adapter has drained).
func (m *Manager) Start(ctx context.Context, out chan<- domain.RawSignal) {
	var wg sync.WaitGroup
	for _, a := range m.adapters {
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()
			m.log.Info("starting adapter %s", a.Name())
			a.Start(ctx, out)
			m.log.Info("adapter %s stopped", a.Name())
		}(a)
	}
	wg.Wait()
}
