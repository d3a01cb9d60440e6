package maple

import (
	"fmt"

	"github.com/kstaniek/maple-host/internal/logging"
)

// MaxBuses is the largest number of physical bus endpoints one Host
// supports (spec §1 Non-goals: "supporting more than four physical bus
// endpoints in one host").
const MaxBuses = 4

// Bus bundles one physical endpoint's driver, scheduler, and pump. Each Bus
// owns distinct hardware, so no cross-bus locking is needed (spec §5): a
// Host runs its buses' pumps independently, typically one goroutine apiece.
type Bus struct {
	Name      string
	Driver    *BusDriver
	Scheduler *PrioritizedScheduler
	Pump      *MainNode
	Stats     *Stats
}

// Endpoint creates a new EndpointScheduler bound to this bus at priority.
func (b *Bus) Endpoint(priority uint8) *EndpointScheduler {
	return NewEndpointScheduler(b.Scheduler, priority)
}

// Host owns up to MaxBuses Bus instances (spec §2 C6, §5 "the host runs
// multiple buses in parallel"). Open Question 1 (see SPEC_FULL.md) is
// resolved here as one PrioritizedScheduler per bus, not one shared across
// buses, since buses share no hardware and so have no cross-bus fairness
// requirement.
type Host struct {
	buses map[string]*Bus
	order []string
}

// NewHost constructs an empty Host.
func NewHost() *Host {
	return &Host{buses: make(map[string]*Bus)}
}

// AddBus registers a new bus endpoint driven by phy, returning its Bus
// handle. Returns an error if name is already registered or MaxBuses would
// be exceeded.
func (h *Host) AddBus(name string, phy PHY, timing BitTiming) (*Bus, error) {
	if _, exists := h.buses[name]; exists {
		return nil, fmt.Errorf("maple: bus %q already registered", name)
	}
	if len(h.buses) >= MaxBuses {
		return nil, fmt.Errorf("maple: host already has the maximum of %d buses", MaxBuses)
	}
	driver := NewBusDriver(phy, timing)
	driver.Name = name
	scheduler := NewPrioritizedScheduler()
	stats := &Stats{}
	pump := NewMainNode(driver, scheduler, timing)
	pump.Stats = stats
	bus := &Bus{
		Name:      name,
		Driver:    driver,
		Scheduler: scheduler,
		Pump:      pump,
		Stats:     stats,
	}
	h.buses[name] = bus
	h.order = append(h.order, name)
	logging.L().Info("maple_bus_attached", "bus", name, "bus_count", len(h.buses))
	return bus, nil
}

// Bus looks up a registered bus by name.
func (h *Host) Bus(name string) (*Bus, bool) {
	b, ok := h.buses[name]
	return b, ok
}

// Buses returns all registered buses in registration order.
func (h *Host) Buses() []*Bus {
	out := make([]*Bus, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, h.buses[name])
	}
	return out
}

// Tick advances every bus's pump by one cycle at the given time, useful for
// tests and single-goroutine hosts with few buses; production hosts
// typically run one goroutine per bus instead, each calling Pump.Tick in a
// loop against NowMicros().
func (h *Host) Tick(now uint64) {
	for _, name := range h.order {
		h.buses[name].Pump.Tick(now)
	}
}
