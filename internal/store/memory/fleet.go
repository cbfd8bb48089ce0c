package memory

import (
	"sync"

	"github.com/settld/core/internal/domain/operator"
	"github.com/settld/core/internal/domain/robot"
	"github.com/settld/core/internal/outbox/workers"
)

// Fleet is an in-memory workers.FleetDirectory: a per-(tenant,zone) index of
// the latest known robot/operator state. Production wiring backs dispatch
// candidate lookups with the Redis cache named in SPEC_FULL's DOMAIN STACK;
// this is the in-process equivalent cmd/worker uses in memory-store mode and
// that tests construct directly.
type Fleet struct {
	mu        sync.RWMutex
	robots    map[string]map[string]robot.State
	operators map[string]map[string]operator.State
}

func NewFleet() *Fleet {
	return &Fleet{
		robots:    make(map[string]map[string]robot.State),
		operators: make(map[string]map[string]operator.State),
	}
}

func fleetZoneKey(tenantID, zoneID string) string { return tenantID + "/" + zoneID }

// PutRobot records the latest known state for a robot, keyed by its own
// zone. Callers re-Put on every ROBOT_* event so the index never goes stale.
func (f *Fleet) PutRobot(tenantID string, state robot.State) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := fleetZoneKey(tenantID, state.ZoneID)
	if f.robots[key] == nil {
		f.robots[key] = make(map[string]robot.State)
	}

	f.robots[key][state.RobotID] = state
}

// PutOperator records the latest known state for an operator.
func (f *Fleet) PutOperator(tenantID string, state operator.State) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := fleetZoneKey(tenantID, state.ZoneID)
	if f.operators[key] == nil {
		f.operators[key] = make(map[string]operator.State)
	}

	f.operators[key][state.OperatorID] = state
}

func (f *Fleet) RobotsInZone(tenantID, zoneID string) ([]workers.RobotCandidate, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]workers.RobotCandidate, 0, len(f.robots[fleetZoneKey(tenantID, zoneID)]))
	for _, state := range f.robots[fleetZoneKey(tenantID, zoneID)] {
		out = append(out, workers.RobotCandidate{State: state})
	}

	return out, nil
}

func (f *Fleet) OperatorsInZone(tenantID, zoneID string) ([]workers.OperatorCandidate, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]workers.OperatorCandidate, 0, len(f.operators[fleetZoneKey(tenantID, zoneID)]))
	for _, state := range f.operators[fleetZoneKey(tenantID, zoneID)] {
		out = append(out, workers.OperatorCandidate{State: state})
	}

	return out, nil
}
