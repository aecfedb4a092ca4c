package replication

import (
	"sync"
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
)

// Correction tells the client to snap a predicted entity back to the
// authoritative state and replay the inputs the server had not yet
// processed, starting at input sequence ReplayFrom.
type Correction struct {
	Entity        domain.EntityID
	Authoritative domain.Entity
	ReplayFrom    uint32
}

// Predictor applies local inputs to owned entities immediately, then
// reconciles each predicted state against the authoritative one when
// a snapshot arrives. States within the configured epsilons are left
// alone so the view does not jitter on float noise.
type Predictor struct {
	mu       sync.Mutex
	epsPos   float32
	epsRot   float32
	maxSpeed float32
	states   map[domain.EntityID]*domain.Entity
}

// NewPredictor creates a predictor. epsPos and epsRot are the
// divergence thresholds below which the prediction is considered
// correct; maxSpeed matches the server's movement clamp.
func NewPredictor(epsPos, epsRot, maxSpeed float32) *Predictor {
	return &Predictor{
		epsPos:   epsPos,
		epsRot:   epsRot,
		maxSpeed: maxSpeed,
		states:   make(map[domain.EntityID]*domain.Entity),
	}
}

// Claim starts predicting an entity from its current known state.
func (p *Predictor) Claim(e domain.Entity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	stored := e
	p.states[e.ID] = &stored
}

// Release stops predicting an entity.
func (p *Predictor) Release(id domain.EntityID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.states, id)
}

// Step advances a predicted entity by one input, using the same
// movement model the server applies, and returns the new state.
func (p *Predictor) Step(id domain.EntityID, in InputSample, dt time.Duration) (domain.Entity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.states[id]
	if !ok {
		return domain.Entity{}, false
	}
	advance(e, in, dt, p.maxSpeed)
	return *e, true
}

// State returns the current predicted state of an entity.
func (p *Predictor) State(id domain.EntityID) (domain.Entity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.states[id]
	if !ok {
		return domain.Entity{}, false
	}
	return *e, true
}

// Reconcile compares the authoritative state against the prediction.
// Divergence within the epsilons keeps the predicted state untouched
// and returns no correction. Beyond them the predicted state snaps to
// the authoritative one and a single Correction is returned telling
// the caller to replay inputs from replayFrom.
func (p *Predictor) Reconcile(auth domain.Entity, replayFrom uint32) (Correction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.states[auth.ID]
	if !ok {
		return Correction{}, false
	}

	posDiff := e.Position.Distance(auth.Position)
	rotDiff := e.Rotation.Distance(auth.Rotation)
	if posDiff <= p.epsPos && rotDiff <= p.epsRot {
		return Correction{}, false
	}

	stored := auth
	p.states[auth.ID] = &stored
	return Correction{
		Entity:        auth.ID,
		Authoritative: auth,
		ReplayFrom:    replayFrom,
	}, true
}
