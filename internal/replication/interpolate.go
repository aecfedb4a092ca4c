package replication

import (
	"sync"
	"time"

	"github.com/unknownsaying/meshsync/internal/core/domain"
	"github.com/unknownsaying/meshsync/pkg/vmath"
)

// View is a smoothed, render-ready entity state. Stale is set once no
// update has arrived for longer than the staleness cutoff; the pose is
// then held at the last known state rather than extrapolated.
type View struct {
	Entity   domain.EntityID
	Owner    domain.PeerID
	Type     domain.EntityType
	Position vmath.Vec3
	Rotation vmath.Quat
	Velocity vmath.Vec3
	Stale    bool
}

type keyframe struct {
	pose domain.Pose
	vel  vmath.Vec3
	at   time.Time
}

type interpState struct {
	owner domain.PeerID
	typ   domain.EntityType
	prev  keyframe
	next  keyframe
}

// Interpolator renders remote entities a small, fixed window behind
// the latest received state so motion stays smooth across the gaps
// between snapshots. It keeps two keyframes per entity and blends
// between them.
type Interpolator struct {
	mu     sync.RWMutex
	window time.Duration
	cutoff time.Duration
	states map[domain.EntityID]*interpState
}

// NewInterpolator creates an interpolator. window is the default blend
// delay; cutoff is how long without updates before an entity is
// reported stale.
func NewInterpolator(window, cutoff time.Duration) *Interpolator {
	return &Interpolator{
		window: window,
		cutoff: cutoff,
		states: make(map[domain.EntityID]*interpState),
	}
}

// Observe records a received entity delta. The previous target becomes
// the blend start and the delta becomes the blend target. Fields the
// delta's mask leaves out inherit the previous target's values.
func (ip *Interpolator) Observe(d domain.EntityDelta, at time.Time) {
	ip.mu.Lock()
	defer ip.mu.Unlock()

	st, ok := ip.states[d.ID]
	if !ok {
		kf := keyframe{
			pose: domain.Pose{Position: d.Position, Rotation: d.Rotation},
			vel:  d.Velocity,
			at:   at,
		}
		if d.Mask&domain.MaskRotation == 0 {
			kf.pose.Rotation = vmath.QuatIdentity
		}
		ip.states[d.ID] = &interpState{owner: d.Owner, typ: d.Type, prev: kf, next: kf}
		return
	}

	st.owner = d.Owner
	st.typ = d.Type
	kf := st.next
	kf.at = at
	if d.Mask&domain.MaskPosition != 0 {
		kf.pose.Position = d.Position
	}
	if d.Mask&domain.MaskRotation != 0 {
		kf.pose.Rotation = d.Rotation
	}
	if d.Mask&domain.MaskVelocity != 0 {
		kf.vel = d.Velocity
	}
	st.prev = st.next
	st.next = kf
}

// Forget drops an entity from the interpolator.
func (ip *Interpolator) Forget(id domain.EntityID) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	delete(ip.states, id)
}

// At returns the entity's view for render time now. The pose shown is
// the state as of now minus the interpolation window, blended between
// the two most recent keyframes.
func (ip *Interpolator) At(id domain.EntityID, now time.Time) (View, bool) {
	ip.mu.RLock()
	defer ip.mu.RUnlock()

	st, ok := ip.states[id]
	if !ok {
		return View{}, false
	}

	v := View{
		Entity:   id,
		Owner:    st.owner,
		Type:     st.typ,
		Velocity: st.next.vel,
	}
	if now.Sub(st.next.at) > ip.cutoff {
		v.Stale = true
		v.Position = st.next.pose.Position
		v.Rotation = st.next.pose.Rotation
		return v, true
	}

	target := now.Add(-ip.window)
	span := st.next.at.Sub(st.prev.at)
	var alpha float32
	if span <= 0 {
		alpha = 1
	} else {
		alpha = vmath.Clamp01(float32(target.Sub(st.prev.at)) / float32(span))
	}
	v.Position = vmath.Lerp(st.prev.pose.Position, st.next.pose.Position, alpha)
	v.Rotation = vmath.Nlerp(st.prev.pose.Rotation, st.next.pose.Rotation, alpha)
	return v, true
}

// Views returns the current view of every tracked entity.
func (ip *Interpolator) Views(now time.Time) []View {
	ip.mu.RLock()
	ids := make([]domain.EntityID, 0, len(ip.states))
	for id := range ip.states {
		ids = append(ids, id)
	}
	ip.mu.RUnlock()

	out := make([]View, 0, len(ids))
	for _, id := range ids {
		if v, ok := ip.At(id, now); ok {
			out = append(out, v)
		}
	}
	return out
}
