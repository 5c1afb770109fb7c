package crdt

import (
	"sync"

	"github.com/google/uuid"
)

// Replica is a single collaborator's view of the document: the object
// tree (map/text), the append-only change log keyed by (actor, seq),
// and the bookkeeping needed to apply local and remote Changes (§4.3).
//
// Per §5, the core is a single-threaded, synchronous state machine: both
// Change and ApplyRemote run to completion before returning. The mutex
// only serializes concurrent callers from goroutines external to the
// core; it is not a substitute for the causal-delivery contract those
// callers must honor.
type Replica struct {
	mu sync.Mutex

	Actor string

	clock    Clock
	lastSeen map[string]uint64
	root     *object

	changeLog map[string]map[uint64]*Change
	pending   []*Change
}

// NewReplica creates a replica for actor. An empty actor gets a fresh
// uuid, the way smartramana-developer-mesh mints resource ids.
func NewReplica(actor string) *Replica {
	if actor == "" {
		actor = uuid.NewString()
	}
	return &Replica{
		Actor:     actor,
		clock:     Clock{},
		lastSeen:  map[string]uint64{},
		root:      newMapObject(),
		changeLog: map[string]map[uint64]*Change{},
	}
}

// Clock returns a snapshot of the replica's current vector clock.
func (r *Replica) Clock() Clock {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock.Clone()
}

// PendingCount reports how many remote Changes are buffered awaiting
// their causal dependencies.
func (r *Replica) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Change translates a batch of input operations (§6) into internal ops,
// applies each as it is created, and returns the resulting Change
// record together with the patches produced (§4.3's "local change").
// Op-ids are reserved starting one past the highest counter in the
// replica's clock, across all actors.
func (r *Replica) Change(inputs []InputOp) (*Change, []Patch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deps := r.clock.Clone()
	var maxOp uint64
	for _, c := range r.clock {
		if c > maxOp {
			maxOp = c
		}
	}
	startOp := maxOp + 1
	counter := startOp

	var ops []Op
	var patches []Patch

	for _, in := range inputs {
		subOps, subPatches, err := r.translateAndApply(in, &counter)
		if err != nil {
			return nil, nil, err
		}
		ops = append(ops, subOps...)
		patches = append(patches, subPatches...)
	}

	if len(ops) == 0 {
		return nil, nil, nil
	}

	change := &Change{Actor: r.Actor, Seq: r.lastSeen[r.Actor] + 1, Deps: deps, StartOp: startOp, Ops: ops}
	r.lastSeen[r.Actor] = change.Seq
	r.clock.Advance(r.Actor, counter-1)
	r.logChange(change)

	return change, patches, nil
}

// translateAndApply expands one InputOp into its internal ops (§4.3
// step 3), applying and assigning op-ids to each as it is produced
// (step 4). *counter is advanced past every op-id consumed.
func (r *Replica) translateAndApply(in InputOp, counter *uint64) ([]Op, []Patch, error) {
	next := func() OpID {
		id := OpID{Counter: *counter, Actor: r.Actor}
		*counter++
		return id
	}

	switch in.Action {
	case "makeList", "makeMap", "set", "del":
		op := Op{Action: in.Action, Path: in.Path, Key: in.Key, Value: in.Value}
		opID := next()
		patches, err := applyOp(r.root, op, opID)
		if err != nil {
			return nil, nil, err
		}
		return []Op{op}, patches, nil

	case "insert":
		obj, err := resolveTextObject(r.root, in.Path)
		if err != nil {
			return nil, nil, err
		}
		visLen := obj.text.visibleLength()
		if in.Index < 0 || in.Index > visLen {
			return nil, nil, ErrIndexOutOfBounds
		}
		ref := HeadID
		if in.Index > 0 {
			ref, _ = obj.text.getVisibleElemID(in.Index - 1)
		}

		var ops []Op
		var patches []Patch
		for _, v := range in.Values {
			if len(v) == 0 {
				continue
			}
			op := Op{Action: "insert", Path: in.Path, Ref: ref, Char: v}
			opID := next()
			ps, err := applyOp(r.root, op, opID)
			if err != nil {
				return ops, patches, err
			}
			ops = append(ops, op)
			patches = append(patches, ps...)
			ref = opID
		}
		return ops, patches, nil

	case "delete":
		obj, err := resolveTextObject(r.root, in.Path)
		if err != nil {
			return nil, nil, err
		}
		visLen := obj.text.visibleLength()
		if in.Index < 0 || in.Count < 0 || in.Index+in.Count > visLen {
			return nil, nil, ErrIndexOutOfBounds
		}

		var ops []Op
		var patches []Patch
		for i := 0; i < in.Count; i++ {
			elemID, ok := obj.text.getVisibleElemID(in.Index)
			if !ok {
				return ops, patches, ErrIndexOutOfBounds
			}
			op := Op{Action: "delete", Path: in.Path, ElemID: elemID}
			opID := next()
			ps, err := applyOp(r.root, op, opID)
			if err != nil {
				return ops, patches, err
			}
			ops = append(ops, op)
			patches = append(patches, ps...)
		}
		return ops, patches, nil

	case "addMark", "removeMark":
		obj, err := resolveTextObject(r.root, in.Path)
		if err != nil {
			return nil, nil, err
		}
		start, end, err := resolveMarkAnchors(obj.text, in.MarkType, in.StartIndex, in.EndIndex)
		if err != nil {
			return nil, nil, err
		}
		info, ok := lookupMarkType(in.MarkType)
		if !ok {
			return nil, nil, ErrUnknownMarkType
		}
		kind := AddMark
		if in.Action == "removeMark" {
			kind = RemoveMark
		}
		attrs := in.Attrs
		if kind == AddMark && info.Multi && attrs["id"] == "" {
			attrs = cloneAttrs(attrs)
			attrs["id"] = uuid.NewString()
		}
		if err := clampMarkErr(info, kind, attrs); err != nil {
			return nil, nil, err
		}

		op := Op{Action: in.Action, Path: in.Path, MarkType: in.MarkType, Start: start, End: end, Attrs: attrs}
		opID := next()
		patches, err := applyOp(r.root, op, opID)
		if err != nil {
			return nil, nil, err
		}
		return []Op{op}, patches, nil

	default:
		return nil, nil, ErrUnknownAction
	}
}

// ApplyRemote applies a Change received from another replica (§4.3's
// "remote change"). A duplicate (seq already seen) is dropped
// idempotently with no error. A Change whose seq or deps are not yet
// satisfied is buffered and ErrCausalityViolation is returned so the
// caller knows not to treat it as delivered; it is retried
// automatically once its dependencies arrive via a later ApplyRemote
// call.
func (r *Replica) ApplyRemote(change *Change) ([]Patch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyRemoteLocked(change)
}

func (r *Replica) applyRemoteLocked(change *Change) ([]Patch, error) {
	last := r.lastSeen[change.Actor]
	if change.Seq <= last {
		return nil, nil // DuplicateChange
	}
	if change.Seq != last+1 || !r.clock.Dominates(change.Deps) {
		r.pending = append(r.pending, change)
		return nil, ErrCausalityViolation
	}

	var patches []Patch
	for k, op := range change.Ops {
		opID := change.opIDAt(k)
		ps, err := applyOp(r.root, op, opID)
		if err != nil {
			return patches, err
		}
		patches = append(patches, ps...)
	}

	r.lastSeen[change.Actor] = change.Seq
	if maxID, ok := change.maxOpID(); ok {
		r.clock.Advance(maxID.Actor, maxID.Counter)
	}
	r.logChange(change)

	patches = append(patches, r.drainPendingLocked()...)
	return patches, nil
}

// drainPendingLocked repeatedly scans the buffered Change list for ones
// whose dependencies now hold, applying them until a full pass makes no
// progress. Grounded on the teacher's pendingOrphans buffering in
// rga.go, lifted from per-node to per-Change granularity.
func (r *Replica) drainPendingLocked() []Patch {
	var patches []Patch
	for {
		progressed := false
		remaining := r.pending[:0:0]
		for _, pc := range r.pending {
			last := r.lastSeen[pc.Actor]
			if pc.Seq <= last {
				progressed = true
				continue // now a duplicate, drop
			}
			if pc.Seq == last+1 && r.clock.Dominates(pc.Deps) {
				ps, err := r.applyChangeNoBuffer(pc)
				if err == nil {
					patches = append(patches, ps...)
					progressed = true
					continue
				}
			}
			remaining = append(remaining, pc)
		}
		r.pending = remaining
		if !progressed {
			break
		}
	}
	return patches
}

// applyChangeNoBuffer applies a Change already known to satisfy the
// causal-delivery precondition, without re-buffering it on failure.
func (r *Replica) applyChangeNoBuffer(change *Change) ([]Patch, error) {
	var patches []Patch
	for k, op := range change.Ops {
		opID := change.opIDAt(k)
		ps, err := applyOp(r.root, op, opID)
		if err != nil {
			return patches, err
		}
		patches = append(patches, ps...)
	}
	r.lastSeen[change.Actor] = change.Seq
	if maxID, ok := change.maxOpID(); ok {
		r.clock.Advance(maxID.Actor, maxID.Counter)
	}
	r.logChange(change)
	return patches, nil
}

func cloneAttrs(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs)+1)
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func (r *Replica) logChange(change *Change) {
	byActor, ok := r.changeLog[change.Actor]
	if !ok {
		byActor = map[uint64]*Change{}
		r.changeLog[change.Actor] = byActor
	}
	byActor[change.Seq] = change
}

// ChangeByActorSeq returns the logged Change for (actor, seq), if any.
func (r *Replica) ChangeByActorSeq(actor string, seq uint64) (*Change, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byActor, ok := r.changeLog[actor]
	if !ok {
		return nil, false
	}
	c, ok := byActor[seq]
	return c, ok
}
