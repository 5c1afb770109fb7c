package crdt

import "math"

// tailID is a reserved sentinel marking the gap after the last real
// element, symmetric with HeadID. No actor-generated OpID can collide
// with it: actor counters are assigned from 1 upward by the change
// engine, far below math.MaxUint64, and the empty actor name is never
// used for a real op.
var tailID = OpID{Counter: math.MaxUint64, Actor: ""}

// slot is one element-metadata record (§3: "Element metadata"). A slot
// exists for as long as the replica does, whether or not it is deleted
// — this is the tombstone (I4).
type slot struct {
	elemID   OpID
	parentID OpID // the reference element this was inserted after
	value    rune
	deleted  bool

	// markOpsBefore/markOpsAfter are full snapshots (not deltas) of the
	// mark-ops active in the gap preceding/following this character.
	// See §4.2 and the mark engine's effective-marks walk.
	markOpsBefore map[OpID]*MarkOp
	markOpsAfter  map[OpID]*MarkOp

	next *slot
}

// sequence is the RGA-style ordered list of slots: a singly-linked list
// addressed by a registry for O(1) lookup by elemID, bracketed by fixed
// head/tail sentinels so startOfText/endOfText mark anchors always have
// somewhere to live (see DESIGN.md's resolution of that open
// question).
type sequence struct {
	registry map[OpID]*slot
	head     *slot
	tail     *slot
}

func newSequence() *sequence {
	head := &slot{elemID: HeadID}
	tail := &slot{elemID: tailID}
	head.next = tail

	return &sequence{
		registry: map[OpID]*slot{HeadID: head, tailID: tail},
		head:     head,
		tail:     tail,
	}
}

// insertAfter creates a new slot holding value immediately after ref
// (HeadID for index 0), following the RGA insertion rule of §4.1: scan
// forward from ref skipping every slot whose elemID is greater than id
// (concurrent inserts at ref and everything inserted after them), and
// insert before the first whose elemID is less (or before the tail).
// This guarantees convergence for concurrent inserts at the same
// reference (I3).
func (s *sequence) insertAfter(ref OpID, value rune, id OpID) error {
	parent, ok := s.registry[ref]
	if !ok {
		return newIntegrityError(ErrUnknownElemID)
	}

	newSlot := &slot{elemID: id, parentID: ref, value: value}

	prev := parent
	current := parent.next
	for current != s.tail && current.elemID.Greater(id) {
		prev = current
		current = current.next
	}

	newSlot.next = current
	prev.next = newSlot
	s.registry[id] = newSlot
	return nil
}

// delete marks the slot deleted=true. A second delete of an
// already-tombstoned slot is a no-op and must not alter visible indices
// or mark maps.
func (s *sequence) delete(elemID OpID) error {
	sl, ok := s.registry[elemID]
	if !ok {
		return newIntegrityError(ErrUnknownElemID)
	}
	sl.deleted = true
	return nil
}

// getVisibleElemID returns the elemID of the visibleIndex-th non-deleted
// slot (0-based).
func (s *sequence) getVisibleElemID(visibleIndex int) (OpID, bool) {
	count := 0
	for cur := s.head.next; cur != s.tail; cur = cur.next {
		if cur.deleted {
			continue
		}
		if count == visibleIndex {
			return cur.elemID, true
		}
		count++
	}
	return OpID{}, false
}

// findSlot returns the number of non-deleted slots strictly preceding
// elemID (I7) and whether elemID itself is currently deleted.
func (s *sequence) findSlot(elemID OpID) (visibleCount int, deleted bool, ok bool) {
	if elemID == HeadID {
		return 0, false, true
	}
	count := 0
	for cur := s.head.next; cur != s.tail; cur = cur.next {
		if cur.elemID == elemID {
			return count, cur.deleted, true
		}
		if !cur.deleted {
			count++
		}
	}
	if elemID == tailID {
		return count, false, true
	}
	return 0, false, false
}

// length returns the total number of real slots, tombstones included.
func (s *sequence) length() int {
	n := 0
	for cur := s.head.next; cur != s.tail; cur = cur.next {
		n++
	}
	return n
}

// visibleLength returns the number of non-deleted real slots.
func (s *sequence) visibleLength() int {
	n := 0
	for cur := s.head.next; cur != s.tail; cur = cur.next {
		if !cur.deleted {
			n++
		}
	}
	return n
}

// slotAt returns the slot for a given elemID, including the head/tail
// sentinels.
func (s *sequence) slotAt(elemID OpID) (*slot, bool) {
	sl, ok := s.registry[elemID]
	return sl, ok
}

// walk invokes fn for every real slot in document order, head to tail
// exclusive.
func (s *sequence) walk(fn func(sl *slot)) {
	for cur := s.head.next; cur != s.tail; cur = cur.next {
		fn(cur)
	}
}
