package crdt

import "sort"

// MarkKind distinguishes an add from a remove mark-op.
type MarkKind int

const (
	AddMark MarkKind = iota
	RemoveMark
)

func (k MarkKind) String() string {
	if k == AddMark {
		return "addMark"
	}
	return "removeMark"
}

// AnchorSide selects which gap adjacent to a slot an anchor names: the
// gap preceding the character, or the gap following it.
type AnchorSide int

const (
	AnchorBefore AnchorSide = iota
	AnchorAfter
)

// Anchor is a mark endpoint: a boundary anchor per §4.2, pointing at the
// before-gap or after-gap of a specific slot. startOfText and endOfText
// are represented as the after-gap of the head sentinel and the
// before-gap of the tail sentinel respectively (see sequence.go) so that
// they always have somewhere to live, including in an empty document.
type Anchor struct {
	Side   AnchorSide
	ElemID OpID
}

// StartOfText and EndOfText bind to the ends of the document.
var (
	StartOfText = Anchor{Side: AnchorAfter, ElemID: HeadID}
	EndOfText   = Anchor{Side: AnchorBefore, ElemID: tailID}
)

// MarkOp is a single addMark/removeMark operation anchored to a range of
// the sequence.
type MarkOp struct {
	ID       OpID
	Kind     MarkKind
	MarkType string
	Start    Anchor
	End      Anchor
	Attrs    map[string]string
}

// markTypeInfo describes a mark type's multiplicity and growth rules
// (the table in §3).
type markTypeInfo struct {
	Multi         bool
	Inclusive     bool // right-inclusive: grows on right insert
	LeftGrowing   bool // grows on left insert
	RequiredAttrs []string
}

// markTypeTable hard-codes leftGrowing=false for every mark type, per the
// reference implementation referenced in §9's open questions. See
// DESIGN.md for why this repo keeps that choice rather than exposing
// left-growth per type.
var markTypeTable = map[string]markTypeInfo{
	"strong":  {Multi: false, Inclusive: true, LeftGrowing: false},
	"em":      {Multi: false, Inclusive: true, LeftGrowing: false},
	"link":    {Multi: false, Inclusive: false, LeftGrowing: false, RequiredAttrs: []string{"url"}},
	"comment": {Multi: true, Inclusive: false, LeftGrowing: false, RequiredAttrs: []string{"id"}},
}

func lookupMarkType(markType string) (markTypeInfo, bool) {
	info, ok := markTypeTable[markType]
	return info, ok
}

// MarkMap is the effective set of marks active at a position (§4.2's
// "resolving an active-ops set to a mark map").
type MarkMap struct {
	// Single holds, for single-valued mark types, the attrs of the
	// currently-winning addMark (an empty, non-nil map if it carries no
	// attrs, e.g. strong/em).
	Single map[string]map[string]string
	// Multi holds, for multi-valued mark types, the id->attrs of every
	// currently-present entry.
	Multi map[string]map[string]map[string]string
}

// NewMarkMap returns an empty mark map.
func NewMarkMap() MarkMap {
	return MarkMap{Single: map[string]map[string]string{}, Multi: map[string]map[string]map[string]string{}}
}

// Equal reports whether two mark maps are identical.
func (m MarkMap) Equal(other MarkMap) bool {
	if len(m.Single) != len(other.Single) || len(m.Multi) != len(other.Multi) {
		return false
	}
	for k, v := range m.Single {
		ov, ok := other.Single[k]
		if !ok || !attrsEqual(v, ov) {
			return false
		}
	}
	for k, ids := range m.Multi {
		oids, ok := other.Multi[k]
		if !ok || len(ids) != len(oids) {
			return false
		}
		for id, attrs := range ids {
			oattrs, ok := oids[id]
			if !ok || !attrsEqual(attrs, oattrs) {
				return false
			}
		}
	}
	return true
}

func attrsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// MarkTypes returns the sorted names of single-valued marks active and
// multi-valued marks with at least one present id, for readable output.
func (m MarkMap) MarkTypes() []string {
	names := make([]string, 0, len(m.Single)+len(m.Multi))
	for k := range m.Single {
		names = append(names, k)
	}
	for k, ids := range m.Multi {
		if len(ids) > 0 {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// resolveActiveSet turns a snapshot of active mark-ops into an effective
// MarkMap per I5/I6: for single-valued marks the op with the greatest
// op-id wins; for multi-valued marks each id is judged independently by
// last-writer-wins.
func resolveActiveSet(active map[OpID]*MarkOp) MarkMap {
	result := NewMarkMap()

	bestSingle := map[string]*MarkOp{}
	bestMulti := map[string]map[string]*MarkOp{} // markType -> id -> winning op

	for _, op := range active {
		info, ok := lookupMarkType(op.MarkType)
		if !ok {
			continue
		}
		if info.Multi {
			id := op.Attrs["id"]
			byID := bestMulti[op.MarkType]
			if byID == nil {
				byID = map[string]*MarkOp{}
				bestMulti[op.MarkType] = byID
			}
			if cur, ok := byID[id]; !ok || op.ID.Greater(cur.ID) {
				byID[id] = op
			}
		} else {
			if cur, ok := bestSingle[op.MarkType]; !ok || op.ID.Greater(cur.ID) {
				bestSingle[op.MarkType] = op
			}
		}
	}

	for markType, op := range bestSingle {
		if op.Kind == AddMark {
			attrs := op.Attrs
			if attrs == nil {
				attrs = map[string]string{}
			}
			result.Single[markType] = attrs
		}
	}
	for markType, byID := range bestMulti {
		present := map[string]map[string]string{}
		for id, op := range byID {
			if op.Kind == AddMark {
				attrs := op.Attrs
				if attrs == nil {
					attrs = map[string]string{}
				}
				present[id] = attrs
			}
		}
		if len(present) > 0 {
			result.Multi[markType] = present
		}
	}
	return result
}

// resolveMarkAnchors converts a half-open visible index range
// [startIndex, endIndex) into the boundary anchors for markType,
// following §4.2's per-side growth rules: a growing side anchors to the
// gap beyond the range (so a later insertion right at the boundary is
// swept in); a non-growing side anchors tightly to the existing
// boundary character.
func resolveMarkAnchors(seq *sequence, markType string, startIndex, endIndex int) (Anchor, Anchor, error) {
	info, ok := lookupMarkType(markType)
	if !ok {
		return Anchor{}, Anchor{}, ErrUnknownMarkType
	}

	visLen := seq.visibleLength()
	if startIndex < 0 || endIndex > visLen || startIndex > endIndex {
		return Anchor{}, Anchor{}, ErrIndexOutOfBounds
	}

	var start Anchor
	if info.LeftGrowing {
		if startIndex > 0 {
			prevID, _ := seq.getVisibleElemID(startIndex - 1)
			start = Anchor{Side: AnchorAfter, ElemID: prevID}
		} else {
			start = StartOfText
		}
	} else {
		startID, _ := seq.getVisibleElemID(startIndex)
		start = Anchor{Side: AnchorBefore, ElemID: startID}
	}

	var end Anchor
	if info.Inclusive {
		if endIndex < visLen {
			endID, _ := seq.getVisibleElemID(endIndex)
			end = Anchor{Side: AnchorBefore, ElemID: endID}
		} else {
			end = EndOfText
		}
	} else {
		lastID, _ := seq.getVisibleElemID(endIndex - 1)
		end = Anchor{Side: AnchorAfter, ElemID: lastID}
	}

	return start, end, nil
}

// cloneMarkOps returns an independent copy of set (nil treated as empty),
// so a snapshot taken for later use survives in-place mutation of the
// map it was read from.
func cloneMarkOps(set map[OpID]*MarkOp) map[OpID]*MarkOp {
	fresh := make(map[OpID]*MarkOp, len(set)+1)
	for id, o := range set {
		fresh[id] = o
	}
	return fresh
}

// applyMarkOp anchors op into the sequence's stored mark-op sets. The
// op is merged into every stored snapshot in the half-open range
// [op.Start, op.End) — including seeding a fresh snapshot at op.Start
// itself if none exists yet, and updating every existing nested
// boundary strictly inside the range so each remains an accurate full
// snapshot (§4.2, §9's "storage form" note). op.End is the turn-off
// boundary: it is never given op, and a fresh op-free snapshot is
// seeded there if none exists, so the mark does not bleed into
// whatever follows.
func applyMarkOp(seq *sequence, op *MarkOp) error {
	if _, ok := seq.slotAt(op.Start.ElemID); !ok {
		return newIntegrityError(ErrUnknownElemID)
	}
	if _, ok := seq.slotAt(op.End.ElemID); !ok {
		return newIntegrityError(ErrUnknownElemID)
	}

	type position struct {
		sl   *slot
		side AnchorSide
	}

	var positions []position
	positions = append(positions, position{seq.head, AnchorAfter})
	seq.walk(func(sl *slot) {
		positions = append(positions, position{sl, AnchorBefore})
		positions = append(positions, position{sl, AnchorAfter})
	})
	positions = append(positions, position{seq.tail, AnchorBefore})

	preRunning := map[OpID]*MarkOp{} // the active set as it stood before op, tracked independent of op's own mutations
	during := false

	for _, pos := range positions {
		anchor := Anchor{Side: pos.side, ElemID: pos.sl.elemID}
		isStart := anchor == op.Start
		isEnd := anchor == op.End

		stored := storedSetAt(pos.sl, pos.side)
		if stored != nil {
			preRunning = cloneMarkOps(stored)
		}

		if isEnd {
			during = false
		}
		if isStart {
			during = true
		}

		switch {
		case isStart:
			if stored != nil {
				stored[op.ID] = op
			} else {
				fresh := cloneMarkOps(preRunning)
				fresh[op.ID] = op
				setStoredSetAt(pos.sl, pos.side, fresh)
			}
		case isEnd:
			if stored != nil {
				delete(stored, op.ID)
			} else {
				setStoredSetAt(pos.sl, pos.side, cloneMarkOps(preRunning))
			}
		case during:
			if stored != nil {
				stored[op.ID] = op
			}
		}
	}

	return nil
}

func storedSetAt(sl *slot, side AnchorSide) map[OpID]*MarkOp {
	if side == AnchorBefore {
		return sl.markOpsBefore
	}
	return sl.markOpsAfter
}

func setStoredSetAt(sl *slot, side AnchorSide, set map[OpID]*MarkOp) {
	if side == AnchorBefore {
		sl.markOpsBefore = set
	} else {
		sl.markOpsAfter = set
	}
}

// effectiveMarksByElem walks the whole document left to right and
// returns, for every real slot in order, the MarkMap effective at that
// character (§4.2's running "active ops" walk).
func effectiveMarksByElem(seq *sequence) []struct {
	ElemID  OpID
	Deleted bool
	Value   rune
	Marks   MarkMap
} {
	type row = struct {
		ElemID  OpID
		Deleted bool
		Value   rune
		Marks   MarkMap
	}
	var rows []row

	running := map[OpID]*MarkOp{}
	if seq.head.markOpsAfter != nil {
		running = seq.head.markOpsAfter
	}

	seq.walk(func(sl *slot) {
		if sl.markOpsBefore != nil {
			running = sl.markOpsBefore
		}
		rows = append(rows, row{ElemID: sl.elemID, Deleted: sl.deleted, Value: sl.value, Marks: resolveActiveSet(running)})
		if sl.markOpsAfter != nil {
			running = sl.markOpsAfter
		}
	})
	return rows
}

// activeMarksBeforeVisibleIndex returns the marks effective in the gap
// immediately preceding the visibleIndex-th visible character (used by
// getActiveMarksAtIndex). An index equal to the visible length refers to
// the gap at the very end of the document.
func activeMarksBeforeVisibleIndex(seq *sequence, visibleIndex int) MarkMap {
	running := map[OpID]*MarkOp{}
	if seq.head.markOpsAfter != nil {
		running = seq.head.markOpsAfter
	}

	seen := 0
	result := resolveActiveSet(running)
	found := visibleIndex == 0

	seq.walk(func(sl *slot) {
		if sl.markOpsBefore != nil {
			running = sl.markOpsBefore
		}
		if !found && !sl.deleted && seen == visibleIndex {
			result = resolveActiveSet(running)
			found = true
		}
		if !sl.deleted {
			seen++
		}
		if sl.markOpsAfter != nil {
			running = sl.markOpsAfter
		}
		if !found && seen == visibleIndex {
			result = resolveActiveSet(running)
			found = true
		}
	})
	return result
}
