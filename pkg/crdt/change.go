package crdt

import (
	"encoding/json"
	"fmt"
)

// InputOp is one element of the input-operation JSON dispatched on
// Action (§6). A caller submits a batch of these to Replica.Change.
type InputOp struct {
	Action     string            `json:"action"`
	Path       string            `json:"path"`
	Key        string            `json:"key,omitempty"`
	Value      any               `json:"value,omitempty"`
	Index      int               `json:"index,omitempty"`
	Values     []string          `json:"values,omitempty"`
	Count      int               `json:"count,omitempty"`
	StartIndex int               `json:"startIndex,omitempty"`
	EndIndex   int               `json:"endIndex,omitempty"`
	MarkType   string            `json:"markType,omitempty"`
	Attrs      map[string]string `json:"attrs,omitempty"`
}

// Op is one internal, already-resolved operation contained in a Change.
// Its op-id is never stored directly: the k-th op in a Change's Ops
// slice has op-id (startOp+k, actor) (§3).
type Op struct {
	Action   string
	Path     string
	Key      string
	Value    any
	Char     string // single-character payload for "insert"
	Ref      OpID   // reference element for "insert" (HeadID or a prior char)
	ElemID   OpID   // target element for "delete"
	MarkType string
	Start    Anchor
	End      Anchor
	Attrs    map[string]string
}

type opWire struct {
	Action   string            `json:"action"`
	Path     string            `json:"path,omitempty"`
	Key      string            `json:"key,omitempty"`
	Value    any               `json:"value,omitempty"`
	Char     string            `json:"char,omitempty"`
	Ref      string            `json:"ref,omitempty"`
	ElemID   string            `json:"elemId,omitempty"`
	MarkType string            `json:"markType,omitempty"`
	Start    *anchorJSON       `json:"start,omitempty"`
	End      *anchorJSON       `json:"end,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// MarshalJSON renders an Op the way it appears, opId-less, inside a
// Change record (§6).
func (o Op) MarshalJSON() ([]byte, error) {
	w := opWire{
		Action: o.Action, Path: o.Path, Key: o.Key, Value: o.Value,
		Char: o.Char, MarkType: o.MarkType, Attrs: o.Attrs,
	}
	if o.Action == "insert" {
		w.Ref = opIDString(o.Ref)
	}
	if o.Action == "delete" {
		w.ElemID = opIDString(o.ElemID)
	}
	if o.Action == "addMark" || o.Action == "removeMark" {
		start := encodeAnchor(o.Start)
		end := encodeAnchor(o.End)
		w.Start, w.End = &start, &end
	}
	return json.Marshal(w)
}

// UnmarshalJSON reconstructs an Op from its wire form.
func (o *Op) UnmarshalJSON(data []byte) error {
	var w opWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*o = Op{Action: w.Action, Path: w.Path, Key: w.Key, Value: w.Value, Char: w.Char, MarkType: w.MarkType, Attrs: w.Attrs}
	var err error
	if w.Ref != "" {
		if o.Ref, err = parseOpID(w.Ref); err != nil {
			return err
		}
	}
	if w.ElemID != "" {
		if o.ElemID, err = parseOpID(w.ElemID); err != nil {
			return err
		}
	}
	if w.Start != nil {
		if o.Start, err = decodeAnchor(*w.Start); err != nil {
			return err
		}
	}
	if w.End != nil {
		if o.End, err = decodeAnchor(*w.End); err != nil {
			return err
		}
	}
	return nil
}

// Change is an atomic batch of operations with causal dependencies
// (§3). ops are stored without op-ids; the k-th op's id is
// (startOp+k, actor).
type Change struct {
	Actor   string `json:"actor"`
	Seq     uint64 `json:"seq"`
	Deps    Clock  `json:"deps"`
	StartOp uint64 `json:"startOp"`
	Ops     []Op   `json:"ops"`
}

// opIDAt returns the op-id of the k-th op in the Change.
func (c *Change) opIDAt(k int) OpID {
	return OpID{Counter: c.StartOp + uint64(k), Actor: c.Actor}
}

// maxOpID returns the highest op-id the Change introduces, used to
// advance the replica's clock.
func (c *Change) maxOpID() (OpID, bool) {
	if len(c.Ops) == 0 {
		return OpID{}, false
	}
	return c.opIDAt(len(c.Ops) - 1), true
}

func clampMarkErr(info markTypeInfo, kind MarkKind, attrs map[string]string) error {
	requireAttrs := false
	if kind == AddMark {
		requireAttrs = len(info.RequiredAttrs) > 0
	} else {
		// removeMark: only multi-valued types need attrs to know which
		// entry to remove. Single-valued marks resolve by LWW regardless
		// of attrs (§9's open-question resolution).
		requireAttrs = info.Multi
	}
	if !requireAttrs {
		return nil
	}
	for _, key := range info.RequiredAttrs {
		if attrs[key] == "" {
			return ErrAttrsMissing
		}
	}
	return nil
}

// applyOp applies a single already-resolved internal Op to root,
// assigning it opID. It returns any patches the application produces.
func applyOp(root *object, op Op, opID OpID) ([]Patch, error) {
	switch op.Action {
	case "makeList":
		parent, err := resolveObject(root, op.Path)
		if err != nil {
			return nil, err
		}
		if err := setField(parent, op.Key, opID, nil, newTextObject(), false); err != nil {
			return nil, err
		}
		return []Patch{{Action: PatchMakeList, Path: op.Path, Key: op.Key}}, nil

	case "makeMap":
		parent, err := resolveObject(root, op.Path)
		if err != nil {
			return nil, err
		}
		if err := setField(parent, op.Key, opID, nil, newMapObject(), false); err != nil {
			return nil, err
		}
		return nil, nil

	case "set":
		parent, err := resolveObject(root, op.Path)
		if err != nil {
			return nil, err
		}
		if err := setField(parent, op.Key, opID, op.Value, nil, false); err != nil {
			return nil, err
		}
		return nil, nil

	case "del":
		parent, err := resolveObject(root, op.Path)
		if err != nil {
			return nil, err
		}
		if err := setField(parent, op.Key, opID, nil, nil, true); err != nil {
			return nil, err
		}
		return nil, nil

	case "insert":
		obj, err := resolveTextObject(root, op.Path)
		if err != nil {
			return nil, err
		}
		if len(op.Char) == 0 {
			return nil, fmt.Errorf("crdt: empty insert payload")
		}
		value := []rune(op.Char)[0]
		if err := obj.text.insertAfter(op.Ref, value, opID); err != nil {
			return nil, err
		}
		marks := marksAtElem(obj.text, opID)
		return []Patch{insertPatchFor(op.Path, obj.text, opID, value, marks)}, nil

	case "delete":
		obj, err := resolveTextObject(root, op.Path)
		if err != nil {
			return nil, err
		}
		index, deleted, ok := obj.text.findSlot(op.ElemID)
		if !ok {
			return nil, newIntegrityError(ErrUnknownElemID)
		}
		if deleted {
			return nil, nil // already a tombstone: nothing visible changes
		}
		if err := obj.text.delete(op.ElemID); err != nil {
			return nil, err
		}
		return []Patch{{Action: PatchDelete, Path: op.Path, Index: index, Count: 1}}, nil

	case "addMark", "removeMark":
		obj, err := resolveTextObject(root, op.Path)
		if err != nil {
			return nil, err
		}
		info, ok := lookupMarkType(op.MarkType)
		if !ok {
			return nil, ErrUnknownMarkType
		}
		kind := AddMark
		if op.Action == "removeMark" {
			kind = RemoveMark
		}
		if err := clampMarkErr(info, kind, op.Attrs); err != nil {
			return nil, err
		}
		before := snapshotRows(obj.text)
		markOp := &MarkOp{ID: opID, Kind: kind, MarkType: op.MarkType, Start: op.Start, End: op.End, Attrs: op.Attrs}
		if err := applyMarkOp(obj.text, markOp); err != nil {
			return nil, err
		}
		after := snapshotRows(obj.text)
		return diffMarkPatches(op.Path, kind, op.MarkType, op.Attrs, before, after), nil

	default:
		return nil, ErrUnknownAction
	}
}

// marksAtElem returns the MarkMap effective at a single character,
// looked up by elemID.
func marksAtElem(seq *sequence, elemID OpID) MarkMap {
	for _, row := range effectiveMarksByElem(seq) {
		if row.ElemID == elemID {
			return row.Marks
		}
	}
	return NewMarkMap()
}

func insertPatchFor(path string, seq *sequence, elemID OpID, value rune, marks MarkMap) Patch {
	index, _, _ := seq.findSlot(elemID)
	return Patch{
		Action: PatchInsert, Path: path, Index: index,
		Values: []string{string(value)}, Marks: marks.ToJSON(),
	}
}
