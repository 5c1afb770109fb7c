package crdt

// PatchAction names the kind of visible-document delta a Patch
// describes (§4.4).
type PatchAction string

const (
	PatchInsert     PatchAction = "insert"
	PatchDelete     PatchAction = "delete"
	PatchAddMark    PatchAction = "addMark"
	PatchRemoveMark PatchAction = "removeMark"
	PatchMakeList   PatchAction = "makeList"
)

// Patch is a single visible-document delta consumable by a view layer
// (§4.4). Only the fields relevant to Action are populated.
type Patch struct {
	Action     PatchAction       `json:"action"`
	Path       string            `json:"path"`
	Index      int               `json:"index,omitempty"`
	Values     []string          `json:"values,omitempty"`
	Marks      map[string]any    `json:"marks,omitempty"`
	Count      int               `json:"count,omitempty"`
	MarkType   string            `json:"markType,omitempty"`
	StartIndex int               `json:"startIndex,omitempty"`
	EndIndex   int               `json:"endIndex,omitempty"`
	Attrs      map[string]string `json:"attrs,omitempty"`
	Key        string            `json:"key,omitempty"`
}

// ToJSON flattens a MarkMap into the {markType: attrs} / {markType:
// {id: attrs}} shape used on the wire and in Patch.Marks.
func (m MarkMap) ToJSON() map[string]any {
	out := map[string]any{}
	for markType, attrs := range m.Single {
		out[markType] = attrs
	}
	for markType, ids := range m.Multi {
		out[markType] = ids
	}
	return out
}

// elemRow is one row of the per-character walk (effectiveMarksByElem),
// as used by mark-patch diffing.
type elemRow struct {
	ElemID  OpID
	Deleted bool
	Value   rune
	Marks   MarkMap
}

func snapshotRows(seq *sequence) []elemRow {
	raw := effectiveMarksByElem(seq)
	rows := make([]elemRow, len(raw))
	for i, r := range raw {
		rows[i] = elemRow{ElemID: r.ElemID, Deleted: r.Deleted, Value: r.Value, Marks: r.Marks}
	}
	return rows
}

// diffMarkPatches compares the document's per-character mark state
// before and after applying a mark-op and emits one patch per maximal
// run of visible characters whose effective mark map changed, per
// §4.2's suppression rules (zero-width and off-document segments never
// arise here because only visible rows are considered).
func diffMarkPatches(path string, kind MarkKind, markType string, attrs map[string]string, before, after []elemRow) []Patch {
	var patches []Patch
	action := PatchAddMark
	if kind == RemoveMark {
		action = PatchRemoveMark
	}

	openStart := -1
	visIndex := 0
	for i := range before {
		if before[i].Deleted {
			continue
		}
		changed := !before[i].Marks.Equal(after[i].Marks)
		if changed && openStart == -1 {
			openStart = visIndex
		}
		if !changed && openStart != -1 {
			patches = append(patches, Patch{
				Action: action, Path: path, MarkType: markType,
				StartIndex: openStart, EndIndex: visIndex, Attrs: attrs,
			})
			openStart = -1
		}
		visIndex++
	}
	if openStart != -1 {
		patches = append(patches, Patch{
			Action: action, Path: path, MarkType: markType,
			StartIndex: openStart, EndIndex: visIndex, Attrs: attrs,
		})
	}
	return patches
}
