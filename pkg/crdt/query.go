package crdt

import "strings"

// FormatSpan is one coalesced run of visible text sharing the same
// effective mark map (§4.5).
type FormatSpan struct {
	Text  string
	Marks MarkMap
}

// Cursor is a stable reference to a position in a sequence (§4.1,
// §4.5): an object id (here, the path naming the text object) paired
// with the elemID it was taken against. ElemID may be HeadID (start of
// an empty document) or the tail sentinel (end of document).
type Cursor struct {
	ObjectID string
	ElemID   OpID
}

// GetTextWithFormatting returns the coalesced format spans over the
// non-deleted characters of the text object at path (§4.5).
func (r *Replica) GetTextWithFormatting(path string) ([]FormatSpan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, err := resolveTextObject(r.root, path)
	if err != nil {
		return nil, err
	}

	var spans []FormatSpan
	var buf strings.Builder
	var cur MarkMap
	has := false

	flush := func() {
		if has && buf.Len() > 0 {
			spans = append(spans, FormatSpan{Text: buf.String(), Marks: cur})
		}
		buf.Reset()
	}

	for _, row := range effectiveMarksByElem(obj.text) {
		if row.Deleted {
			continue
		}
		if !has || !row.Marks.Equal(cur) {
			flush()
			cur = row.Marks
			has = true
		}
		buf.WriteRune(row.Value)
	}
	flush()

	if spans == nil {
		spans = []FormatSpan{}
	}
	return spans, nil
}

// GetActiveMarksAtIndex returns the marks effective just left of
// visibleIndex (§4.5).
func (r *Replica) GetActiveMarksAtIndex(path string, visibleIndex int) (MarkMap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, err := resolveTextObject(r.root, path)
	if err != nil {
		return MarkMap{}, err
	}
	if visibleIndex < 0 || visibleIndex > obj.text.visibleLength() {
		return MarkMap{}, ErrIndexOutOfBounds
	}
	return activeMarksBeforeVisibleIndex(obj.text, visibleIndex), nil
}

// GetCursor returns a Cursor for the gap immediately before the
// visibleIndex-th character (or the end-of-document sentinel when
// visibleIndex equals the visible length).
func (r *Replica) GetCursor(path string, visibleIndex int) (Cursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, err := resolveTextObject(r.root, path)
	if err != nil {
		return Cursor{}, err
	}
	visLen := obj.text.visibleLength()
	if visibleIndex < 0 || visibleIndex > visLen {
		return Cursor{}, ErrIndexOutOfBounds
	}
	if visibleIndex == visLen {
		return Cursor{ObjectID: path, ElemID: tailID}, nil
	}
	elemID, _ := obj.text.getVisibleElemID(visibleIndex)
	return Cursor{ObjectID: path, ElemID: elemID}, nil
}

// ResolveCursor returns the current visible index for cursor, snapping
// left across concurrent deletion of the referenced character (I7,
// §4.1).
func (r *Replica) ResolveCursor(cursor Cursor) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, err := resolveTextObject(r.root, cursor.ObjectID)
	if err != nil {
		return 0, err
	}
	visibleCount, _, ok := obj.text.findSlot(cursor.ElemID)
	if !ok {
		return 0, newIntegrityError(ErrUnknownElemID)
	}
	return visibleCount, nil
}

// Length returns the total number of slots (tombstones included) in the
// text object at path.
func (r *Replica) Length(path string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, err := resolveTextObject(r.root, path)
	if err != nil {
		return 0, err
	}
	return obj.text.length(), nil
}

// VisibleLength returns the number of non-deleted characters in the
// text object at path.
func (r *Replica) VisibleLength(path string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, err := resolveTextObject(r.root, path)
	if err != nil {
		return 0, err
	}
	return obj.text.visibleLength(), nil
}
