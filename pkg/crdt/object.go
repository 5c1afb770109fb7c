package crdt

import "strings"

// objectKind distinguishes the two composite shapes a document object
// can take: a map of named fields, or a rich-text sequence (the RGA +
// mark stores of sequence.go/marks.go). This is the minimal substrate
// §6's makeList/makeMap/set/del operations need to have somewhere to
// land; it intentionally adds no block structure, nested lists, or
// tables (excluded by spec.md's Non-goals).
type objectKind int

const (
	kindMap objectKind = iota
	kindText
)

// object is one map or text node in the document tree.
type object struct {
	kind   objectKind
	fields map[string]*field // valid when kind == kindMap
	text   *sequence         // valid when kind == kindText
}

// field is a last-writer-wins register for one map key: scalar values
// and makeMap/makeList both go through here, with ties broken by op-id
// exactly as for single-valued marks (I5).
type field struct {
	opID    OpID
	deleted bool
	scalar  any
	child   *object // set when the field holds a nested map or text object
}

func newMapObject() *object {
	return &object{kind: kindMap, fields: map[string]*field{}}
}

func newTextObject() *object {
	return &object{kind: kindText, text: newSequence()}
}

// splitPath turns a "/"-delimited path into its key segments. The root
// is named by "" or "/".
func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// resolveObject walks from root through the given path, returning the
// object (map or text) found there. Every path segment must name a field holding
// a nested object; a scalar or text field along the way is a
// TypeMismatch, and a missing field is an InvalidPath.
func resolveObject(root *object, path string) (*object, error) {
	cur := root
	for _, seg := range splitPath(path) {
		if cur.kind != kindMap {
			return nil, ErrTypeMismatch
		}
		f, ok := cur.fields[seg]
		if !ok || f.deleted {
			return nil, ErrInvalidPath
		}
		if f.child == nil {
			return nil, ErrTypeMismatch
		}
		cur = f.child
	}
	return cur, nil
}

// resolveTextObject resolves path and requires the result to be a text
// (rich-text sequence) object.
func resolveTextObject(root *object, path string) (*object, error) {
	obj, err := resolveObject(root, path)
	if err != nil {
		return nil, err
	}
	if obj.kind != kindText {
		return nil, ErrTypeMismatch
	}
	return obj, nil
}

// setField applies a last-writer-wins write to key on obj, keeping the
// result of whichever write (this one or whatever is already stored)
// carries the greater op-id (I5's tie-break rule, reused for plain map
// registers).
func setField(obj *object, key string, opID OpID, scalar any, child *object, deleted bool) error {
	if obj.kind != kindMap {
		return ErrTypeMismatch
	}
	existing, ok := obj.fields[key]
	if ok && existing.opID.Greater(opID) {
		return nil
	}
	obj.fields[key] = &field{opID: opID, deleted: deleted, scalar: scalar, child: child}
	return nil
}
