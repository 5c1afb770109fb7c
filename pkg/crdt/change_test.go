package crdt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOp_JSONRoundTripInsert(t *testing.T) {
	op := Op{Action: "insert", Path: "/body", Ref: OpID{3, "alice"}, Char: "x"}

	raw, err := json.Marshal(op)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"ref":"3@alice"`)

	var got Op
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, op, got)
}

func TestOp_JSONRoundTripMark(t *testing.T) {
	op := Op{
		Action: "addMark", Path: "/body", MarkType: "strong",
		Start: Anchor{Side: AnchorBefore, ElemID: OpID{1, "alice"}},
		End:   Anchor{Side: AnchorAfter, ElemID: OpID{2, "alice"}},
	}
	raw, err := json.Marshal(op)
	require.NoError(t, err)

	var got Op
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, op, got)
}

func TestOp_JSONRoundTripHeadRef(t *testing.T) {
	op := Op{Action: "insert", Path: "/body", Ref: HeadID, Char: "a"}
	raw, err := json.Marshal(op)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"ref":"HEAD"`)

	var got Op
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, HeadID, got.Ref)
}

func TestChange_JSONRoundTrip(t *testing.T) {
	c := Change{
		Actor:   "alice",
		Seq:     2,
		Deps:    Clock{"alice": 3, "bob": 1},
		StartOp: 4,
		Ops:     []Op{{Action: "insert", Path: "/body", Ref: HeadID, Char: "h"}},
	}
	raw, err := json.Marshal(c)
	require.NoError(t, err)

	var got Change
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, c, got)
}

func TestClampMarkErr_RequiresAttrsOnAdd(t *testing.T) {
	info, ok := lookupMarkType("link")
	require.True(t, ok)

	err := clampMarkErr(info, AddMark, nil)
	require.ErrorIs(t, err, ErrAttrsMissing)

	err = clampMarkErr(info, AddMark, map[string]string{"url": "https://example.com"})
	require.NoError(t, err)
}

func TestClampMarkErr_RemoveOnlyRequiresAttrsForMultiValued(t *testing.T) {
	linkInfo, _ := lookupMarkType("link")
	require.NoError(t, clampMarkErr(linkInfo, RemoveMark, nil))

	commentInfo, _ := lookupMarkType("comment")
	require.ErrorIs(t, clampMarkErr(commentInfo, RemoveMark, nil), ErrAttrsMissing)
	require.NoError(t, clampMarkErr(commentInfo, RemoveMark, map[string]string{"id": "x"}))
}

func TestApplyOp_UnknownActionRejected(t *testing.T) {
	root := newMapObject()
	_, err := applyOp(root, Op{Action: "frobnicate"}, OpID{1, "alice"})
	require.ErrorIs(t, err, ErrUnknownAction)
}

func TestApplyOp_InsertIntoMapIsTypeMismatch(t *testing.T) {
	root := newMapObject()
	require.NoError(t, setField(root, "notes", OpID{1, "alice"}, "hi", nil, false))

	_, err := applyOp(root, Op{Action: "insert", Path: "/notes", Ref: HeadID, Char: "x"}, OpID{2, "alice"})
	require.ErrorIs(t, err, ErrTypeMismatch)
}
