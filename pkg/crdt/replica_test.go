package crdt

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func seedText(t *testing.T, r *Replica, path, text string) {
	t.Helper()
	segs := splitPath(path)
	require.Len(t, segs, 1, "seedText only supports top-level paths")
	_, _, err := r.Change([]InputOp{{Action: "makeList", Path: "/", Key: segs[0]}})
	require.NoError(t, err)
	if text == "" {
		return
	}
	_, _, err = r.Change([]InputOp{{Action: "insert", Path: path, Index: 0, Values: splitChars(text)}})
	require.NoError(t, err)
}

func splitChars(s string) []string {
	runes := []rune(s)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}

func TestReplica_LocalChangeAdvancesClockAndLog(t *testing.T) {
	r := NewReplica("alice")
	seedText(t, r, "/body", "hi")

	require.Equal(t, uint64(3), r.Clock().Get("alice")) // makeList + 2 chars

	change, ok := r.ChangeByActorSeq("alice", 1)
	require.True(t, ok)
	require.Equal(t, "alice", change.Actor)
	require.Equal(t, uint64(1), change.Seq)
}

func TestReplica_DuplicateRemoteChangeIsIdempotent(t *testing.T) {
	a := NewReplica("alice")
	b := NewReplica("bob")

	seedText(t, a, "/body", "")
	makeList, ok := a.ChangeByActorSeq("alice", 1)
	require.True(t, ok)

	patches1, err := b.ApplyRemote(makeList)
	require.NoError(t, err)
	require.NotEmpty(t, patches1)

	// redelivering the identical change must be a silent no-op
	patches2, err := b.ApplyRemote(makeList)
	require.NoError(t, err)
	require.Empty(t, patches2)
}

func TestReplica_OutOfOrderRemoteChangeBuffersThenDrains(t *testing.T) {
	a := NewReplica("alice")
	b := NewReplica("bob")

	seedText(t, a, "/body", "ab")
	c1, _ := a.ChangeByActorSeq("alice", 1) // makeList
	c2, _ := a.ChangeByActorSeq("alice", 2) // insert a, b (single Change batch)

	// deliver c2 before c1: causality violated (deps not satisfied)
	_, err := b.ApplyRemote(c2)
	require.ErrorIs(t, err, ErrCausalityViolation)
	require.Equal(t, 1, b.PendingCount())

	patches, err := b.ApplyRemote(c1)
	require.NoError(t, err)
	require.NotEmpty(t, patches)
	require.Equal(t, 0, b.PendingCount(), "buffered change should drain once its deps arrive")

	got, err := b.GetTextWithFormatting("/body")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "ab", got[0].Text)
}

func TestReplica_ConcurrentDeleteThenInsertMerge(t *testing.T) {
	// §8 scenario 1: seed "abrxabra" on both sides, replica 1 deletes the
	// 'x' and inserts "ca" at index 4, replica 2 concurrently inserts "da"
	// at index 5 of the *original* document. After cross-sync both must
	// converge on "abracadabra".
	a := NewReplica("r1")
	seedText(t, a, "/body", "abrxabra")
	seed, _ := a.ChangeByActorSeq("r1", 1)
	insertSeed, _ := a.ChangeByActorSeq("r1", 2)

	b := NewReplica("r2")
	_, err := b.ApplyRemote(seed)
	require.NoError(t, err)
	_, err = b.ApplyRemote(insertSeed)
	require.NoError(t, err)

	// replica r1: delete index 3 ('x'), then insert "ca" at index 4
	del, _, err := a.Change([]InputOp{{Action: "delete", Path: "/body", Index: 3, Count: 1}})
	require.NoError(t, err)
	ins1, _, err := a.Change([]InputOp{{Action: "insert", Path: "/body", Index: 4, Values: []string{"c", "a"}}})
	require.NoError(t, err)

	// replica r2: concurrently insert "da" at index 5 of "abrxabra"
	ins2, _, err := b.Change([]InputOp{{Action: "insert", Path: "/body", Index: 5, Values: []string{"d", "a"}}})
	require.NoError(t, err)

	// cross-sync
	_, err = b.ApplyRemote(del)
	require.NoError(t, err)
	_, err = b.ApplyRemote(ins1)
	require.NoError(t, err)
	_, err = a.ApplyRemote(ins2)
	require.NoError(t, err)

	textA, err := a.GetTextWithFormatting("/body")
	require.NoError(t, err)
	textB, err := b.GetTextWithFormatting("/body")
	require.NoError(t, err)

	require.Equal(t, "abracadabra", flatten(textA))
	require.Equal(t, "abracadabra", flatten(textB))
	if diff := cmp.Diff(textA, textB); diff != "" {
		t.Fatalf("replicas diverged (-a +b):\n%s", diff)
	}
}

func flatten(spans []FormatSpan) string {
	var out string
	for _, s := range spans {
		out += s.Text
	}
	return out
}
