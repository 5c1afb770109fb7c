package crdt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// spanSummary renders format spans as (text, sorted mark type names) pairs
// for easy comparison against the scenario tables.
type spanSummary struct {
	Text  string
	Marks []string
}

func summarize(spans []FormatSpan) []spanSummary {
	out := make([]spanSummary, len(spans))
	for i, s := range spans {
		out[i] = spanSummary{Text: s.Text, Marks: s.Marks.MarkTypes()}
	}
	return out
}

func TestScenario_OverlappingBoldAndItalic(t *testing.T) {
	r := NewReplica("r1")
	seedText(t, r, "/body", "The Peritext editor")

	_, _, err := r.Change([]InputOp{{Action: "addMark", Path: "/body", MarkType: "strong", StartIndex: 0, EndIndex: 12}})
	require.NoError(t, err)
	_, _, err = r.Change([]InputOp{{Action: "addMark", Path: "/body", MarkType: "em", StartIndex: 4, EndIndex: 19}})
	require.NoError(t, err)

	spans, err := r.GetTextWithFormatting("/body")
	require.NoError(t, err)

	require.Equal(t, []spanSummary{
		{Text: "The ", Marks: []string{"strong"}},
		{Text: "Peritext", Marks: []string{"em", "strong"}},
		{Text: " editor", Marks: []string{"em"}},
	}, summarize(spans))
}

func TestScenario_LinkLastWriterWinsConvergesOnBothReplicas(t *testing.T) {
	a := NewReplica("r1")
	seedText(t, a, "/body", "visit here")
	seed, _ := a.ChangeByActorSeq("r1", 1)
	ins, _ := a.ChangeByActorSeq("r1", 2)

	b := NewReplica("r2")
	_, err := b.ApplyRemote(seed)
	require.NoError(t, err)
	_, err = b.ApplyRemote(ins)
	require.NoError(t, err)

	link1, _, err := a.Change([]InputOp{{
		Action: "addMark", Path: "/body", MarkType: "link",
		StartIndex: 0, EndIndex: 5, Attrs: map[string]string{"url": "u1"},
	}})
	require.NoError(t, err)

	link2, _, err := b.Change([]InputOp{{
		Action: "addMark", Path: "/body", MarkType: "link",
		StartIndex: 0, EndIndex: 5, Attrs: map[string]string{"url": "u2"},
	}})
	require.NoError(t, err)

	_, err = b.ApplyRemote(link1)
	require.NoError(t, err)
	_, err = a.ApplyRemote(link2)
	require.NoError(t, err)

	spansA, err := a.GetTextWithFormatting("/body")
	require.NoError(t, err)
	spansB, err := b.GetTextWithFormatting("/body")
	require.NoError(t, err)

	require.Equal(t, summarize(spansA), summarize(spansB))

	// the op with the greater op-id deterministically wins on both sides
	var winner string
	if link2.opIDAt(0).Greater(link1.opIDAt(0)) {
		winner = "u2"
	} else {
		winner = "u1"
	}
	require.Equal(t, winner, spansA[0].Marks.Single["link"]["url"])
}

func TestScenario_BoldBoundaryTombstoneStillAnchors(t *testing.T) {
	// Scenario 6: bold anchored to asterisks that are then deleted still
	// contains underscores concurrently inserted next to them.
	a := NewReplica("r1")
	seedText(t, a, "/body", "The *Peritext* editor")
	seed, _ := a.ChangeByActorSeq("r1", 1)
	ins, _ := a.ChangeByActorSeq("r1", 2)

	b := NewReplica("r2")
	_, err := b.ApplyRemote(seed)
	require.NoError(t, err)
	_, err = b.ApplyRemote(ins)
	require.NoError(t, err)

	bold, _, err := a.Change([]InputOp{{Action: "addMark", Path: "/body", MarkType: "strong", StartIndex: 4, EndIndex: 14}})
	require.NoError(t, err)
	delOpen, _, err := a.Change([]InputOp{{Action: "delete", Path: "/body", Index: 4, Count: 1}})
	require.NoError(t, err)
	delClose, _, err := a.Change([]InputOp{{Action: "delete", Path: "/body", Index: 12, Count: 1}})
	require.NoError(t, err)

	insUnder1, _, err := b.Change([]InputOp{{Action: "insert", Path: "/body", Index: 5, Values: []string{"_"}}})
	require.NoError(t, err)
	insUnder2, _, err := b.Change([]InputOp{{Action: "insert", Path: "/body", Index: 14, Values: []string{"_"}}})
	require.NoError(t, err)

	for _, c := range []*Change{bold, delOpen, delClose} {
		_, err := b.ApplyRemote(c)
		require.NoError(t, err)
	}
	for _, c := range []*Change{insUnder1, insUnder2} {
		_, err := a.ApplyRemote(c)
		require.NoError(t, err)
	}

	want := []spanSummary{
		{Text: "The ", Marks: []string{}},
		{Text: "_Peritext_", Marks: []string{"strong"}},
		{Text: " editor", Marks: []string{}},
	}

	spansA, err := a.GetTextWithFormatting("/body")
	require.NoError(t, err)
	spansB, err := b.GetTextWithFormatting("/body")
	require.NoError(t, err)

	require.Equal(t, want, summarize(spansA))
	require.Equal(t, want, summarize(spansB))
}
