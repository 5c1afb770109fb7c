// Command replicasim drives two in-process replicas through a batch of
// local edits and a cross-sync, then prints the converged formatted
// text. It exists to exercise the crdt package end to end the way
// calvinalkan-agent-task's cmd/tk-seed and cmd/tk-bench binaries wire a
// thin main() to a library call.
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/cshekharsharma/richtext-crdt/pkg/crdt"
)

func main() {
	actorA := flag.String("actor-a", "alice", "name of the first replica")
	actorB := flag.String("actor-b", "bob", "name of the second replica")
	text := flag.String("text", "hello world", "seed text inserted by the first replica")
	boldStart := flag.Int("bold-start", 0, "visible start index the second replica marks strong")
	boldEnd := flag.Int("bold-end", 5, "visible end index (exclusive) the second replica marks strong")
	flag.Parse()

	if err := run(*actorA, *actorB, *text, *boldStart, *boldEnd); err != nil {
		fmt.Fprintln(os.Stderr, "replicasim:", err)
		os.Exit(1)
	}
}

// run seeds replica a with a text object and some characters, syncs
// that to replica b, has b bold a prefix of it, syncs that change back
// to a, then prints both replicas' formatted text to demonstrate
// convergence.
func run(actorA, actorB, seed string, boldStart, boldEnd int) error {
	a := crdt.NewReplica(actorA)
	b := crdt.NewReplica(actorB)
	const path = "/body"

	makeList, _, err := a.Change([]crdt.InputOp{{Action: "makeList", Path: "/", Key: "body"}})
	if err != nil {
		return fmt.Errorf("a: makeList: %w", err)
	}
	if _, err := b.ApplyRemote(makeList); err != nil {
		return fmt.Errorf("b: apply makeList: %w", err)
	}

	insert, _, err := a.Change([]crdt.InputOp{{Action: "insert", Path: path, Index: 0, Values: splitChars(seed)}})
	if err != nil {
		return fmt.Errorf("a: insert: %w", err)
	}
	if insert != nil {
		if _, err := b.ApplyRemote(insert); err != nil {
			return fmt.Errorf("b: apply insert: %w", err)
		}
	}

	bold, _, err := b.Change([]crdt.InputOp{{
		Action: "addMark", Path: path, MarkType: "strong",
		StartIndex: boldStart, EndIndex: boldEnd,
	}})
	if err != nil {
		return fmt.Errorf("b: addMark: %w", err)
	}
	if _, err := a.ApplyRemote(bold); err != nil {
		return fmt.Errorf("a: apply addMark: %w", err)
	}

	for _, r := range []struct {
		name string
		rep  *crdt.Replica
	}{{actorA, a}, {actorB, b}} {
		spans, err := r.rep.GetTextWithFormatting(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s:\n", r.name)
		for _, span := range spans {
			fmt.Printf("  %-20q %v\n", span.Text, span.Marks.MarkTypes())
		}
	}
	return nil
}

func splitChars(s string) []string {
	runes := []rune(s)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}
