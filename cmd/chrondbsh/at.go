package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var whenParser = newWhenParser()

func newWhenParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// cmdAt implements "at <phrase> get <id>" and "at <phrase> history <id>":
// the phrase is resolved to a timestamp through olebedev/when, then to the
// nearest commit on the active branch not after that timestamp, and the
// trailing subcommand runs against that commit instead of the branch tip.
func (s *shell) cmdAt(line string, args []string) {
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "at"))

	phrase, sub, subArgs, err := splitAtPhrase(rest)
	if err != nil {
		fmt.Printf("usage: at <phrase> get <id> | at <phrase> history <id>\n(%v)\n", err)
		return
	}

	result, err := whenParser.Parse(phrase, time.Now())
	if err != nil || result == nil {
		fmt.Printf("could not understand time phrase %q\n", phrase)
		return
	}

	oid, found, err := s.store.Repo().CommitAt(s.branch, result.Time)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if !found {
		fmt.Printf("no commit on %q at or before %s\n", s.branch, result.Time.Format(time.RFC3339))
		return
	}

	switch sub {
	case "get":
		if len(subArgs) < 1 {
			fmt.Println("usage: at <phrase> get <id>")
			return
		}
		doc, docFound, err := s.store.GetAt(context.Background(), subArgs[0], oid.String())
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		if !docFound {
			fmt.Println("(not found)")
			return
		}
		printJSON(doc)
	case "history":
		if len(subArgs) < 1 {
			fmt.Println("usage: at <phrase> history <id>")
			return
		}
		entries, err := s.store.History(context.Background(), subArgs[0], s.branch)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		for _, e := range entries {
			if e.CommitTime.After(result.Time) {
				continue
			}
			fmt.Printf("%s  %s  %s  %s\n", e.CommitID, e.CommitTime.Format(time.RFC3339), e.CommitterName, e.CommitMessage)
		}
	default:
		fmt.Printf("unknown subcommand %q for 'at'\n", sub)
	}
}

// splitAtPhrase pulls the trailing "<subcommand> <args...>" tokens off the
// end of an "at" line's remainder, leaving the natural-language phrase.
// olebedev/when rules never start with one of the known subcommand
// keywords, so splitting on the first occurrence of one is unambiguous for
// the phrases this shell supports.
func splitAtPhrase(rest string) (phrase, sub string, subArgs []string, err error) {
	fields := strings.Fields(rest)
	for i, f := range fields {
		lower := strings.ToLower(f)
		if lower == "get" || lower == "history" {
			return strings.Join(fields[:i], " "), lower, fields[i+1:], nil
		}
	}
	return "", "", nil, fmt.Errorf("missing 'get' or 'history' subcommand")
}
