// Command chrondbsh is an interactive shell over a chrondb repository,
// grounded on docdb's cmd/docdbsh REPL shape and calvinalkan-agent-task's
// cmd/sloty use of peterh/liner for history and tab completion. It adds a
// natural-language "at <phrase>" point-in-time form, resolved through
// olebedev/when to a timestamp and then to the nearest commit not after
// that timestamp via internal/git2.Repository.CommitAt.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/moclojer/chrondb-sub002/internal/config"
	"github.com/moclojer/chrondb-sub002/internal/durable"
	"github.com/moclojer/chrondb-sub002/internal/logging"
	"github.com/peterh/liner"
)

func main() {
	repoPath := flag.String("repo", "./chrondb-data", "path to the bare Git repository")
	configFile := flag.String("config", "", "optional JSONC configuration override file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chrondbsh: loading config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	store, err := durable.Open(*repoPath, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chrondbsh: opening %q: %v\n", *repoPath, err)
		os.Exit(1)
	}
	defer store.Close()

	sh := &shell{store: store, branch: cfg.DefaultBranch, log: log}
	if err := sh.run(); err != nil {
		fmt.Fprintf(os.Stderr, "chrondbsh: %v\n", err)
		os.Exit(1)
	}
}

type shell struct {
	store  *durable.Store
	branch string
	log    *slog.Logger
	liner  *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".chrondbsh_history")
}

var shellCommands = []string{
	"put", "get", "delete", "history", "restore", "query", "at",
	"branch", "help", "exit", "quit",
}

func (s *shell) completer(line string) []string {
	var out []string
	lower := strings.ToLower(line)
	for _, c := range shellCommands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}
	return out
}

func (s *shell) run() error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if f, err := os.Open(historyFile()); err == nil {
		s.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("chrondb shell. Type 'help' for commands, 'exit' to quit.")

	for {
		line, err := s.liner.Prompt(fmt.Sprintf("chrondb(%s)> ", s.branch))
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println()
				break
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.liner.AppendHistory(line)

		if s.dispatch(line) {
			break
		}
	}

	s.saveHistory()
	return nil
}

func (s *shell) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}
	if f, err := os.Create(path); err == nil {
		s.liner.WriteHistory(f)
		f.Close()
	}
}

// dispatch runs one line and reports whether the shell should exit.
func (s *shell) dispatch(line string) bool {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "exit", "quit":
		return true
	case "help", "?":
		s.printHelp()
	case "branch":
		s.cmdBranch(args)
	case "put":
		s.cmdPut(line, args)
	case "get":
		s.cmdGet(args)
	case "delete", "del":
		s.cmdDelete(args)
	case "history":
		s.cmdHistory(args)
	case "restore":
		s.cmdRestore(args)
	case "query":
		s.cmdQuery(args)
	case "at":
		s.cmdAt(line, args)
	default:
		fmt.Printf("unknown command: %s (type 'help')\n", cmd)
	}
	return false
}

func (s *shell) printHelp() {
	fmt.Println(`Commands:
  put <id> <json>            save a document
  get <id>                   retrieve the current version
  delete <id>                delete a document
  history <id>                list commits touching a document
  restore <id> <commit>      restore a document to an earlier commit
  query all | term k=v       search the index (also: wildcard, fts, exists, missing)
  at <phrase> get <id>       retrieve a document as of a natural-language time
  at <phrase> history <id>   same, but list commits up to that time
  branch [name]              show or switch the active branch
  help                       show this text
  exit / quit                leave the shell`)
}

func (s *shell) cmdBranch(args []string) {
	if len(args) == 0 {
		fmt.Println(s.branch)
		return
	}
	s.branch = args[0]
	fmt.Printf("switched to branch %q\n", s.branch)
}
