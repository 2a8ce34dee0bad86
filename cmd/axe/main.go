package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bbugyi200/axe/internal/daemon"
	"github.com/bbugyi200/axe/internal/model"
	"github.com/bbugyi200/axe/internal/notify"
	"github.com/bbugyi200/axe/internal/query"
	"github.com/bbugyi200/axe/internal/setup"
	"github.com/bbugyi200/axe/internal/specfile"
	"github.com/bbugyi200/axe/internal/status"
	"github.com/bbugyi200/axe/internal/uds"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "daemon":
		runDaemon(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "stop":
		runStop(os.Args[2:])
	case "check":
		runCheck(os.Args[2:])
	case "query":
		runQuery(os.Args[2:])
	case "new":
		runNew(os.Args[2:])
	case "set-status":
		runSetStatus(os.Args[2:])
	case "revert":
		runRevert(os.Args[2:])
	case "restore":
		runRestore(os.Args[2:])
	case "notify":
		runNotify(os.Args[2:])
	case "version":
		fmt.Printf("axe %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runInit(args []string) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	if err := setup.Run(dir); err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	absDir, _ := filepath.Abs(dir)
	fmt.Printf("Initialized .axe/ in %s\n", absDir)
}

func runDaemon(_ []string) {
	axeDir := mustFindAxeDir()
	cfg := mustLoadConfig(axeDir)

	d, err := daemon.New(axeDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create daemon: %v\n", err)
		os.Exit(1)
	}
	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
		os.Exit(1)
	}
}

func runStatus(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: axe status [--json]\n", a)
			os.Exit(1)
		}
	}

	axeDir := mustFindAxeDir()
	if err := status.Run(axeDir, jsonOutput); err != nil {
		fmt.Fprintf(os.Stderr, "status: %v\n", err)
		os.Exit(1)
	}
}

func runStop(_ []string) {
	axeDir := mustFindAxeDir()
	client := uds.NewClient(socketPath(axeDir))
	resp, err := client.SendCommand("shutdown", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stop: %v\n", err)
		os.Exit(1)
	}
	if !resp.Success {
		fmt.Fprintf(os.Stderr, "stop failed: %s\n", errorMessage(resp))
		os.Exit(1)
	}
	fmt.Println("shutdown requested")
}

func runCheck(_ []string) {
	axeDir := mustFindAxeDir()
	client := uds.NewClient(socketPath(axeDir))
	resp, err := client.SendCommand("check", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "check: %v\n", err)
		os.Exit(1)
	}
	if !resp.Success {
		fmt.Fprintf(os.Stderr, "check failed: %s\n", errorMessage(resp))
		os.Exit(1)
	}
	fmt.Println("full check triggered")
}

func runQuery(args []string) {
	var expr string
	exprSet := false
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			if exprSet {
				fmt.Fprintln(os.Stderr, "usage: axe query \"<expr>\" [--json]")
				os.Exit(1)
			}
			expr = a
			exprSet = true
		}
	}

	axeDir := mustFindAxeDir()

	// Prefer the daemon (one consistent snapshot); fall back to a
	// direct load when it is not running.
	matches, err := queryViaDaemon(axeDir, expr)
	if err != nil {
		matches, err = queryLocal(axeDir, expr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "query: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(matches); err != nil {
			fmt.Fprintf(os.Stderr, "query: %v\n", err)
			os.Exit(1)
		}
		return
	}
	for _, m := range matches {
		fmt.Printf("%-30s  %-20s  %s\n", m.Name, m.Status, m.Title)
	}
}

func queryViaDaemon(axeDir, expr string) ([]daemon.QueryMatch, error) {
	client := uds.NewClient(socketPath(axeDir))
	resp, err := client.SendCommand("query", daemon.QueryParams{Query: expr})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		if resp.Error != nil && resp.Error.Code == uds.ErrCodeQuerySyntax {
			// Syntax errors are the user's problem, not the daemon's;
			// no point retrying locally.
			fmt.Fprintf(os.Stderr, "query: %s\n", resp.Error.Message)
			os.Exit(1)
		}
		return nil, fmt.Errorf("%s", errorMessage(resp))
	}
	var matches []daemon.QueryMatch
	if err := json.Unmarshal(resp.Data, &matches); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return matches, nil
}

func queryLocal(axeDir, expr string) ([]daemon.QueryMatch, error) {
	node, err := query.Parse(expr)
	if err != nil {
		return nil, err
	}
	store := specfile.NewStore(axeDir)
	specs, _, err := store.LoadAll()
	if err != nil {
		return nil, err
	}
	forest := model.NewForest(specs)

	matches := []daemon.QueryMatch{}
	for _, spec := range query.Select(node, forest) {
		matches = append(matches, daemon.QueryMatch{
			Name:    spec.Name,
			Status:  forest.EffectiveStatus(spec).Display(),
			Project: spec.Project(),
			Title:   spec.Title,
		})
	}
	return matches, nil
}

func runNew(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: axe new <name> [--parent <name>] [--title <text>]")
		os.Exit(1)
	}
	name := args[0]
	var parent, title string
	for i := 1; i < len(args); i++ {
		switch args[i] {
		case "--parent":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--parent requires a value")
				os.Exit(1)
			}
			i++
			parent = args[i]
		case "--title":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--title requires a value")
				os.Exit(1)
			}
			i++
			title = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown flag: %s\nusage: axe new <name> [--parent <name>] [--title <text>]\n", args[i])
			os.Exit(1)
		}
	}
	if title == "" {
		title = name
	}

	axeDir := mustFindAxeDir()
	store := specfile.NewStore(axeDir)

	var parentPtr *string
	if parent != "" {
		if _, err := store.Load(parent); err != nil {
			fmt.Fprintf(os.Stderr, "new: parent: %v\n", err)
			os.Exit(1)
		}
		parentPtr = &parent
	}

	spec := model.NewChangeSpec(name, title, parentPtr)
	if err := store.Create(spec); err != nil {
		fmt.Fprintf(os.Stderr, "new: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created %s\n", store.Path(name))
}

func runSetStatus(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: axe set-status <name> <status>")
		os.Exit(1)
	}
	name := args[0]
	to, err := model.ParseStatus(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "set-status: %v\n", err)
		os.Exit(1)
	}

	axeDir := mustFindAxeDir()
	if err := specfile.NewStore(axeDir).SetStatus(name, to); err != nil {
		fmt.Fprintf(os.Stderr, "set-status: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s → %s\n", name, to.Display())
}

func runRevert(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: axe revert <name>")
		os.Exit(1)
	}

	axeDir := mustFindAxeDir()
	if err := specfile.NewStore(axeDir).Revert(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "revert: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s → %s\n", args[0], model.StatusReverted.Display())
}

func runRestore(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: axe restore <name>")
		os.Exit(1)
	}

	axeDir := mustFindAxeDir()
	cfg := mustLoadConfig(axeDir)
	if err := specfile.NewStore(axeDir).Restore(args[0], cfg.KeepEntriesOnRestore()); err != nil {
		fmt.Fprintf(os.Stderr, "restore: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s → %s\n", args[0], model.StatusUnstarted.Display())
}

func runNotify(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: axe notify <title> <message>")
		os.Exit(1)
	}
	if err := notify.Send(args[0], args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "notify: %v\n", err)
		os.Exit(1)
	}
}

func socketPath(axeDir string) string {
	return filepath.Join(axeDir, "state", uds.DefaultSocketName)
}

func errorMessage(resp *uds.Response) string {
	if resp.Error != nil {
		return fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
	}
	return "unknown error"
}

// findAxeDir searches for .axe/ in the current directory and ancestors.
func findAxeDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".axe")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func mustFindAxeDir() string {
	axeDir := findAxeDir()
	if axeDir == "" {
		fmt.Fprintln(os.Stderr, "error: .axe/ directory not found. Run 'axe init' first.")
		os.Exit(1)
	}
	return axeDir
}

func mustLoadConfig(axeDir string) model.Config {
	cfg, err := model.LoadConfig(filepath.Join(axeDir, "config.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `axe %s — ChangeSpec scheduling daemon

Usage: axe <command> [options]

Project:
  init [dir]                 Initialize .axe/ directory
  new <name> [--parent <name>] [--title <text>]
                             Create a ChangeSpec record
  query "<expr>" [--json]    Select ChangeSpecs with a filter query
  set-status <name> <status> Request a status transition
  revert <name>              Revert a ChangeSpec
  restore <name>             Restore a reverted ChangeSpec

Daemon:
  daemon                     Run the scheduler daemon (foreground)
  status [--json]            Show daemon status and metrics
  check                      Trigger an early full check
  stop                       Request graceful shutdown

Utilities:
  notify <title> <msg>       Desktop notification (macOS)
  version                    Show version
  help                       Show this help

`, version)
}
