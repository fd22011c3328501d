// usmctl is an interactive CLI for a Persistent Ultra-Scale Map instance.
//
// Usage:
//
//	usmctl [options]
//
// Options:
//
//	-c, --config       Path to a JSONC config file (default: built-in defaults)
//	-m, --mode         Durability mode override: disabled, sync, async, hybrid
//	-s, --storage      Storage directory override
//	-w, --wal          WAL file path override
//	-r, --recover      Run crash recovery on open
//
// Commands (in REPL):
//
//	put <key> <value> [type]   Insert or update an entry
//	get <key>                  Retrieve an entry by key
//	del <key>                  Remove an entry
//	contains <key>             Check whether a key exists
//	clear                      Remove every entry
//	sync                       Force-flush pending async operations
//	checkpoint                 Write a checkpoint
//	stats                      Show running map and persistence stats
//	help                       Show this help
//	exit / quit / q            Exit
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/ultrascale/usm/pkg/pusm"
	"github.com/ultrascale/usm/pkg/usm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		mode       string
		storage    string
		walPath    string
		doRecover  bool
	)

	flag.StringVarP(&configPath, "config", "c", "", "path to a JSONC config file")
	flag.StringVarP(&mode, "mode", "m", "", "durability mode: disabled, sync, async, hybrid")
	flag.StringVarP(&storage, "storage", "s", "", "storage directory override")
	flag.StringVarP(&walPath, "wal", "w", "", "wal file path override")
	flag.BoolVarP(&doRecover, "recover", "r", false, "run crash recovery on open")
	flag.Parse()

	cfg := pusm.DefaultConfig()

	if configPath != "" {
		loaded, err := pusm.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cfg = loaded
	}

	if mode != "" {
		cfg.Mode = pusm.Mode(mode)
	}

	if storage != "" {
		cfg.StoragePath = storage
	}

	if walPath != "" {
		cfg.WalPath = walPath
	}

	if doRecover {
		cfg.EnableCrashRecovery = true
	}

	if cfg.Mode != pusm.Disabled && cfg.StoragePath == "" {
		return errors.New("storage path is required for any mode other than disabled")
	}

	instance, err := pusm.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening map: %w", err)
	}
	defer instance.Close()

	repl := &REPL{instance: instance, mode: cfg.Mode}

	return repl.Run()
}

// REPL is the interactive command loop.
type REPL struct {
	instance *pusm.PUSM
	mode     pusm.Mode
	liner    *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".usmctl_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("usmctl - persistent ultra-scale map CLI (mode=%s)\n", r.mode)
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("usm> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")

			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "put":
			r.cmdPut(args)

		case "get":
			r.cmdGet(args)

		case "del", "delete", "remove":
			r.cmdRemove(args)

		case "contains", "has":
			r.cmdContains(args)

		case "clear":
			r.cmdClear()

		case "sync":
			r.cmdSync()

		case "checkpoint", "ckpt":
			r.cmdCheckpoint()

		case "stats":
			r.cmdStats()

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"put", "get", "del", "delete", "remove",
		"contains", "has", "clear", "sync",
		"checkpoint", "ckpt", "stats",
		"help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  put <key> <value> [type]   Insert or update an entry")
	fmt.Println("  get <key>                  Retrieve an entry by key")
	fmt.Println("  del <key>                  Remove an entry")
	fmt.Println("  contains <key>             Check whether a key exists")
	fmt.Println("  clear                      Remove every entry")
	fmt.Println("  sync                       Force-flush pending async operations")
	fmt.Println("  checkpoint                 Write a checkpoint")
	fmt.Println("  stats                      Show running map and persistence stats")
	fmt.Println("  help                       Show this help")
	fmt.Println("  exit / quit / q            Exit")
	fmt.Println()
	fmt.Println("type: blob (default), string, numeric")
}

func parseValueType(s string) (usm.ValueType, error) {
	switch strings.ToLower(s) {
	case "", "blob", "opaque":
		return usm.OpaqueBlob, nil
	case "string", "str", "unicode":
		return usm.UnicodeString, nil
	case "numeric", "num", "number":
		return usm.NumericBlob, nil
	default:
		return 0, fmt.Errorf("unrecognized type %q", s)
	}
}

func (r *REPL) cmdPut(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: put <key> <value> [type]")

		return
	}

	typeArg := ""
	if len(args) >= 3 {
		typeArg = args[2]
	}

	typeTag, err := parseValueType(typeArg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if err := r.instance.PutPersistent([]byte(args[0]), []byte(args[1]), typeTag, false); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: put %q\n", args[0])
}

func (r *REPL) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: get <key>")

		return
	}

	value, typeTag, err := r.instance.GetPersistent([]byte(args[0]))
	if err != nil {
		if errors.Is(err, pusm.ErrKeyNotFound) {
			fmt.Println("(not found)")

			return
		}

		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("Value: %q\n", value)
	fmt.Printf("Type:  %d\n", typeTag)
}

func (r *REPL) cmdRemove(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: del <key>")

		return
	}

	if err := r.instance.RemovePersistent([]byte(args[0]), false); err != nil {
		if errors.Is(err, pusm.ErrKeyNotFound) {
			fmt.Printf("OK: %s did not exist\n", args[0])

			return
		}

		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: removed %q\n", args[0])
}

func (r *REPL) cmdContains(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: contains <key>")

		return
	}

	ok, err := r.instance.ContainsPersistent([]byte(args[0]))
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println(ok)
}

func (r *REPL) cmdClear() {
	if err := r.instance.ClearPersistent(false); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println("OK: cleared")
}

func (r *REPL) cmdSync() {
	if err := r.instance.SyncToStorage(); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println("OK: synced")
}

func (r *REPL) cmdCheckpoint() {
	if err := r.instance.CreateCheckpoint(); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println("OK: checkpoint written")
}

func (r *REPL) cmdStats() {
	stats := r.instance.Stats()

	fmt.Printf("Persistence stats:\n")
	fmt.Printf("  Total ops:      %d\n", stats.TotalOps)
	fmt.Printf("  Successful ops: %d\n", stats.SuccessfulOps)
	fmt.Printf("  Failed ops:     %d\n", stats.FailedOps)
	fmt.Printf("  Bytes written:  %d\n", stats.BytesWritten)
	fmt.Printf("  Bytes read:     %d\n", stats.BytesRead)
	fmt.Printf("  Async queue:    %d\n", stats.AsyncQueueLen)
}
