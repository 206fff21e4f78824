package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/lexlapax/recall/pkg/config"
	"github.com/lexlapax/recall/pkg/model"
	"github.com/lexlapax/recall/pkg/recall"
)

// Commands understood by the client
const (
	cmdHelp    = "!help"
	cmdQuit    = "!quit"
	cmdUser    = "!user"
	cmdAgent   = "!agent"
	cmdRun     = "!run"
	cmdInfer   = "!infer"
	cmdAdd     = "!add"
	cmdPut     = "!put"
	cmdSearch  = "!search"
	cmdList    = "!list"
	cmdGet     = "!get"
	cmdUpdate  = "!update"
	cmdDelete  = "!delete"
	cmdForget  = "!forget"
	cmdHistory = "!history"
	cmdReset   = "!reset"
	cmdConfig  = "!config"
)

var commandNames = []string{
	cmdHelp, cmdQuit, cmdUser, cmdAgent, cmdRun, cmdInfer, cmdAdd, cmdPut, cmdSearch,
	cmdList, cmdGet, cmdUpdate, cmdDelete, cmdForget, cmdHistory, cmdReset, cmdConfig,
}

const helpText = `
Recall - Command Reference:
-----------------------------------------
!help                 - Show this help message
!user <id>            - Set the current user ID (no argument clears it)
!agent <id>           - Set the current agent ID (no argument clears it)
!run <id>             - Set the current run ID (no argument clears it)
!infer on|off         - Toggle fact extraction on add
!add <text>           - Add text as a conversation turn
!put <text>           - Store text as one memory without inference
!search <query>       - Search memories of the current scope
!list                 - List memories of the current scope
!get <id>             - Show one memory
!update <id> <text>   - Replace the content of a memory
!delete <id>          - Delete a memory
!forget               - Delete every memory of the current scope
!history <id>         - Show the changes made to a memory
!reset                - Delete every memory and all history
!config               - Show current configuration
!quit                 - Exit the application

Text without a command is added like !add.`

// session is the state of one client run.
type session struct {
	mem   *recall.Memory
	cfg   *config.Config
	scope model.Scope
	infer bool
	out   io.Writer
}

func newSession(mem *recall.Memory, cfg *config.Config, out io.Writer) *session {
	return &session{
		mem:   mem,
		cfg:   cfg,
		scope: model.Scope{UserID: "default-user"},
		infer: cfg.Reasoning.Provider != config.ProviderNone,
		out:   out,
	}
}

func (s *session) prompt() string {
	var parts []string
	for _, p := range []struct{ key, val string }{
		{"user", s.scope.UserID},
		{"agent", s.scope.AgentID},
		{"run", s.scope.RunID},
	} {
		if p.val != "" {
			parts = append(parts, p.key+"="+p.val)
		}
	}
	return fmt.Sprintf("recall[%s]> ", strings.Join(parts, ","))
}

func (s *session) printBanner() {
	fmt.Fprintf(s.out, "Vector store: %s | Embedder: %s (%d dims) | Reasoning: %s\n",
		s.cfg.VectorStore.Provider, s.cfg.Embedder.Provider, s.cfg.Embedder.Dimensions, s.cfg.Reasoning.Provider)
}

// execute runs one input line and returns false when the client should exit.
func (s *session) execute(ctx context.Context, input string) bool {
	if !strings.HasPrefix(input, "!") {
		s.add(ctx, input)
		return true
	}

	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case cmdHelp:
		fmt.Fprintln(s.out, helpText)
	case cmdQuit:
		return false
	case cmdUser:
		s.scope.UserID = arg
		fmt.Fprintf(s.out, "User set to: %q\n", arg)
	case cmdAgent:
		s.scope.AgentID = arg
		fmt.Fprintf(s.out, "Agent set to: %q\n", arg)
	case cmdRun:
		s.scope.RunID = arg
		fmt.Fprintf(s.out, "Run set to: %q\n", arg)
	case cmdInfer:
		s.setInfer(arg)
	case cmdAdd:
		if s.require(arg, "Text") {
			s.add(ctx, arg)
		}
	case cmdPut:
		if s.require(arg, "Text") {
			s.put(ctx, arg)
		}
	case cmdSearch:
		if s.require(arg, "Query") {
			s.search(ctx, arg)
		}
	case cmdList:
		s.list(ctx)
	case cmdGet:
		if s.require(arg, "Memory ID") {
			s.get(ctx, arg)
		}
	case cmdUpdate:
		id, text, _ := strings.Cut(arg, " ")
		if s.require(id, "Memory ID") && s.require(strings.TrimSpace(text), "Text") {
			s.update(ctx, id, strings.TrimSpace(text))
		}
	case cmdDelete:
		if s.require(arg, "Memory ID") {
			s.delete(ctx, arg)
		}
	case cmdForget:
		s.forget(ctx)
	case cmdHistory:
		if s.require(arg, "Memory ID") {
			s.history(ctx, arg)
		}
	case cmdReset:
		if err := s.mem.Reset(ctx); err != nil {
			fmt.Fprintf(s.out, "Error resetting memory: %v\n", err)
			return true
		}
		fmt.Fprintln(s.out, "All memories and history removed")
	case cmdConfig:
		s.printConfig()
	default:
		fmt.Fprintf(s.out, "Unknown command: %s\nType !help for available commands.\n", cmd)
	}
	return true
}

func (s *session) require(arg, what string) bool {
	if arg == "" {
		fmt.Fprintf(s.out, "%s required\n", what)
		return false
	}
	return true
}

func (s *session) setInfer(arg string) {
	switch strings.ToLower(arg) {
	case "on":
		s.infer = true
	case "off":
		s.infer = false
	default:
		fmt.Fprintln(s.out, "Usage: !infer on|off")
		return
	}
	fmt.Fprintf(s.out, "Inference: %v\n", s.infer)
}

func (s *session) add(ctx context.Context, text string) {
	events, err := s.mem.AddText(ctx, text, recall.AddOptions{Scope: s.scope, Infer: s.infer})
	for _, e := range events {
		s.printEvent(e)
	}
	if err != nil {
		fmt.Fprintf(s.out, "Error adding memory: %v\n", err)
		return
	}
	if len(events) == 0 {
		fmt.Fprintln(s.out, "No changes")
	}
}

func (s *session) printEvent(e model.MemoryEvent) {
	if e.Event == model.EventUpdate {
		fmt.Fprintf(s.out, "%s %s: %s (was: %s)\n", e.Event, e.ID, e.Memory, e.PreviousMemory)
		return
	}
	fmt.Fprintf(s.out, "%s %s: %s\n", e.Event, e.ID, e.Memory)
}

func (s *session) put(ctx context.Context, text string) {
	rec, err := s.mem.Put(model.ContextWithScope(ctx, s.scope), text, nil)
	if err != nil {
		fmt.Fprintf(s.out, "Error storing memory: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Memory stored with ID: %s\n", rec.ID)
}

func (s *session) search(ctx context.Context, query string) {
	results, err := s.mem.Search(ctx, query, recall.SearchOptions{Scope: s.scope})
	if err != nil {
		fmt.Fprintf(s.out, "Error searching memories: %v\n", err)
		return
	}
	if len(results) == 0 {
		fmt.Fprintln(s.out, "No memories found for the query.")
		return
	}
	fmt.Fprintf(s.out, "Found %d memories:\n", len(results))
	for i, r := range results {
		fmt.Fprintf(s.out, "%d. [%.3f] %s (%s)\n", i+1, r.Score, r.Record.Content, r.Record.ID)
	}
}

func (s *session) list(ctx context.Context) {
	records, err := s.mem.GetAll(ctx, recall.GetAllOptions{Scope: s.scope})
	if err != nil {
		fmt.Fprintf(s.out, "Error listing memories: %v\n", err)
		return
	}
	if len(records) == 0 {
		fmt.Fprintln(s.out, "No memories stored.")
		return
	}
	for _, rec := range records {
		fmt.Fprintf(s.out, "%s  %s\n", rec.ID, rec.Content)
	}
}

func (s *session) get(ctx context.Context, id string) {
	rec, err := s.mem.Get(ctx, id)
	if err != nil {
		fmt.Fprintf(s.out, "Error getting memory: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "ID: %s\nContent: %s\nCreated: %s\n", rec.ID, rec.Content, rec.CreatedAt.Format("2006-01-02 15:04:05"))
	if !rec.UpdatedAt.IsZero() {
		fmt.Fprintf(s.out, "Updated: %s\n", rec.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}

func (s *session) update(ctx context.Context, id, text string) {
	if _, err := s.mem.Update(ctx, id, text); err != nil {
		fmt.Fprintf(s.out, "Error updating memory: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Memory %s updated\n", id)
}

func (s *session) delete(ctx context.Context, id string) {
	if err := s.mem.Delete(ctx, id); err != nil {
		fmt.Fprintf(s.out, "Error deleting memory: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Memory %s deleted\n", id)
}

func (s *session) forget(ctx context.Context) {
	n, err := s.mem.DeleteAll(ctx, s.scope)
	if err != nil {
		fmt.Fprintf(s.out, "Error deleting memories: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Deleted %d memories\n", n)
}

func (s *session) history(ctx context.Context, id string) {
	entries, err := s.mem.History(ctx, id)
	if err != nil {
		fmt.Fprintf(s.out, "Error reading history: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Fprintln(s.out, "No history recorded.")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(s.out, "%s %-6s old=%q new=%q\n", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Event, e.OldMemory, e.NewMemory)
	}
}

func (s *session) printConfig() {
	fmt.Fprintln(s.out, "\nCurrent Configuration:")
	fmt.Fprintln(s.out, "======================")
	fmt.Fprintf(s.out, "Collection: %s\n", s.cfg.CollectionName)
	fmt.Fprintf(s.out, "Embedder: %s (%d dims, cache %v)\n", s.cfg.Embedder.Provider, s.cfg.Embedder.Dimensions, s.cfg.Embedder.Cache.Enabled)
	fmt.Fprintf(s.out, "Vector Store: %s\n", s.cfg.VectorStore.Provider)
	fmt.Fprintf(s.out, "Search: max %d results, threshold %.2f\n", s.cfg.Search.MaxResults, s.cfg.Search.SimilarityThreshold)
	fmt.Fprintf(s.out, "Reasoning Provider: %s\n", s.cfg.Reasoning.Provider)
	fmt.Fprintf(s.out, "History: %s\n", s.cfg.History.Provider)
	fmt.Fprintf(s.out, "Scripts: %v\n", s.cfg.Scripting.Paths)
	fmt.Fprintf(s.out, "Log Level: %s\n", s.cfg.Logging.Level)
	fmt.Fprintf(s.out, "Inference: %v\n", s.infer)
}
