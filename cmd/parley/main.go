// ABOUTME: Entry point for the parley terminal client
// ABOUTME: Wires the gateway collaborators and runs the interactive loop

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/parley/internal/api"
	"github.com/2389/parley/internal/attach"
	"github.com/2389/parley/internal/catalog"
	"github.com/2389/parley/internal/config"
	"github.com/2389/parley/internal/conversation"
	"github.com/2389/parley/internal/convcache"
	"github.com/2389/parley/internal/orchestrator"
	"github.com/2389/parley/internal/status"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                     _
 _ __   __ _ _ __| | ___ _   _
| '_ \ / _' | '__| |/ _ \ | | |
| |_) | (_| | |  | |  __/ |_| |
| .__/ \__,_|_|  |_|\___|\__, |
|_|                      |___/
`

// getConfigPath returns the path to the client config file.
// Priority: PARLEY_CONFIG env var > XDG_CONFIG_HOME/parley/parley.yaml > ~/.config/parley/parley.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PARLEY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "parley.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "parley", "parley.yaml")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var (
		configPath     string
		serverURL      string
		token          string
		conversationID string
	)

	fs := flag.NewFlagSet("parley", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "path to config file")
	fs.StringVar(&serverURL, "server", "", "gateway base URL (overrides config)")
	fs.StringVar(&token, "token", "", "gateway auth token (overrides config)")
	fs.StringVar(&conversationID, "conversation", "", "conversation id to resume")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.Server.BaseURL = serverURL
	}
	if token != "" {
		cfg.Server.Token = token
	}
	if cfg.Server.BaseURL == "" {
		return fmt.Errorf("no gateway URL configured (set server.base_url or pass -server)")
	}

	logger := setupLogger(cfg.Logging)

	fmt.Print(color.CyanString(banner))
	fmt.Printf("parley %s — %s\n\n", version, cfg.Server.BaseURL)

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	uploader := attach.NewHTTPUploader(cfg.Server.BaseURL, cfg.Server.Token, cfg.Attachments.UploadTimeout)
	attachments := attach.NewManager(uploader, cfg.Attachments.MaxSizeBytes, logger, printAttachmentChange)
	dispatcher := orchestrator.NewHTTPDispatcher(cfg.Server.BaseURL, cfg.Server.Token, nil)
	history := conversation.NewHistoryClient(cfg.Server.BaseURL, cfg.Server.Token, nil)

	var cache *convcache.Cache
	if cfg.Cache.Path != "" {
		cache, err = convcache.Open(cfg.Cache.Path)
		if err != nil {
			logger.Warn("conversation cache unavailable", "path", cfg.Cache.Path, "error", err)
		} else {
			defer cache.Close()
		}
	}

	statusCfg := status.Config{
		BaseURL:        cfg.Server.BaseURL,
		Token:          cfg.Server.Token,
		InitialBackoff: cfg.Status.InitialBackoff,
		MaxBackoff:     cfg.Status.MaxBackoff,
		MaxAttempts:    cfg.Status.MaxAttempts,
		HealthInterval: cfg.Status.HealthInterval,
	}
	opener := func(onNarration func(string)) orchestrator.NarrationChannel {
		return status.Open(statusCfg, func(msg string) {
			onNarration(msg)
			fmt.Println(color.HiBlackString("  … " + msg))
		}, logger)
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Catalog:     cat,
		Attachments: attachments,
		Dispatcher:  dispatcher,
		History:     history,
		Cache:       cache,
		OpenChannel: opener,
		SessionWait: cfg.Status.SessionWait,
		Logger:      logger,
		OnLocation: func(id string) {
			fmt.Println(color.HiBlackString("  → /c/" + id))
		},
	})
	if err != nil {
		return err
	}
	defer orch.Close()

	if conversationID != "" {
		if err := orch.LoadConversation(ctx, conversationID); err != nil {
			return fmt.Errorf("loading conversation %s: %w", conversationID, err)
		}
		printTranscript(orch)
	}

	return repl(ctx, orch, attachments, cat)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = getConfigPath()
		if _, err := os.Stat(path); err != nil {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.Path == "" {
		return catalog.Builtin(), nil
	}
	cat, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("loading model catalog: %w", err)
	}
	return cat, nil
}

// repl reads lines from stdin. Lines starting with "/" are commands; anything
// else is sent as a chat turn.
func repl(ctx context.Context, orch *orchestrator.Orchestrator, attachments *attach.Manager, cat *catalog.Catalog) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print(color.GreenString("> "))
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := runCommand(ctx, orch, attachments, cat, line)
			if err != nil {
				fmt.Println(color.RedString("  " + err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		submit(ctx, orch, line)
	}
}

func submit(ctx context.Context, orch *orchestrator.Orchestrator, text string) {
	before := len(orch.Transcript())
	if err := orch.Submit(ctx, text); err != nil {
		fmt.Println(color.RedString("  " + err.Error()))
		return
	}

	turns := orch.Transcript()
	for _, t := range turns[min(before+1, len(turns)):] {
		if t.Role == conversation.RoleAssistant {
			fmt.Println()
			fmt.Println(t.Display)
		}
	}
	for _, e := range orch.Entries() {
		if e.Kind == orchestrator.EntryArtifact {
			fmt.Println(color.HiBlackString("  [" + e.Label + "] " + e.Text))
		}
	}
}

func runCommand(ctx context.Context, orch *orchestrator.Orchestrator, attachments *attach.Manager, cat *catalog.Catalog, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		printHelp()

	case "/attach":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /attach <path>")
		}
		return false, attachFile(ctx, attachments, args[0])

	case "/rm":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /rm <id>")
		}
		attachments.Remove(ctx, args[0])

	case "/attachments":
		for _, a := range attachments.All() {
			fmt.Printf("  %s  %-12s %s\n", a.ID, a.State, a.Name)
		}

	case "/models":
		sel := orch.Selection()
		for i, o := range cat.Options() {
			marker := "  "
			if o.Key() == sel.Key() {
				marker = color.GreenString("* ")
			}
			fmt.Printf("%s%2d  %s\n", marker, i+1, o.Display)
		}

	case "/model":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /model <number>")
		}
		n, convErr := strconv.Atoi(args[0])
		opts := cat.Options()
		if convErr != nil || n < 1 || n > len(opts) {
			return false, fmt.Errorf("no such model; see /models")
		}
		orch.SetSelection(opts[n-1])
		fmt.Println("  model: " + opts[n-1].Display)

	case "/override":
		if len(args) == 0 {
			orch.SetModelOverride("")
			fmt.Println("  override cleared")
		} else {
			orch.SetModelOverride(args[0])
			fmt.Println("  override: " + args[0])
		}

	case "/temp":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /temp <0..2>")
		}
		t, convErr := strconv.ParseFloat(args[0], 64)
		if convErr != nil {
			return false, fmt.Errorf("not a number: %s", args[0])
		}
		orch.SetTemperature(t)

	case "/system":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: /system <id> [text...]")
		}
		orch.SetSystemMessage(args[0], strings.Join(args[1:], " "))

	case "/search":
		on, parseErr := parseOnOff(args)
		if parseErr != nil {
			return false, parseErr
		}
		orch.SetWebSearch(on)
		printToggles(orch)

	case "/deep":
		on, parseErr := parseOnOff(args)
		if parseErr != nil {
			return false, parseErr
		}
		orch.SetDeepSearch(on)
		printToggles(orch)

	case "/open":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /open <conversation-id>")
		}
		if err := orch.LoadConversation(ctx, args[0]); err != nil {
			return false, err
		}
		printTranscript(orch)

	case "/list":
		page, listErr := orch.ListConversations(ctx, 1, 20)
		if listErr != nil {
			// Offline fallback: show what the local cache has.
			cached := orch.CachedConversations(ctx, 20)
			if len(cached) == 0 {
				return false, listErr
			}
			fmt.Println(color.YellowString("  (gateway unreachable, showing cached)"))
			printSummaries(cached)
			return false, nil
		}
		printSummaries(page.Conversations)

	case "/usage":
		u := orch.Usage()
		fmt.Printf("  prompt=%d completion=%d total=%d\n", u.PromptTokens, u.CompletionTokens, u.TotalTokens)

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}

	return false, nil
}

func attachFile(ctx context.Context, attachments *attach.Manager, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	// Select takes ownership of the reader for the background upload; close
	// once the attachment reaches a terminal state.
	id := attachments.Select(ctx, filepath.Base(path), mimeType, info.Size(), &closeOnDone{File: f})
	fmt.Printf("  staging %s (%s)\n", filepath.Base(path), id)
	return nil
}

// closeOnDone closes the underlying file after the final Read. The manager
// reads attachments to completion (or abandons them on cancel), so closing on
// io.EOF or read error covers both paths.
type closeOnDone struct {
	*os.File
	once sync.Once
}

func (c *closeOnDone) Read(b []byte) (int, error) {
	n, err := c.File.Read(b)
	if err != nil {
		c.once.Do(func() { c.File.Close() })
	}
	return n, err
}

func printAttachmentChange(a attach.Attachment) {
	switch a.State {
	case attach.StateProcessed:
		fmt.Println(color.GreenString("  ✓ " + a.Name + " (" + a.ID + ")"))
	case attach.StateError:
		fmt.Println(color.RedString("  ✗ " + a.Name + ": " + a.Err))
	}
}

func printToggles(orch *orchestrator.Orchestrator) {
	web, deep := orch.Toggles()
	fmt.Printf("  web_search=%t deep_search=%t\n", web, deep)
}

func printTranscript(orch *orchestrator.Orchestrator) {
	title := orch.Title()
	if title == "" {
		title = orch.ConversationID()
	}
	fmt.Println(color.CyanString("— " + title))
	for _, t := range orch.Transcript() {
		switch t.Role {
		case conversation.RoleSystem:
			fmt.Println(color.HiBlackString("[system] " + t.Display))
		case conversation.RoleUser:
			fmt.Println(color.GreenString("you: ") + t.Display)
		case conversation.RoleAssistant:
			fmt.Println(t.Display)
		}
	}
}

func printSummaries(convs []api.ConversationSummary) {
	for _, c := range convs {
		fmt.Printf("  %s  %s\n", c.ID, c.Title)
	}
}

func printHelp() {
	fmt.Print(`  /attach <path>        stage a file for the next turn
  /rm <id>              remove a staged attachment
  /attachments          list staged attachments
  /models               list available models
  /model <number>       select a model
  /override [api-name]  force a backend model id (no args clears)
  /temp <0..2>          set sampling temperature
  /system <id> [text]   set the system message
  /search on|off        toggle web search
  /deep on|off          toggle deep search (implies web search)
  /open <id>            load a conversation
  /list                 list recent conversations
  /usage                show token usage for this conversation
  /quit                 exit
`)
}

func parseOnOff(args []string) (bool, error) {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		return false, fmt.Errorf("expected on or off")
	}
	return args[0] == "on", nil
}
