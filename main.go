package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"polychat/config"
	"polychat/mcp"
	"polychat/model"
	"polychat/provider"
	"polychat/render"
	"polychat/storage"
	"polychat/window"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
)

const (
	Version = "v0.01.00"
	License = "Apache-2.0"
)

type options struct {
	configPath string
	provider   string
	model      string
	system     string
	session    string
	store      string
	render     bool
	copy       bool
	listModels bool
	search     string
	budget     int
	noTools    bool
	ping       bool
	export     string
	set        []string
	version    bool
}

func parseFlags(args []string) (*options, []string, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("polychat", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "user config file (default <data_dir>/config.toml)")
	fs.StringVarP(&opts.provider, "provider", "p", "", "provider id (default from config)")
	fs.StringVarP(&opts.model, "model", "m", "", "model name")
	fs.StringVarP(&opts.system, "system", "s", "", "system prompt")
	fs.StringVar(&opts.session, "session", "", `resume a stored conversation by id, or "last"`)
	fs.StringVar(&opts.store, "store", "", "storage backend: file or sqlite (default from config)")
	fs.BoolVarP(&opts.render, "render", "r", false, "render the reply as markdown")
	fs.BoolVar(&opts.copy, "copy", false, "copy the reply to the clipboard")
	fs.BoolVar(&opts.listModels, "list-models", false, "list the provider's models and exit")
	fs.StringVar(&opts.search, "search", "", "search stored conversations and exit")
	fs.IntVar(&opts.budget, "budget", 0, "context window size in tokens (default from config)")
	fs.BoolVar(&opts.noTools, "no-tools", false, "do not start the tool servers from tools.toml")
	fs.BoolVar(&opts.ping, "ping", false, "check the provider is reachable and exit")
	fs.StringVar(&opts.export, "export", "", "export the --session conversation to a JSON file and exit")
	fs.Lookup("export").NoOptDefVal = "auto"
	fs.StringArrayVar(&opts.set, "set", nil, "save a setting and exit: <provider>.<base_url|model|enabled>=value or data_directory=path")
	fs.BoolVarP(&opts.version, "version", "v", false, "print version and exit")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: polychat [flags] [prompt...]\n\nThe prompt is read from stdin when no arguments are given.\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return opts, fs.Args(), nil
}

func main() {
	opts, args, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.version {
		fmt.Printf("polychat %s (%s)\n", Version, License)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, args); err != nil {
		fmt.Fprintln(os.Stderr, render.ErrorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, args []string) error {
	cfg, err := config.LoadFrom(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize debug logging after config is loaded
	config.InitDebugLog(cfg.DataDir())

	if len(opts.set) > 0 {
		return applySettings(cfg.DataDir(), opts.set)
	}

	storeKind := cfg.Storage
	if opts.store != "" {
		storeKind = opts.store
	}
	store, err := storage.Open(storeKind, cfg.DataDir())
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	defer store.Close()

	if opts.search != "" {
		return search(os.Stdout, storage.NewSearchIndex(store), opts.search)
	}
	if opts.export != "" {
		return export(store, cfg, opts)
	}

	providerID := cfg.DefaultProvider
	if opts.provider != "" {
		providerID = opts.provider
	}

	// --ping and --list-models work for disabled providers too.
	if opts.ping || opts.listModels {
		pc := provider.ConfigFor(cfg, providerID)
		if opts.model != "" {
			pc.Model = opts.model
		}
		if opts.ping {
			if err := provider.PingProvider(ctx, pc); err != nil {
				return err
			}
			fmt.Println(render.AssistantStyle.Render(providerID + " is reachable"))
			return nil
		}
		models, err := provider.FetchModels(ctx, pc)
		if err != nil {
			return fmt.Errorf("failed to list models: %w", err)
		}
		printModels(os.Stdout, models, pc.Model)
		return nil
	}

	providers := provider.InitializeProviders(cfg)
	p, ok := providers[providerID]
	if !ok {
		return missingProvider(cfg, providerID, providers)
	}
	if opts.model != "" {
		p.SetModel(opts.model)
	}

	prompt, err := readPrompt(args, os.Stdin)
	if err != nil {
		return err
	}

	conv, err := openConversation(store, cfg, opts)
	if err != nil {
		return err
	}

	mgr, err := window.New(conv, windowConfig(cfg, opts, p))
	if err != nil {
		return fmt.Errorf("failed to create context window: %w", err)
	}
	defer mgr.Close()
	if config.DebugLog != nil {
		updates, unsubscribe := mgr.Subscribe()
		defer unsubscribe()
		go logUpdates(updates)
	}

	t := turn{
		provider: p,
		window:   mgr,
		prompt:   prompt,
		live:     !opts.render,
		out:      os.Stdout,
	}
	if tools, registry := startTools(ctx, cfg, opts); registry != nil {
		defer registry.Close()
		t.tools, t.caller = tools, registry
	}

	result, turnErr := runTurn(ctx, t)

	// Save even a failed turn so the prompt is not lost.
	if err := store.Save(mgr.Conversation()); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	if err := storage.SaveCurrentID(cfg.DataDir(), mgr.Conversation().ID()); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Main] failed to record current conversation: %v", err)
	}
	if turnErr != nil {
		return turnErr
	}

	if opts.render {
		fmt.Println(render.Markdown(result.text, terminalWidth()))
	}
	if opts.copy {
		if err := render.Copy(result.text); err != nil {
			fmt.Fprintln(os.Stderr, render.WarningStyle.Render(err.Error()))
		}
	}

	fmt.Fprintln(os.Stderr, render.Footer(render.FooterInfo{
		Provider: providerID,
		Model:    p.GetDisplayName(),
		Usage:    result.usage,
		Context:  mgr.EstimatedTokens(),
		Budget:   mgr.Config().Budget(),
		Evicted:  result.evicted,
		Overflow: mgr.Overflow(),
	}))
	fmt.Fprintln(os.Stderr, render.DimStyle.Render("conversation "+mgr.Conversation().ID()))
	return nil
}

func missingProvider(cfg *config.Config, id string, providers map[string]model.Provider) error {
	var available []string
	for pid := range providers {
		available = append(available, pid)
	}
	sort.Strings(available)

	if _, configured := cfg.Provider(id); configured && provider.MapProviderIDToType(id) != provider.ProviderTypeOllama {
		return fmt.Errorf("provider %q is not available; is it enabled and %s set? (available: %s)",
			id, config.APIKeyEnvVar(id), strings.Join(available, ", "))
	}
	return fmt.Errorf("provider %q is not available (available: %s)", id, strings.Join(available, ", "))
}

func readPrompt(args []string, stdin *os.File) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if isatty.IsTerminal(stdin.Fd()) || isatty.IsCygwinTerminal(stdin.Fd()) {
		return "", fmt.Errorf("no prompt given; pass it as arguments or on stdin")
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("empty prompt")
	}
	return prompt, nil
}

// openConversation resumes --session or starts a new conversation.
func openConversation(store storage.Store, cfg *config.Config, opts *options) (*model.Conversation, error) {
	systemPrompt := cfg.DefaultSystemPrompt
	if opts.system != "" {
		systemPrompt = opts.system
	}

	id := opts.session
	if id == "" {
		return model.NewConversation(systemPrompt), nil
	}
	if id == "last" {
		last, err := storage.LoadCurrentID(cfg.DataDir())
		if err != nil {
			return nil, fmt.Errorf("no previous conversation to resume: %w", err)
		}
		id = last
	}

	conv, err := store.Load(id)
	if err != nil {
		return nil, fmt.Errorf("failed to resume conversation: %w", err)
	}
	if opts.system != "" {
		conv.SetSystemPrompt(opts.system)
	}
	return conv, nil
}

func windowConfig(cfg *config.Config, opts *options, p model.Provider) window.Config {
	wc := window.Config{
		MaxTokens:      cfg.Context.MaxTokens,
		ReservedTokens: cfg.Context.ReservedTokens,
		Policy:         window.Policy(cfg.Context.Policy),
	}
	if opts.budget > 0 {
		wc.MaxTokens = opts.budget
	}
	if wc.ReservedTokens >= wc.MaxTokens {
		wc.ReservedTokens = wc.MaxTokens / 8
	}
	if policy, err := window.ParsePolicy(cfg.Context.Policy); err == nil && policy == window.PolicySummarize {
		wc.Summarizer = provider.NewSummarizer(p, time.Duration(cfg.Transport.TimeoutSeconds)*time.Second)
	}
	return wc
}

func logUpdates(updates <-chan window.Update) {
	for u := range updates {
		config.DebugLog.Printf("[Window] %s: %d messages (%d tokens), ids=%v fallback=%v",
			u.Kind, u.MessageCount, u.EstimatedTokens, u.MessageIDs, u.Fallback)
	}
}

// startTools starts the enabled servers from tools.toml. Servers that fail
// to start are reported and skipped.
func startTools(ctx context.Context, cfg *config.Config, opts *options) ([]mcp.Tool, *mcp.Registry) {
	if opts.noTools {
		return nil, nil
	}
	servers, err := config.LoadToolServers(cfg.DataDir())
	if err != nil {
		fmt.Fprintln(os.Stderr, render.WarningStyle.Render(err.Error()))
		return nil, nil
	}
	names := servers.Enabled()
	if len(names) == 0 {
		return nil, nil
	}

	registry := mcp.NewRegistry()
	for _, name := range names {
		entry := servers.Servers[name]
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Main] starting tool server %s: %s %v env=%v", name, entry.Command, entry.Args, entry.Redacted())
		}
		s, err := mcp.StartStdio(ctx, name, entry.Command, entry.Args, entry.Environment())
		if err != nil {
			fmt.Fprintln(os.Stderr, render.WarningStyle.Render(err.Error()))
			continue
		}
		registry.Add(s)
	}
	return registry.Tools(), registry
}

// printModels lists models, marking current.
func printModels(w io.Writer, models []model.ModelInfo, current string) {
	for _, m := range models {
		line := m.Name
		if m.Size > 0 {
			line += render.DimStyle.Render(fmt.Sprintf("  %.1f GB", float64(m.Size)/1e9))
		}
		if current != "" && (m.InternalName == current || m.Name == current) {
			line = render.AssistantStyle.Render("* ") + line
		} else {
			line = "  " + line
		}
		fmt.Fprintln(w, line)
	}
}

// applySettings saves each key=value setting. Provider fields go to
// config.toml; data_directory goes to settings.toml.
func applySettings(dataDir string, settings []string) error {
	for _, setting := range settings {
		key, value, ok := strings.Cut(setting, "=")
		if !ok {
			return fmt.Errorf("invalid setting %q, want key=value", setting)
		}
		if key == "data_directory" {
			sys, err := config.LoadSystemConfig()
			if err != nil {
				return err
			}
			sys.DataDirectory = value
			if err := config.SaveSystemConfig(sys); err != nil {
				return err
			}
			continue
		}

		providerID, field, ok := strings.Cut(key, ".")
		if !ok {
			return fmt.Errorf("invalid setting key %q, want <provider>.<field>", key)
		}
		if err := config.UpdateProviderField(dataDir, providerID, field, value); err != nil {
			return err
		}
	}
	return nil
}

// export writes the --session conversation to --export, or to a generated
// path in ~/Downloads for "auto".
func export(store storage.Store, cfg *config.Config, opts *options) error {
	if opts.session == "" {
		return fmt.Errorf("--export needs --session")
	}
	conv, err := openConversation(store, cfg, opts)
	if err != nil {
		return err
	}
	path := opts.export
	if path == "auto" {
		path = storage.GenerateExportPath(conv.Title())
	}
	if err := storage.Export(conv, config.ExpandPath(path)); err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func search(w io.Writer, si *storage.SearchIndex, query string) error {
	titles, err := si.SearchTitles(query)
	if err != nil {
		return err
	}
	messages, err := si.SearchMessages(query)
	if err != nil {
		return err
	}

	if len(titles) > 0 {
		fmt.Fprintln(w, render.TitleStyle.Render("Conversations"))
		for _, m := range titles {
			fmt.Fprintf(w, "  %s  %s %s\n", m.ID, m.Title,
				render.DimStyle.Render(fmt.Sprintf("(%d messages, %s)", m.MessageCount, m.UpdatedAt.Format("Jan 2 15:04"))))
		}
	}
	if len(messages) > 0 {
		fmt.Fprintln(w, render.TitleStyle.Render("Messages"))
		for _, r := range messages {
			fmt.Fprintf(w, "  %s #%d %s: %s\n", r.ConversationID, r.MessageIndex,
				render.UserStyle.Render(r.Role), r.Preview)
		}
	}
	if len(titles) == 0 && len(messages) == 0 {
		fmt.Fprintln(w, render.DimStyle.Render("no matches"))
	}
	return nil
}

func terminalWidth() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 100
}
