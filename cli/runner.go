// Command execution for CLI commands.
//
// Information Hiding:
// - Document loading and fingerprinting
// - Streaming output and usage formatting
// - Server lifecycle and signal handling

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/richinex/folio/completion"
	"github.com/richinex/folio/config"
	"github.com/richinex/folio/llm"
	"github.com/richinex/folio/model"
	"github.com/richinex/folio/server"
	"github.com/richinex/folio/storage"
	"github.com/richinex/folio/usage"
)

// defaultNotebook is used when a document is given without a notebook.
const defaultNotebook = "default"

// AskOptions holds the arguments of a single question.
type AskOptions struct {
	DocPath      string
	NotebookID   string
	SystemPrompt string
	CacheID      string
	MaxTokens    uint32
	Temperature  *float32
}

// Ask streams the answer to one prompt.
func Ask(ctx context.Context, prompt string, ask AskOptions, opts Options) error {
	app, err := openApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	return askOnce(ctx, app, prompt, ask, opts.out())
}

// Chat starts an interactive session over one document.
func Chat(ctx context.Context, ask AskOptions, opts Options) error {
	app, err := openApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	out := opts.out()
	if ask.DocPath != "" {
		fmt.Fprintf(out, "Chatting about %s. Type 'exit' to quit.\n\n", ask.DocPath)
	} else {
		fmt.Fprintf(out, "Chat with %s. Type 'exit' to quit.\n\n", app.Streamer.Model())
	}

	scanner := bufio.NewScanner(opts.in())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		if err := askOnce(ctx, app, input, ask, out); err != nil {
			fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
		}
	}

	return scanner.Err()
}

func askOnce(ctx context.Context, app *App, prompt string, ask AskOptions, out io.Writer) error {
	req := completion.Request{
		Prompt:          prompt,
		SystemPrompt:    ask.SystemPrompt,
		MaxTokens:       ask.MaxTokens,
		Temperature:     ask.Temperature,
		ExistingCacheID: ask.CacheID,
	}

	if ask.DocPath != "" {
		doc, err := os.ReadFile(ask.DocPath)
		if err != nil {
			return fmt.Errorf("failed to read document: %w", err)
		}
		req.Document = doc
		req.DocumentMIMEType = llm.MIMETypePDF
	}

	notebook := ask.NotebookID
	if notebook == "" {
		notebook = defaultNotebook
	}

	res, err := app.Notebook.Chat(ctx, notebook, req)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	for tok := range res.Tokens {
		fmt.Fprint(out, tok)
	}
	fmt.Fprintln(out)

	if err := res.Wait(); err != nil {
		kind := llm.KindOf(err)
		return fmt.Errorf("%s (%s): %w", kind.UserMessage(), kind, err)
	}

	printResultStats(out, res, len(req.Document))
	return nil
}

// printResultStats prints the context mode and token usage of a stream.
func printResultStats(out io.Writer, res *completion.Result, docBytes int) {
	fmt.Fprintf(out, "\nContext: %s", res.Mode)
	if docBytes > 0 {
		fmt.Fprintf(out, " (document %s)", humanize.Bytes(uint64(docBytes)))
	}
	fmt.Fprintln(out)
	if res.NewCacheID != "" {
		fmt.Fprintf(out, "  Cache: %s\n", res.NewCacheID)
	}

	u, ok := res.Usage()
	if !ok {
		return
	}
	printUsage(out, u)
}

func printUsage(out io.Writer, u usage.Snapshot) {
	fmt.Fprintf(out, "\nToken Usage:\n")
	fmt.Fprintf(out, "  Prompt tokens: %s\n", humanize.Comma(int64(u.PromptTokens)))
	fmt.Fprintf(out, "  Completion tokens: %s\n", humanize.Comma(int64(u.CompletionTokens)))
	fmt.Fprintf(out, "  Total tokens: %s\n", humanize.Comma(int64(u.TotalTokens)))
	fmt.Fprintf(out, "  Estimated cost: $%s\n", humanize.FormatFloat("#,###.######", u.EstimatedCost))
}

// CacheShow prints the live cache record for a document file.
func CacheShow(ctx context.Context, docPath string, opts Options) error {
	app, err := openApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	doc, err := os.ReadFile(docPath)
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	fp := storage.Fingerprint(doc)
	out := opts.out()
	fmt.Fprintf(out, "Document: %s (%s)\n", docPath, humanize.Bytes(uint64(len(doc))))
	fmt.Fprintf(out, "Fingerprint: %s\n", fp)

	record, err := app.Records.GetCacheRecord(ctx, fp)
	if err != nil {
		return fmt.Errorf("failed to look up cache record: %w", err)
	}
	if record == nil {
		fmt.Fprintln(out, "No live cache.")
		return nil
	}
	printRecord(out, *record)
	return nil
}

// CacheList prints the live cache records of a notebook.
func CacheList(ctx context.Context, notebookID string, opts Options) error {
	app, err := openApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	lister, ok := app.Records.(storage.CacheRecordLister)
	if !ok {
		return fmt.Errorf("storage backend %q cannot list cache records", app.Settings.Storage.Backend)
	}

	records, err := lister.ListCacheRecords(ctx, notebookID)
	if err != nil {
		return fmt.Errorf("failed to list cache records: %w", err)
	}

	out := opts.out()
	if len(records) == 0 {
		fmt.Fprintf(out, "No live caches for notebook %q.\n", notebookID)
		return nil
	}
	fmt.Fprintf(out, "Live caches for notebook %q:\n\n", notebookID)
	for _, r := range records {
		printRecord(out, r)
		fmt.Fprintln(out)
	}
	return nil
}

func printRecord(out io.Writer, r model.CacheRecord) {
	fmt.Fprintf(out, "  Fingerprint: %s\n", r.Fingerprint)
	fmt.Fprintf(out, "  Cache: %s\n", r.RemoteCacheID)
	fmt.Fprintf(out, "  Notebook: %s\n", r.OwnerID)
	fmt.Fprintf(out, "  Expires: %s (%s)\n", r.ExpiresAt.Format(time.RFC3339), humanize.Time(r.ExpiresAt))
}

// Serve runs the HTTP server until interrupted.
func Serve(ctx context.Context, addr string, opts Options) error {
	app, err := openApp(opts)
	if err != nil {
		return err
	}
	defer app.Close()

	if addr == "" {
		addr = app.Settings.Server.Addr
	}
	srv := server.New(app.Notebook, app.Records, server.WithLogger(app.Log))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.Log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return <-errCh
}

// ConfigCheck validates settings and prints them with secrets masked.
func ConfigCheck(opts Options) error {
	settings, err := config.New(opts.Provider)
	if err != nil {
		return err
	}

	out := opts.out()
	fmt.Fprintf(out, "Provider: %s\n", settings.LLM.Provider)
	fmt.Fprintf(out, "  Model: %s\n", settings.LLM.Model)
	fmt.Fprintf(out, "  API key: %s\n", maskSecret(settings.LLM.APIKey))
	fmt.Fprintf(out, "  Max tokens: %d\n", settings.LLM.MaxTokens)
	fmt.Fprintf(out, "  Temperature: %.2f\n", settings.LLM.Temperature)
	cost := settings.LLM.CostPer1kTokens
	if cost <= 0 {
		cost = llm.CostPer1kTokens(settings.LLM.Model)
	}
	fmt.Fprintf(out, "  Cost per 1k tokens: $%s\n", humanize.FormatFloat("#,###.######", cost))
	fmt.Fprintf(out, "Cache:\n")
	fmt.Fprintf(out, "  TTL: %s\n", settings.Cache.TTL)
	fmt.Fprintf(out, "  Scratch dir: %s\n", settings.Cache.ScratchDir)
	fmt.Fprintf(out, "  Polling: %d attempts every %s\n", settings.Cache.PollAttempts, settings.Cache.PollInterval)
	fmt.Fprintf(out, "Storage: %s\n", settings.Storage.Backend)
	fmt.Fprintf(out, "Server: %s\n", settings.Server.Addr)
	fmt.Fprintf(out, "Log: %s/%s\n", settings.Log.Level, settings.Log.Format)

	if err := settings.Validate(); err != nil {
		fmt.Fprintf(out, "\nInvalid: %v\n", err)
		return err
	}
	fmt.Fprintln(out, "\nOK")
	return nil
}

func openApp(opts Options) (*App, error) {
	settings, logger, err := LoadSettings(opts)
	if err != nil {
		return nil, err
	}
	return NewApp(settings, logger)
}

// maskSecret keeps the last four characters of a secret.
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 8) + s[len(s)-4:]
}
