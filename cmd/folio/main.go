// Package main provides the folio CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/richinex/folio/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider string
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "folio",
		Short: "Ask questions about documents with cached LLM context",
		Long: `A CLI and HTTP service for streaming LLM answers about notebook documents.

Documents are uploaded once and kept as a remote cached context when the
provider supports it (Gemini). Later questions about the same document reuse
the cache instead of resending it. Other providers receive the document inline.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (gemini, openai, anthropic, deepseek); defaults to LLM_PROVIDER")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func options() cli.Options {
	opts := cli.DefaultOptions()
	opts.Provider = provider
	opts.Verbose = verbose
	return opts
}

// bindAskFlags registers the flags shared by ask and chat.
func bindAskFlags(cmd *cobra.Command, ask *cli.AskOptions, temperature *float32) {
	cmd.Flags().StringVarP(&ask.DocPath, "doc", "d", "", "PDF document to ask about")
	cmd.Flags().StringVarP(&ask.NotebookID, "notebook", "n", "", "Notebook that owns the document")
	cmd.Flags().StringVarP(&ask.SystemPrompt, "system", "s", "", "System instruction")
	cmd.Flags().StringVar(&ask.CacheID, "cache", "", "Reuse an existing cache id")
	cmd.Flags().Uint32Var(&ask.MaxTokens, "max-tokens", 0, "Maximum tokens to generate (0 uses LLM_MAX_TOKENS)")
	cmd.Flags().Float32Var(temperature, "temperature", 0, "Sampling temperature (default from LLM_TEMPERATURE)")
}

func askCmd() *cobra.Command {
	var ask cli.AskOptions
	var temperature float32

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Stream the answer to a single prompt",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("temperature") {
				ask.Temperature = &temperature
			}
			return cli.Ask(context.Background(), strings.Join(args, " "), ask, options())
		},
	}
	bindAskFlags(cmd, &ask, &temperature)

	return cmd
}

func chatCmd() *cobra.Command {
	var ask cli.AskOptions
	var temperature float32

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session about a document",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("temperature") {
				ask.Temperature = &temperature
			}
			return cli.Chat(context.Background(), ask, options())
		},
	}
	bindAskFlags(cmd, &ask, &temperature)

	return cmd
}

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect document cache records",
	}

	show := &cobra.Command{
		Use:   "show [document]",
		Short: "Show the live cache for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.CacheShow(context.Background(), args[0], options())
		},
	}

	var notebook string
	list := &cobra.Command{
		Use:   "list",
		Short: "List live caches of a notebook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.CacheList(context.Background(), notebook, options())
		},
	}
	list.Flags().StringVarP(&notebook, "notebook", "n", "default", "Notebook to list")

	cmd.AddCommand(show, list)
	return cmd
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the notebook chat API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(context.Background(), addr, options())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from SERVER_ADDR)")

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration from the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ConfigCheck(options())
		},
	}

	cmd.AddCommand(check)
	return cmd
}
