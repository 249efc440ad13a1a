// CLAUDE:SUMMARY docmerge entry point: "combine" merges files from the command line, "serve" runs the HTTP API (chi) with optional MCP over stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/net/netutil"

	"github.com/hazyhaar/docmerge/docmerge"
	"github.com/hazyhaar/docmerge/export"
	"github.com/hazyhaar/docmerge/shield"
	"github.com/hazyhaar/docmerge/submission"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	setupLogging(env("LOG_LEVEL", "info"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "combine":
		err = cmdCombine(ctx, os.Args[2:])
	case "serve":
		err = cmdServe(ctx, os.Args[2:])
	case "hash-key":
		err = cmdHashKey(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "docmerge: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `docmerge: combine student submissions into one document

usage:
  docmerge combine [-config file] [-format docx|txt|pdf|html|md] [-o output] [-max-files n] <archive.zip | file...>
  docmerge serve   [-config file]
  docmerge hash-key <key>

combine  A single .zip is walked as one folder per submitter. Anything else
         is treated as direct uploads (.docx and .pdf).
serve    Runs the HTTP API. MCP_TRANSPORT=stdio also serves MCP tools on stdin/stdout.
hash-key Prints the bcrypt hash to put under api_keys in the config.
`)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// Logs go to stderr: stdout may carry MCP frames.
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func loadConfig(path string) (*docmerge.Config, error) {
	if path == "" {
		return docmerge.DefaultConfig(), nil
	}
	return docmerge.LoadConfig(path)
}

func openPipeline(cfg *docmerge.Config) (*docmerge.Pipeline, func(), error) {
	opts := []docmerge.Option{docmerge.WithLogger(slog.Default())}
	closeFn := func() {}
	if cfg.DBPath != "" {
		store, err := docmerge.OpenStore(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		opts = append(opts, docmerge.WithStore(store))
		closeFn = func() { store.Close() }
	}
	return docmerge.New(cfg, opts...), closeFn, nil
}

func cmdCombine(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("combine", flag.ExitOnError)
	cfgPath := fs.String("config", env("DOCMERGE_CONFIG", ""), "YAML config file")
	format := fs.String("format", "", "output format: docx, txt, pdf, html or md (default from config)")
	output := fs.String("o", "", "output file (default combined.<format>)")
	maxFiles := fs.Int("max-files", -1, "max files per submitter, 0 = unlimited (default from config)")
	noHistory := fs.Bool("no-history", false, "do not record the batch")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return errors.New("combine needs an archive or at least one file")
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *maxFiles >= 0 {
		cfg.MaxFilesPerSubmitter = *maxFiles
	}
	if *noHistory {
		cfg.DBPath = ""
	}
	f := cfg.DefaultFormat()
	if *format != "" {
		if f, err = export.ParseFormat(*format); err != nil {
			return err
		}
	}
	out := *output
	if out == "" {
		out = export.FileName("", f)
	}

	p, closeStore, err := openPipeline(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var res *docmerge.Result
	paths := fs.Args()
	if len(paths) == 1 && strings.EqualFold(filepath.Ext(paths[0]), ".zip") {
		data, rerr := os.ReadFile(paths[0])
		if rerr != nil {
			return rerr
		}
		res, err = p.CombineArchive(ctx, data)
	} else {
		items := make([]submission.Upload, 0, len(paths))
		for _, path := range paths {
			data, rerr := os.ReadFile(path)
			if rerr != nil {
				return rerr
			}
			items = append(items, submission.Upload{Name: filepath.Base(path), Data: data})
		}
		res, err = p.CombineUploads(ctx, items)
	}

	var berr *docmerge.BatchError
	if errors.As(err, &berr) {
		printItemErrors(berr.Errors)
		return err
	}
	if err != nil {
		return err
	}
	printItemErrors(res.Errors)

	data, err := export.Render(res.Document, f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s: %d submissions, %d errors -> %s (%d bytes)\n",
		res.ID, res.Submissions, len(res.Errors), out, len(data))
	return nil
}

func printItemErrors(errs []submission.ItemError) {
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "  %s: %v\n", e.Kind, e)
	}
}

func cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", env("DOCMERGE_CONFIG", ""), "YAML config file")
	fs.Parse(args)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if listen := os.Getenv("LISTEN"); listen != "" {
		cfg.Listen = listen
	}

	p, closeStore, err := openPipeline(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if env("MCP_TRANSPORT", "") == "stdio" {
		srv := mcp.NewServer(&mcp.Implementation{Name: "docmerge", Version: "v1"}, nil)
		p.RegisterMCP(srv)
		go func() {
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("mcp stdio", "error", err)
			}
		}()
		slog.Info("mcp stdio transport started")
	}

	p.Limiter().StartGC(ctx.Done())

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           p.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConns)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("docmerge listening", "addr", cfg.Listen, "format", cfg.DefaultFormat(),
			"history", cfg.DBPath != "", "api_keys", len(cfg.APIKeys), "max_conns", cfg.MaxConns)
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func cmdHashKey(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("hash-key needs exactly one key")
	}
	hash, err := shield.HashKey(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
