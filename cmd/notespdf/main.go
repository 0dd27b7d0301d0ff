/**
 * notespdf - operator CLI for the Notes Worker
 *
 *   notespdf compose [flags] file.pdf...   compose local files in-process
 *   notespdf enqueue [flags] file.pdf...   submit jobs to the worker queue
 *
 * Defaults come from the same environment (.env.notes) as the worker.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/pdfnotes-worker/internal/config"
	"github.com/adverant/nexus/pdfnotes-worker/internal/errors"
	"github.com/adverant/nexus/pdfnotes-worker/internal/logging"
	"github.com/adverant/nexus/pdfnotes-worker/internal/normalize"
	"github.com/adverant/nexus/pdfnotes-worker/internal/notes"
	"github.com/adverant/nexus/pdfnotes-worker/internal/processor"
	"github.com/adverant/nexus/pdfnotes-worker/internal/queue"
	"github.com/adverant/nexus/pdfnotes-worker/internal/storage"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitUsage   = 2
	usageHeader = `usage: notespdf <command> [flags] file.pdf...

commands:
  compose   compose local files and write <name>_withNotes.pdf
  enqueue   submit files as jobs to the worker queue
`
)

func main() {
	_ = godotenv.Load(".env.notes")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageHeader)
		return exitUsage
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	logging.Configure(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: stderr})

	switch args[0] {
	case "compose":
		return compose(ctx, cfg, args[1:], stdout, stderr)
	case "enqueue":
		return enqueue(ctx, cfg, args[1:], stdout, stderr)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usageHeader)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usageHeader)
		return exitUsage
	}
}

func compose(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("compose", flag.ContinueOnError)
	fs.SetOutput(stderr)
	layout := newLayoutFlags(fs)
	outDir := fs.String("out", ".", "directory for composed files")
	policyName := fs.String("policy", cfg.NormalizePolicy.String(), "rotation policy: rotated-only or all-defective")
	quiet := fs.Bool("quiet", false, "no progress output")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "compose: no input files")
		return exitUsage
	}

	policy, err := normalize.ParsePolicy(*policyName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	proc, err := processor.NewDocumentProcessor(&processor.ProcessorConfig{
		TempDir:       os.TempDir(),
		MaxFileSize:   cfg.MaxFileSize,
		DefaultLayout: cfg.DefaultLayout,
		Policy:        policy,
		Logger:        logging.NewLogger("notespdf"),
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	raw := layout.raw()
	reqs := make([]*processor.ProcessRequest, 0, fs.NArg())
	for i, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitFailed
		}
		reqs = append(reqs, &processor.ProcessRequest{
			JobID:      fmt.Sprintf("local-%d", i+1),
			Filename:   filepath.Base(path),
			FileBuffer: data,
			Layout:     raw,
		})
	}

	var observer processor.ProgressObserver
	var bar *progressBar
	if !*quiet {
		if f, ok := stdout.(*os.File); ok {
			bar = newProgressBar(f)
			observer = bar
		}
	}

	batch, err := proc.ProcessBatch(ctx, reqs, observer)
	if bar != nil {
		bar.finish()
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailed
	}

	failed := batch.Failed
	for _, d := range batch.Documents {
		if !d.Succeeded() {
			fmt.Fprintf(stdout, "FAIL %s: %s\n", d.Filename, describe(d.Err))
			continue
		}
		target := filepath.Join(*outDir, d.Result.OutputFilename)
		if err := os.WriteFile(target, d.Result.Output, 0o644); err != nil {
			fmt.Fprintf(stdout, "FAIL %s: %v\n", d.Filename, err)
			failed++
			continue
		}
		fmt.Fprintf(stdout, "ok   %s -> %s (%d pages, %d repaired)\n",
			d.Filename, target, d.Result.PageCount, len(d.Result.RepairedPages))
	}
	fmt.Fprintf(stdout, "%d composed, %d failed\n", len(batch.Documents)-failed, failed)

	if failed > 0 {
		return exitFailed
	}
	return exitOK
}

func enqueue(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	fs.SetOutput(stderr)
	layout := newLayoutFlags(fs)
	backend := fs.String("backend", cfg.QueueBackend, "queue backend: list or asynq")
	queueName := fs.String("queue", cfg.QueueName, "queue name")
	userID := fs.String("user", "", "user ID recorded on the jobs")
	maxRetries := fs.Int("retries", queue.DefaultMaxRetries, "attempts before a job is failed")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "enqueue: no input files or URLs")
		return exitUsage
	}

	// Reject a bad layout here rather than in the worker.
	raw := layout.raw()
	if raw != nil {
		merged := raw.Merge(cfg.DefaultLayout.ToRaw())
		if _, err := notes.ParseLayout(merged); err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
	}

	producer, closeFn, err := newProducer(ctx, cfg, *backend, *queueName, *maxRetries)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailed
	}
	defer closeFn()

	failed := 0
	for _, arg := range fs.Args() {
		payload := &queue.JobPayload{UserID: *userID, Layout: raw}
		if isURL(arg) {
			payload.FileURL = arg
			payload.Filename = filepath.Base(arg)
		} else {
			data, err := os.ReadFile(arg)
			if err != nil {
				fmt.Fprintln(stderr, err)
				failed++
				continue
			}
			payload.Filename = filepath.Base(arg)
			payload.FileBuffer = data
		}

		id, err := producer.Enqueue(ctx, payload)
		if err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", arg, err)
			failed++
			continue
		}
		fmt.Fprintf(stdout, "%s\t%s\t%s\n", id, payload.Filename, storage.ResultKey(*queueName, id))
	}

	if failed > 0 {
		return exitFailed
	}
	return exitOK
}

func newProducer(ctx context.Context, cfg *config.Config, backend, queueName string, maxRetries int) (queue.Producer, func(), error) {
	switch backend {
	case config.BackendAsynq:
		p, err := queue.NewAsynqProducer(cfg.RedisURL, queueName, maxRetries, cfg.Timeout())
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	case config.BackendList:
		client, err := queue.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return queue.NewListProducer(client, queueName, maxRetries), func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func isURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

func describe(err error) string {
	if code := errors.CodeOf(err); code != "" {
		return fmt.Sprintf("[%s] %v", code, err)
	}
	return err.Error()
}
