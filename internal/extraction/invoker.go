package extraction

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/docconv/internal/domain"
)

const stderrTailLines = 20

// Config describes the extraction tool invocation
type Config struct {
	Command  string
	Mode     string
	Language string
}

// Artifacts are the files produced by one extraction run
type Artifacts struct {
	Markdown    string
	ContentList string
}

// Failure is returned when the extraction tool exits unsuccessfully
type Failure struct {
	ExitCode   int
	StderrTail []string
	Err        error
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("extraction tool exited with code %d", f.ExitCode)
	if len(f.StderrTail) > 0 {
		msg += ": " + strings.Join(f.StderrTail, " | ")
	}
	return msg
}

func (f *Failure) Unwrap() []error {
	return []error{domain.ErrExtractionFailed, f.Err}
}

// Invoker runs the external extraction tool
type Invoker struct {
	config Config
	runner Runner
	logger *slog.Logger
}

// NewInvoker creates a new Invoker. A nil runner uses ExecRunner.
func NewInvoker(config Config, runner Runner, logger *slog.Logger) *Invoker {
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &Invoker{
		config: config,
		runner: runner,
		logger: logger,
	}
}

// Args returns the command line arguments for one run
func (i *Invoker) Args(inputPath, outputDir string) []string {
	return []string{
		"-p", inputPath,
		"-o", outputDir,
		"-m", i.config.Mode,
		"-l", i.config.Language,
	}
}

// Extract runs the tool for inputPath and blocks until it exits. Output is
// logged line by line while the tool runs.
func (i *Invoker) Extract(ctx context.Context, inputPath, outputDir string) error {
	args := i.Args(inputPath, outputDir)
	log := i.logger.With(slog.String("input_path", inputPath))

	log.Info("Starting extraction",
		slog.String("command", i.config.Command),
		slog.String("args", strings.Join(args, " ")),
	)

	var (
		mu   sync.Mutex
		tail []string
	)
	onLine := func(stream Stream, line string) {
		if stream == Stderr {
			log.Warn(line, slog.String("stream", string(stream)))

			mu.Lock()
			tail = append(tail, line)
			if len(tail) > stderrTailLines {
				tail = tail[len(tail)-stderrTailLines:]
			}
			mu.Unlock()
			return
		}
		log.Info(line, slog.String("stream", string(stream)))
	}

	start := time.Now()
	err := i.runner.Run(ctx, i.config.Command, args, onLine)
	if err != nil {
		code := -1
		var exitErr interface{ ExitCode() int }
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}

		mu.Lock()
		failure := &Failure{ExitCode: code, StderrTail: append([]string(nil), tail...), Err: err}
		mu.Unlock()

		log.Error("Extraction failed",
			slog.Int("exit_code", code),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)
		return failure
	}

	log.Info("Extraction finished", slog.Duration("duration", time.Since(start)))
	return nil
}

// LocateArtifacts finds the Markdown document and the content list under
// outputDir. Exactly one of each must exist.
func LocateArtifacts(outputDir string) (Artifacts, error) {
	var markdown, contentList []string

	err := filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		switch {
		case strings.HasSuffix(name, ".md"):
			markdown = append(markdown, path)
		case strings.HasSuffix(name, "content_list.json"):
			contentList = append(contentList, path)
		}
		return nil
	})
	if err != nil {
		return Artifacts{}, fmt.Errorf("%w: failed to scan %s: %w", domain.ErrExtractionFailed, outputDir, err)
	}

	md, err := single("markdown document", markdown)
	if err != nil {
		return Artifacts{}, err
	}
	cl, err := single("content list", contentList)
	if err != nil {
		return Artifacts{}, err
	}

	return Artifacts{Markdown: md, ContentList: cl}, nil
}

func single(what string, candidates []string) (string, error) {
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("%w: no %s found", domain.ErrExtractionFailed, what)
	case 1:
		return candidates[0], nil
	default:
		sort.Strings(candidates)
		return "", fmt.Errorf("%w: %d candidates for %s: %s",
			domain.ErrExtractionFailed, len(candidates), what, strings.Join(candidates, ", "))
	}
}
