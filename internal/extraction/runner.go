package extraction

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
)

// Stream identifies the subprocess pipe a line came from
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Runner lets us stub the extraction subprocess in tests. onLine is called
// for every output line as it arrives, possibly from two goroutines.
type Runner interface {
	Run(ctx context.Context, name string, args []string, onLine func(Stream, string)) error
}

// ExecRunner runs commands with os/exec and streams both pipes concurrently
type ExecRunner struct {
	Logger *slog.Logger // optional
}

// Run starts name and blocks until it exits and both pipes are drained
func (r ExecRunner) Run(ctx context.Context, name string, args []string, onLine func(Stream, string)) error {
	cmd := exec.CommandContext(ctx, name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go r.scanLines(&wg, stdout, Stdout, onLine)
	go r.scanLines(&wg, stderr, Stderr, onLine)

	// pipes must be drained before Wait closes them
	wg.Wait()

	return cmd.Wait()
}

func (r ExecRunner) scanLines(wg *sync.WaitGroup, pipe io.Reader, stream Stream, onLine func(Stream, string)) {
	defer wg.Done()

	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine(stream, scanner.Text())
	}
	if err := scanner.Err(); err != nil && r.Logger != nil {
		r.Logger.Warn("Stopped reading extraction output, discarding the rest",
			slog.String("stream", string(stream)),
			slog.Any("error", err),
		)
	}
	// keep reading so the child never blocks on a full pipe
	_, _ = io.Copy(io.Discard, pipe)
}
