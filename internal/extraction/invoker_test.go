package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/docconv/internal/domain"
)

type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }
func (e exitError) ExitCode() int { return e.code }

type fakeRunner struct {
	lines []struct {
		stream Stream
		text   string
	}
	err      error
	gotName  string
	gotArgs  []string
	runCount int
}

func (f *fakeRunner) emit(stream Stream, text string) *fakeRunner {
	f.lines = append(f.lines, struct {
		stream Stream
		text   string
	}{stream, text})
	return f
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string, onLine func(Stream, string)) error {
	f.runCount++
	f.gotName = name
	f.gotArgs = args
	for _, l := range f.lines {
		onLine(l.stream, l.text)
	}
	return f.err
}

func newJSONLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		entries = append(entries, e)
	}
	return entries
}

func TestInvoker_Extract_Success(t *testing.T) {
	var logs bytes.Buffer
	runner := (&fakeRunner{}).
		emit(Stdout, "loading models").
		emit(Stderr, "low resolution page").
		emit(Stdout, "done")

	inv := NewInvoker(Config{Command: "magic-pdf", Mode: "ocr", Language: "german"}, runner, newJSONLogger(&logs))

	err := inv.Extract(context.Background(), "data/abc/doc.pdf", "data/abc")
	require.NoError(t, err)

	assert.Equal(t, "magic-pdf", runner.gotName)
	assert.Equal(t, []string{"-p", "data/abc/doc.pdf", "-o", "data/abc", "-m", "ocr", "-l", "german"}, runner.gotArgs)

	levels := map[string]string{}
	for _, e := range logEntries(t, &logs) {
		levels[e["msg"].(string)] = e["level"].(string)
	}
	assert.Equal(t, "INFO", levels["loading models"])
	assert.Equal(t, "WARN", levels["low resolution page"])
	assert.Equal(t, "INFO", levels["done"])
}

func TestInvoker_Extract_NonZeroExit(t *testing.T) {
	runner := (&fakeRunner{err: exitError{code: 2}}).
		emit(Stderr, "Traceback").
		emit(Stderr, "RuntimeError: no models")

	inv := NewInvoker(Config{Command: "magic-pdf"}, runner, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	err := inv.Extract(context.Background(), "in.pdf", "out")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 2, failure.ExitCode)
	assert.Equal(t, []string{"Traceback", "RuntimeError: no models"}, failure.StderrTail)
	assert.Contains(t, err.Error(), "exited with code 2")
}

func TestInvoker_Extract_StartFailure(t *testing.T) {
	runner := &fakeRunner{err: errors.New("executable file not found in $PATH")}
	inv := NewInvoker(Config{Command: "missing-tool"}, runner, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	err := inv.Extract(context.Background(), "in.pdf", "out")
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, -1, failure.ExitCode)
}

func TestExecRunner_StreamsBothPipes(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	var got []string
	lines := make(chan string, 8)
	err := ExecRunner{}.Run(context.Background(), "sh",
		[]string{"-c", "echo out1; echo err1 1>&2; echo out2; exit 3"},
		func(stream Stream, line string) { lines <- string(stream) + ":" + line },
	)
	close(lines)
	for l := range lines {
		got = append(got, l)
	}

	require.Error(t, err)
	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode())
	assert.ElementsMatch(t, []string{"stdout:out1", "stdout:out2", "stderr:err1"}, got)
}

func TestExecRunner_LogsOverlongLine(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	logs := &bytes.Buffer{}
	runner := ExecRunner{Logger: slog.New(slog.NewJSONHandler(logs, nil))}

	var got []string
	var mu sync.Mutex
	err := runner.Run(context.Background(), "sh",
		[]string{"-c", "echo first; head -c 1100000 /dev/zero | tr '\\000' a; echo; echo after"},
		func(stream Stream, line string) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, line)
		},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"first"}, got)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "stdout", entry["stream"])
	assert.Contains(t, entry["error"], "token too long")
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestLocateArtifacts(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		wantMD  string
		wantCL  string
		wantErr string
	}{
		{
			name:   "one of each in nested output",
			files:  []string{"doc.pdf", "doc/ocr/doc.md", "doc/ocr/doc_content_list.json", "doc/ocr/doc_middle.json", "doc/ocr/images/p1.jpg"},
			wantMD: "doc/ocr/doc.md",
			wantCL: "doc/ocr/doc_content_list.json",
		},
		{
			name:    "no markdown",
			files:   []string{"doc/ocr/doc_content_list.json"},
			wantErr: "no markdown document found",
		},
		{
			name:    "no content list",
			files:   []string{"doc/ocr/doc.md"},
			wantErr: "no content list found",
		},
		{
			name:    "ambiguous markdown",
			files:   []string{"a/ocr/a.md", "b/ocr/b.md", "a/ocr/a_content_list.json"},
			wantErr: "2 candidates for markdown document",
		},
		{
			name:    "ambiguous content list",
			files:   []string{"a/ocr/a.md", "a/ocr/a_content_list.json", "a/auto/a_content_list.json"},
			wantErr: "2 candidates for content list",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				writeFile(t, filepath.Join(dir, f))
			}

			got, err := LocateArtifacts(dir)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrExtractionFailed)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.wantMD), got.Markdown)
			assert.Equal(t, filepath.Join(dir, tt.wantCL), got.ContentList)
		})
	}
}

func TestLocateArtifacts_MissingDir(t *testing.T) {
	_, err := LocateArtifacts(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
}
