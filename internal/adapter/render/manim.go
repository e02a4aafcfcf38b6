// Package render drives the external tools that turn scripts into video:
// manim for rendering, ffmpeg for muxing and ffprobe for measuring.
package render

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/manimate/internal/domain"
)

// maxLogLines bounds how much renderer output is kept per stream.
const maxLogLines = 200

var qualityFlags = map[domain.Quality]string{
	domain.QualityLow:        "-ql",
	domain.QualityMedium:     "-qm",
	domain.QualityHigh:       "-qh",
	domain.QualityProduction: "-qk",
}

// QualityFlag maps a quality preset to its manim flag. Unknown presets render
// at low quality.
func QualityFlag(q domain.Quality) string {
	if f, ok := qualityFlags[q]; ok {
		return f
	}
	return "-ql"
}

// Manim renders scene scripts with the manim CLI.
type Manim struct {
	bin     string
	workDir string
}

// NewManim creates a renderer that keeps every attempt under workDir.
func NewManim(bin, workDir string) *Manim {
	if bin == "" {
		bin = "manim"
	}
	return &Manim{bin: bin, workDir: workDir}
}

// Render writes the script into its attempt directory and runs manim on it.
// Output lines that report progress are passed to req.OnProgress while the
// process runs.
func (m *Manim) Render(ctx context.Context, req domain.RenderRequest) (string, error) {
	dir, err := filepath.Abs(filepath.Join(m.workDir, req.RunID, fmt.Sprintf("attempt_%d", req.Attempt)))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create render dir: %w", err)
	}
	scriptPath := filepath.Join(dir, "scene.py")
	if err := os.WriteFile(scriptPath, []byte(req.Script), 0o644); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}

	mediaDir := filepath.Join(dir, "media")
	outName := req.SceneName + ".mp4"
	cmd := exec.CommandContext(ctx, m.bin, "render",
		QualityFlag(req.Quality),
		scriptPath,
		req.SceneName,
		"--media_dir", mediaDir,
		"--output_file", outName,
	)
	cmd.Dir = dir
	killGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe error: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("stderr pipe error: %w", err)
	}

	log.Printf("INFO: [run %s] manim %s attempt %d", req.RunID, QualityFlag(req.Quality), req.Attempt)
	if err := cmd.Start(); err != nil {
		return "", domain.NewStageError(domain.FailureRender, domain.RunStateRendering, "",
			fmt.Errorf("manim start error: %w", err))
	}

	outLog, errLog := newLineLog(maxLogLines), newLineLog(maxLogLines)
	var g errgroup.Group
	g.Go(func() error { return streamLines(stdout, outLog, req.OnProgress) })
	g.Go(func() error { return streamLines(stderr, errLog, req.OnProgress) })
	// Both pipes must be drained before Wait closes them.
	scanErr := g.Wait()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if waitErr != nil {
		return "", domain.NewStageError(domain.FailureRender, domain.RunStateRendering,
			failureLog(errLog, outLog), fmt.Errorf("manim: %w", waitErr))
	}
	if scanErr != nil {
		log.Printf("WARN: [run %s] reading manim output: %v", req.RunID, scanErr)
	}

	video, err := findFile(mediaDir, outName)
	if err != nil {
		return "", domain.NewStageError(domain.FailureRender, domain.RunStateRendering,
			fmt.Sprintf("manim finished but did not produce %s", outName), err)
	}
	return video, nil
}

// IsProgressLine reports whether a renderer output line reports progress.
func IsProgressLine(line string) bool {
	return strings.Contains(line, "%") || strings.Contains(line, "File ready")
}

func streamLines(r io.Reader, keep *lineLog, onProgress func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(scanLines)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		keep.add(line)
		if onProgress != nil && IsProgressLine(line) {
			onProgress(line)
		}
	}
	return sc.Err()
}

// scanLines is bufio.ScanLines that also breaks on carriage returns, which
// progress bars use to redraw in place.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// failureLog prefers stderr, where Python tracebacks go.
func failureLog(errLog, outLog *lineLog) string {
	if s := errLog.String(); s != "" {
		return s
	}
	if s := outLog.String(); s != "" {
		return s
	}
	return "manim exited with an error and no output"
}

func findFile(root, name string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == name {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("%s not found under %s", name, root)
	}
	return found, nil
}

// lineLog keeps the last n lines written to it.
type lineLog struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newLineLog(n int) *lineLog {
	return &lineLog{n: n}
}

func (l *lineLog) add(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.lines) == l.n {
		l.lines = l.lines[1:]
	}
	l.lines = append(l.lines, line)
}

func (l *lineLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}
