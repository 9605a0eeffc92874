package localmedia

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abdushakurob/getstuddy-backend/internal/pkg/logger"
)

// Tools is the glue around system binaries the local ingestor needs.
//
// REQUIRED BINARIES in worker runtime:
// - ffmpeg/ffprobe for av probing and clip slicing
// - pdfinfo (poppler-utils) for PDF page counts
//
// Synchronous and deterministic; call from resolution workers, not handlers.
type Tools interface {
	AssertReady(ctx context.Context) error

	ProbeDurationSeconds(ctx context.Context, mediaPath string) (float64, error)
	CountPDFPages(ctx context.Context, pdfPath string) (int, error)
	// SliceMedia cuts [start, end] seconds out of mediaPath into a new file
	// under the work root, stream-copying so no re-encode happens.
	SliceMedia(ctx context.Context, mediaPath string, start, end float64) (string, error)
	// RenderPDFPage rasterizes one 1-based page of a PDF into a PNG under
	// the work root.
	RenderPDFPage(ctx context.Context, pdfPath string, page int) (string, error)

	WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error)
	WorkDir() string
}

type tools struct {
	log *logger.Logger

	ffmpegPath   string
	ffprobePath  string
	pdfinfoPath  string
	pdftoppmPath string

	workRoot string

	defaultTimeout time.Duration
}

// New builds Tools rooted at workRoot. An empty workRoot falls back to the
// system temp dir; callers should inject an explicit one.
func New(log *logger.Logger, workRoot string) Tools {
	slog := log.With("service", "LocalMediaTools")
	if strings.TrimSpace(workRoot) == "" {
		workRoot = filepath.Join(os.TempDir(), "getstuddy-media")
	}
	return &tools{
		log:            slog,
		ffmpegPath:     "ffmpeg",
		ffprobePath:    "ffprobe",
		pdfinfoPath:    "pdfinfo",
		pdftoppmPath:   "pdftoppm",
		workRoot:       workRoot,
		defaultTimeout: 10 * time.Minute,
	}
}

func (m *tools) WorkDir() string { return m.workRoot }

func (m *tools) AssertReady(ctx context.Context) error {
	for _, bin := range []string{m.ffmpegPath, m.ffprobePath, m.pdfinfoPath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (m *tools) WriteTempFile(ctx context.Context, data []byte, suffix string) (string, func(), error) {
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", func() {}, fmt.Errorf("mkdir workRoot: %w", err)
	}
	if suffix != "" && !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	f, err := os.CreateTemp(m.workRoot, "blob-*"+suffix)
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", func() {}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", func() {}, fmt.Errorf("close temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(path) }
	return path, cleanup, nil
}

func (m *tools) ProbeDurationSeconds(ctx context.Context, mediaPath string) (float64, error) {
	if mediaPath == "" {
		return 0, fmt.Errorf("mediaPath required")
	}
	if _, err := exec.LookPath(m.ffprobePath); err != nil {
		return 0, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		mediaPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w; out=%s", err, string(out))
	}

	return ParseProbeDuration(string(out))
}

// ParseProbeDuration parses the bare-duration output of ffprobe.
func ParseProbeDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("ffprobe output missing duration")
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("unparseable ffprobe duration %q", s)
	}
	return d, nil
}

func (m *tools) CountPDFPages(ctx context.Context, pdfPath string) (int, error) {
	if pdfPath == "" {
		return 0, fmt.Errorf("pdfPath required")
	}
	if _, err := exec.LookPath(m.pdfinfoPath); err != nil {
		return 0, fmt.Errorf("pdfinfo not found in PATH: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.pdfinfoPath, pdfPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("pdfinfo failed: %w; out=%s", err, string(out))
	}

	return ParsePDFInfoPages(string(out))
}

// ParsePDFInfoPages pulls the Pages field out of pdfinfo output.
func ParsePDFInfoPages(out string) (int, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.Atoi(fields[len(fields)-1])
		if err != nil || n <= 0 {
			continue
		}
		return n, nil
	}
	return 0, fmt.Errorf("pdfinfo output missing Pages field")
}

func (m *tools) SliceMedia(ctx context.Context, mediaPath string, start, end float64) (string, error) {
	if mediaPath == "" {
		return "", fmt.Errorf("mediaPath required")
	}
	if end <= start {
		return "", fmt.Errorf("invalid slice range [%f, %f]", start, end)
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", fmt.Errorf("mkdir workRoot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	ext := filepath.Ext(mediaPath)
	if ext == "" {
		ext = ".mp4"
	}
	outPath := filepath.Join(m.workRoot, fmt.Sprintf("slice-%d-%s%s",
		time.Now().UnixNano(),
		strings.TrimSuffix(filepath.Base(mediaPath), ext),
		ext,
	))

	cmd := exec.CommandContext(ctx, m.ffmpegPath,
		"-y",
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", mediaPath,
		"-c", "copy",
		outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(outPath)
		return "", fmt.Errorf("ffmpeg slice failed: %w; out=%s", err, string(out))
	}
	return outPath, nil
}

func (m *tools) RenderPDFPage(ctx context.Context, pdfPath string, page int) (string, error) {
	if pdfPath == "" {
		return "", fmt.Errorf("pdfPath required")
	}
	if page < 1 {
		return "", fmt.Errorf("page must be 1-based, got %d", page)
	}
	if _, err := exec.LookPath(m.pdftoppmPath); err != nil {
		return "", fmt.Errorf("pdftoppm not found in PATH: %w", err)
	}
	if err := os.MkdirAll(m.workRoot, 0o755); err != nil {
		return "", fmt.Errorf("mkdir workRoot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.defaultTimeout)
	defer cancel()

	prefix := filepath.Join(m.workRoot, fmt.Sprintf("page-%d-%d", time.Now().UnixNano(), page))
	cmd := exec.CommandContext(ctx, m.pdftoppmPath,
		"-png",
		"-r", "200",
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-singlefile",
		pdfPath,
		prefix,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("pdftoppm failed: %w; out=%s", err, string(out))
	}

	outPath := prefix + ".png"
	if _, err := os.Stat(outPath); err != nil {
		return "", fmt.Errorf("rendered page not found at %s: %w", outPath, err)
	}
	return outPath, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
