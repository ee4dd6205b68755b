package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/wricardo/mcp-training/solarfarm/game/service"
)

// FileSuffix ends every trace file name
const FileSuffix = ".jsonl.zst"

// Writer appends tick entries as zstd-compressed JSON lines, one file per
// UTC hour.
type Writer struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

// NewWriter creates a writer under baseDir. Files are named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst.
func NewWriter(baseDir, prefix string) *Writer {
	if prefix == "" {
		prefix = "ticks"
	}
	return &Writer{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

// Close flushes and closes the current file. Later writes reopen it.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Append writes one tick entry
func (w *Writer) Append(entry *service.TickEntry) error {
	return w.Write(entry)
}

// Write encodes v as one JSON line in the current hour's file
func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// CurrentPath returns the file being written, or "" before the first write
func (w *Writer) CurrentPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.curHour == "" {
		return ""
	}
	return w.pathForHour(w.curHour)
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s%s", w.prefix, hour, FileSuffix))
}
