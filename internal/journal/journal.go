package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/siohaza/slither/internal/world"

	"github.com/klauspost/compress/zstd"
)

type EventKind string

const (
	EventJoin       EventKind = "join"
	EventCrash      EventKind = "crash"
	EventDisconnect EventKind = "disconnect"
)

type Entry struct {
	Time     time.Time       `json:"time"`
	Event    EventKind       `json:"event"`
	ID       world.SlitherID `json:"id"`
	Nickname string          `json:"nickname,omitempty"`
	Mass     float32         `json:"mass,omitempty"`
}

// JSONLZstdWriter appends JSON lines to hourly zstd-compressed files.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
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
	return w.w.WriteByte('\n')
}

func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
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

func (w *JSONLZstdWriter) closeLocked() error {
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
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Journal records lifecycle events. Callbacks only enqueue, so the simulation
// never waits on disk; entries are dropped when the queue is full.
type Journal struct {
	w      *JSONLZstdWriter
	queue  chan Entry
	done   chan struct{}
	logger *slog.Logger
	now    func() time.Time
}

func New(dir string, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}

	j := &Journal{
		w:      NewJSONLZstdWriter(dir, "events"),
		queue:  make(chan Entry, 1024),
		done:   make(chan struct{}),
		logger: logger,
		now:    time.Now,
	}
	go j.run()
	return j
}

func (j *Journal) run() {
	defer close(j.done)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-j.queue:
			if !ok {
				return
			}
			if err := j.w.Write(e); err != nil {
				j.logger.Error("journal write failed", "error", err)
			}
		case <-ticker.C:
			if err := j.w.Flush(); err != nil {
				j.logger.Error("journal flush failed", "error", err)
			}
		}
	}
}

func (j *Journal) record(e Entry) {
	e.Time = j.now().UTC()
	select {
	case j.queue <- e:
	default:
		j.logger.Warn("journal queue full, dropping entry", "event", e.Event, "id", e.ID)
	}
}

// Close drains queued entries and finishes the current file. Record calls must
// have stopped before Close.
func (j *Journal) Close() error {
	close(j.queue)
	<-j.done
	return j.w.Close()
}

func (j *Journal) OnJoin(id world.SlitherID, nickname string) string {
	j.record(Entry{Event: EventJoin, ID: id, Nickname: nickname})
	return nickname
}

func (j *Journal) OnCrash(id world.SlitherID, nickname string, mass float32) {
	j.record(Entry{Event: EventCrash, ID: id, Nickname: nickname, Mass: mass})
}

func (j *Journal) OnDisconnect(id world.SlitherID, nickname string, mass float32) {
	j.record(Entry{Event: EventDisconnect, ID: id, Nickname: nickname, Mass: mass})
}
