// Package transcript persists finished interview sessions as flat files.
package transcript

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/capitalize-ai/interview-sim/internal/model"
	"github.com/capitalize-ai/interview-sim/pkg/metrics"
)

// ErrNotFound is returned when no artifact exists for an identity.
var ErrNotFound = errors.New("transcript not found")

const (
	fileExt    = ".txt"
	timeLayout = "02/01/2006 15:04:05"
)

// Dirs are the destination roots for recorded artifacts.
type Dirs struct {
	Transcripts string
	Times       string
	// Backups is provisioned for external snapshotting; the recorder never writes to it.
	Backups string
}

// Recorder writes one transcript file and one time file per identity.
type Recorder struct {
	dirs Dirs
	now  func() time.Time
}

// NewRecorder creates a recorder for dirs.
func NewRecorder(dirs Dirs) *Recorder {
	return &Recorder{dirs: dirs, now: time.Now}
}

// EnsureDirs creates any missing destination directories.
func (r *Recorder) EnsureDirs() error {
	for _, dir := range []string{r.dirs.Transcripts, r.dirs.Times, r.dirs.Backups} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Persist writes the transcript and timing record for identity, replacing
// any earlier artifacts under the same identity.
func (r *Recorder) Persist(identity string, messages []model.Message, start time.Time) error {
	if err := ValidateIdentity(identity); err != nil {
		return err
	}
	if err := r.EnsureDirs(); err != nil {
		metrics.TranscriptWritesTotal.WithLabelValues("error").Inc()
		return err
	}

	// The transcript goes last: its presence marks a complete record.
	if err := writeAtomic(r.timePath(identity), FormatTiming(start, r.now())); err != nil {
		metrics.TranscriptWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("write time record: %w", err)
	}
	if err := writeAtomic(r.transcriptPath(identity), FormatTranscript(messages)); err != nil {
		metrics.TranscriptWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("write transcript: %w", err)
	}

	metrics.TranscriptWritesTotal.WithLabelValues("success").Inc()
	return nil
}

// Exists reports whether both artifacts were recorded for identity.
func (r *Recorder) Exists(identity string) bool {
	if ValidateIdentity(identity) != nil {
		return false
	}
	for _, path := range []string{r.transcriptPath(identity), r.timePath(identity)} {
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			return false
		}
	}
	return true
}

// Load returns the raw transcript for identity.
func (r *Recorder) Load(identity string) ([]byte, error) {
	return readArtifact(r.transcriptPath(identity), identity)
}

// LoadTime returns the raw timing record for identity.
func (r *Recorder) LoadTime(identity string) ([]byte, error) {
	return readArtifact(r.timePath(identity), identity)
}

// List returns the recorded identities in sorted order.
func (r *Recorder) List() ([]string, error) {
	entries, err := os.ReadDir(r.dirs.Transcripts)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *Recorder) transcriptPath(identity string) string {
	return filepath.Join(r.dirs.Transcripts, identity+fileExt)
}

func (r *Recorder) timePath(identity string) string {
	return filepath.Join(r.dirs.Times, identity+fileExt)
}

// FormatTranscript renders messages as "role: content" lines in order.
func FormatTranscript(messages []model.Message) []byte {
	var b strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	return []byte(b.String())
}

// FormatTiming renders the start time and elapsed minutes.
func FormatTiming(start, end time.Time) []byte {
	minutes := end.Sub(start).Minutes()
	return []byte(fmt.Sprintf("Start time (UTC): %s\nInterview duration (minutes): %.2f",
		start.UTC().Format(timeLayout), minutes))
}

// Identity builds the artifact key for the n-th (1-based) interview of persona.
func Identity(persona string, n int) string {
	return fmt.Sprintf("%s_%d", strings.ReplaceAll(persona, " ", "_"), n)
}

// ValidateIdentity rejects identities that would escape the destination roots.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return errors.New("identity is required")
	}
	if identity == "." || identity == ".." || strings.ContainsAny(identity, `/\`) || strings.ContainsRune(identity, 0) {
		return fmt.Errorf("invalid identity %q", identity)
	}
	return nil
}

func readArtifact(path, identity string) ([]byte, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// writeAtomic writes data to a temp file in the target directory and renames
// it into place, so readers never observe a partial artifact.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
