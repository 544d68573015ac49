package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Quarantine implements ports.Quarantine with one file per payload,
// named "<base>-invalid-<reason>-<uuid>.clef" beside the buffer.
//
// The limit is soft: a payload is refused once the files already retained
// reach it, but an admitted payload is always written whole.
type Quarantine struct {
	dir   string
	base  string
	limit int64

	mu sync.Mutex
}

// NewQuarantine creates a quarantine for basePath retaining up to
// limitBytes of payloads.
func NewQuarantine(basePath string, limitBytes int64) *Quarantine {
	return &Quarantine{
		dir:   filepath.Dir(basePath),
		base:  filepath.Base(basePath),
		limit: limitBytes,
	}
}

// Retain writes payload to a new quarantine file.
func (q *Quarantine) Retain(reason string, payload []byte) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	used, err := q.usage()
	if err != nil {
		return false, err
	}
	if used >= q.limit {
		return false, nil
	}

	name := fmt.Sprintf("%s-invalid-%s-%s.clef", q.base, reason, uuid.NewString())
	if err := os.WriteFile(filepath.Join(q.dir, name), payload, 0o600); err != nil {
		return false, err
	}
	return true, nil
}

// Files returns the names of the retained payload files.
func (q *Quarantine) Files() ([]string, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && q.owns(e.Name()) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func (q *Quarantine) owns(name string) bool {
	return strings.HasPrefix(name, q.base+"-invalid-") && strings.HasSuffix(name, ".clef")
}

func (q *Quarantine) usage() (int64, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || !q.owns(e.Name()) {
			continue
		}
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
	}
	return total, nil
}
