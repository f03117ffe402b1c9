package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"nudge/internal/engine"
	logx "nudge/pkg/logx"
)

// fileStore needs nothing but the filesystem.
//
// Files:
//   - <prefix>.settings.json   (snapshot, replaced atomically)
//   - <prefix>.history.jsonl   (append-only JSON Lines)
//
// The history journal is rewritten to the newest entries once it grows to
// twice the limit.
type fileStore struct {
	log   logx.Logger
	limit int

	mu sync.Mutex

	settingsPath string
	historyPath  string
	historyFile  *os.File
	history      []HistoryEntry // oldest first, at most limit
	journalLines int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		limit:        cfg.HistoryLimit,
		settingsPath: prefix + ".settings.json",
		historyPath:  prefix + ".history.jsonl",
	}
	n, err := s.replayHistory()
	if err != nil {
		return nil, err
	}
	s.journalLines = n

	hf, err := os.OpenFile(s.historyPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.historyFile = hf
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return nil
	}
	err := s.historyFile.Close()
	s.historyFile = nil
	return err
}

func (s *fileStore) LoadSettings(ctx context.Context) (*engine.Settings, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.settingsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st engine.Settings
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *fileStore) SaveSettings(ctx context.Context, st engine.Settings) error {
	_ = ctx
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.settingsPath, append(b, '\n'))
}

func (s *fileStore) AppendHistory(ctx context.Context, e HistoryEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.historyFile).Encode(e); err != nil {
		return err
	}
	s.journalLines++
	s.history = append(s.history, e)
	if len(s.history) > s.limit {
		s.history = append([]HistoryEntry(nil), s.history[len(s.history)-s.limit:]...)
	}
	if s.journalLines >= 2*s.limit {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("history compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentHistory(ctx context.Context, n int) ([]HistoryEntry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]HistoryEntry, 0, n)
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.history[i])
	}
	return out, nil
}

func (s *fileStore) replayHistory() (int, error) {
	f, err := os.Open(s.historyPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()

	lines := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lines++
		var e HistoryEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			// A torn last write is expected after a crash.
			s.log.Debug("skipping bad history line", logx.Err(err))
			continue
		}
		s.history = append(s.history, e)
		if len(s.history) > s.limit {
			s.history = s.history[1:]
		}
	}
	return lines, sc.Err()
}

func (s *fileStore) compactLocked() error {
	tmp := s.historyPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, e := range s.history {
		if err := enc.Encode(e); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	_ = s.historyFile.Close()
	renameErr := os.Rename(tmp, s.historyPath)
	hf, err := os.OpenFile(s.historyPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		s.historyFile = nil
		return err
	}
	s.historyFile = hf
	if renameErr != nil {
		return renameErr
	}
	s.journalLines = len(s.history)
	return nil
}

func writeAtomic(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
