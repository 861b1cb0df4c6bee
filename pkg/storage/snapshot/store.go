// Package snapshot is a storage port kept in memory by one goroutine and written to a JSON
// file before every mutation is acknowledged, so a restarted process recovers the last
// acknowledged state.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// file is the on-disk layout; values are kept as raw JSON so the file stays readable.
type file struct {
	Values    map[string]json.RawMessage `json:"values"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// command models every operation executed against the key space.
type command struct {
	action string
	key    string
	value  []byte
	reply  chan result
}

// result transfers a value, its presence flag, or the key listing back to the caller.
type result struct {
	value []byte
	found bool
	keys  []string
	err   error
}

// Store keeps the key space guarded by a dedicated goroutine.
type Store struct {
	commands  chan command
	closed    chan struct{}
	exited    chan struct{}
	values    map[string][]byte
	path      string
	logger    *zap.Logger
	closeOnce sync.Once
}

// Open loads the snapshot at path, if any, and spins the goroutine every access flows through.
// An empty path keeps the values in memory only.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loaded, err := readSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	s := &Store{
		commands: make(chan command, 32),
		closed:   make(chan struct{}),
		exited:   make(chan struct{}),
		values:   make(map[string][]byte),
		path:     path,
		logger:   logger,
	}
	if loaded != nil {
		for k, v := range loaded.Values {
			s.values[k] = []byte(v)
		}
	}
	go s.loop()
	return s, nil
}

// loop serializes every mutation and read request to keep the state safe without mutexes.
func (s *Store) loop() {
	defer close(s.exited)
	for {
		select {
		case cmd := <-s.commands:
			switch cmd.action {
			case "get":
				v, ok := s.values[cmd.key]
				cmd.reply <- result{value: append([]byte(nil), v...), found: ok}
			case "set":
				cmd.reply <- result{err: s.mutate(cmd.key, cmd.value, true)}
			case "remove":
				if _, ok := s.values[cmd.key]; !ok {
					cmd.reply <- result{}
					continue
				}
				cmd.reply <- result{err: s.mutate(cmd.key, nil, false)}
			case "keys":
				keys := make([]string, 0, len(s.values))
				for k := range s.values {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				cmd.reply <- result{keys: keys}
			default:
				cmd.reply <- result{err: fmt.Errorf("unsupported action %s", cmd.action)}
			}
		case <-s.closed:
			return
		}
	}
}

// mutate applies one change and writes the whole key space to disk. When the write fails the
// change is rolled back, so memory never runs ahead of the file.
func (s *Store) mutate(key string, value []byte, present bool) error {
	prev, had := s.values[key]
	if present {
		s.values[key] = value
	} else {
		delete(s.values, key)
	}
	if s.path == "" {
		return nil
	}
	if err := writeSnapshot(s.path, s.snapshot()); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		s.logger.Error("snapshot write failed", zap.String("path", s.path), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (s *Store) snapshot() file {
	snap := file{Values: make(map[string]json.RawMessage, len(s.values)), UpdatedAt: time.Now().UTC()}
	for k, v := range s.values {
		snap.Values[k] = json.RawMessage(v)
	}
	return snap
}

// Get returns the stored value for key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := s.do(ctx, command{action: "get", key: key})
	if err != nil {
		return nil, false, err
	}
	if !res.found {
		return nil, false, nil
	}
	return res.value, true, nil
}

// Set stores value under key. Values must be JSON documents.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %s is not valid JSON", key)
	}
	_, err := s.do(ctx, command{action: "set", key: key, value: append([]byte(nil), value...)})
	return err
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.do(ctx, command{action: "remove", key: key})
	return err
}

// Keys lists the stored keys in order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	res, err := s.do(ctx, command{action: "keys"})
	return res.keys, err
}

// do sends the command to the store goroutine while honoring a timeout to avoid blocking forever.
func (s *Store) do(ctx context.Context, cmd command) (result, error) {
	cmd.reply = make(chan result, 1)
	select {
	case s.commands <- cmd:
	case <-s.closed:
		return result{}, errors.New("snapshot store is closed")
	case <-ctx.Done():
		return result{}, ctx.Err()
	case <-time.After(2 * time.Second):
		return result{}, errors.New("timed out while enqueuing command")
	}
	// an accepted command is answered even when ctx ends, so the caller sees its outcome
	select {
	case res := <-cmd.reply:
		return res, res.err
	case <-s.closed:
		return result{}, errors.New("snapshot store is closed")
	}
}

// Close stops the store goroutine. Every acknowledged mutation is already on disk.
func (s *Store) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	<-s.exited
	return nil
}

// readSnapshot loads the persisted JSON file if it exists.
func readSnapshot(path string) (*file, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var snap file
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// writeSnapshot persists the current state to disk through a rename so readers never see half a file.
func writeSnapshot(path string, snap file) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	temp := path + ".tmp"
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(temp, path)
}
