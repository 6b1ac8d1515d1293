// Package persist keeps the order store in a single compressed snapshot
// file next to a backup of the previous save.
package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/imrishuroy/go-courier-orders/internal/orders"
)

// zstd.Encoder and zstd.Decoder are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("persist: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("persist: zstd decoder initialization failed: " + err.Error())
	}
}

// ErrUnreadable is returned by Load when neither the snapshot nor its
// backup can be decoded.
var ErrUnreadable = errors.New("snapshot and backup unreadable")

// FileStore reads and writes the snapshot at one path. The previous
// snapshot is kept at path + ".bak".
type FileStore struct {
	path   string
	codec  orders.Codec
	logger *slog.Logger
	mu     sync.Mutex // one save at a time
}

// NewFileStore returns a FileStore for path that encodes records with codec.
func NewFileStore(path string, codec orders.Codec, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{path: path, codec: codec, logger: logger}
}

// Path returns the snapshot path.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) backupPath() string { return f.path + ".bak" }

// Load reads the snapshot. If the snapshot is missing or corrupt the
// backup is tried. With neither file present Load yields an empty store.
// If a file exists but nothing decodes, Load returns an empty store
// together with ErrUnreadable so the caller can run degraded.
func (f *FileStore) Load() (*orders.Store, orders.LoadReport, error) {
	s, report, err := f.loadPath(f.path)
	if err == nil {
		return s, report, nil
	}
	missing := errors.Is(err, fs.ErrNotExist)
	if !missing {
		f.logger.Error("order snapshot unreadable, trying backup", "path", f.path, "error", err)
	}

	s, report, bakErr := f.loadPath(f.backupPath())
	if bakErr == nil {
		f.logger.Warn("orders restored from backup snapshot", "path", f.backupPath(), "loaded", report.Loaded)
		s.MarkDirty()
		return s, report, nil
	}
	if missing && errors.Is(bakErr, fs.ErrNotExist) {
		f.logger.Info("no order snapshot found, starting empty", "path", f.path)
		return orders.NewStore(f.logger), orders.LoadReport{}, nil
	}
	f.logger.Error("backup snapshot unreadable", "path", f.backupPath(), "error", bakErr)
	return orders.NewStore(f.logger), orders.LoadReport{}, fmt.Errorf("%w: %v; backup: %v", ErrUnreadable, err, bakErr)
}

func (f *FileStore) loadPath(path string) (*orders.Store, orders.LoadReport, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, orders.LoadReport{}, err
	}
	data, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, orders.LoadReport{}, fmt.Errorf("zstd decompress: %w", err)
	}
	return orders.LoadSnapshot(data, f.logger)
}

// Save writes s to the snapshot path. The new file is written and synced
// under a temporary name; the current snapshot becomes the backup and the
// temporary file is renamed into place.
func (f *FileStore) Save(s *orders.Store) (orders.SaveReport, error) {
	data, report, err := s.SerializeSnapshot(f.codec)
	if err != nil {
		return report, err
	}
	compressed := zstdEncoder.EncodeAll(data, nil)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return report, fmt.Errorf("creating snapshot directory: %w", err)
	}

	temporaryPath := f.path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return report, fmt.Errorf("creating temporary snapshot: %w", err)
	}
	if _, err := file.Write(compressed); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return report, fmt.Errorf("writing temporary snapshot: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return report, fmt.Errorf("syncing temporary snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return report, fmt.Errorf("closing temporary snapshot: %w", err)
	}

	if err := os.Rename(f.path, f.backupPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		os.Remove(temporaryPath)
		return report, fmt.Errorf("backing up previous snapshot: %w", err)
	}
	if err := os.Rename(temporaryPath, f.path); err != nil {
		os.Remove(temporaryPath)
		return report, fmt.Errorf("renaming snapshot into place: %w", err)
	}

	if dir, err := os.Open(filepath.Dir(f.path)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return report, nil
}
