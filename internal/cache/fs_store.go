package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	metaFileName = ".store"
	entrySuffix  = ".entry"
)

// NewFileStorage 以 basePath 为根目录构建磁盘缓存，每个 store 对应一个子目录：
//
//	<basePath>/<name>/.store         -> storeMeta
//	<basePath>/<name>/<sha1>.entry   -> fileEntry
func NewFileStorage(basePath string) (Storage, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	s := &fileStorage{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}
	metas, err := s.loadMetas()
	if err != nil {
		return nil, err
	}
	for _, meta := range metas {
		if meta.Seq >= s.nextSeq {
			s.nextSeq = meta.Seq + 1
		}
	}
	return s, nil
}

// fileStorage 通过 entryLock 避免同一条目并发写入；mu 保护 store 级别的创建与删除。
type fileStorage struct {
	basePath string

	mu      sync.Mutex
	nextSeq uint64
	closed  bool

	lockMu sync.Mutex
	locks  map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// fileEntry 同时保存键与响应，Keys 无需反推文件名。
type fileEntry struct {
	Key      RequestKey
	Response Response
}

func (s *fileStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStorageClosed
	}

	dir := s.storeDir(name)
	metaPath := filepath.Join(dir, metaFileName)
	if _, err := os.Stat(metaPath); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		encoded, err := encodeGob(storeMeta{Seq: s.nextSeq, Created: time.Now().UTC()})
		if err != nil {
			return nil, err
		}
		if err := writeAtomic(metaPath, encoded); err != nil {
			return nil, err
		}
		s.nextSeq++
	} else if err != nil {
		return nil, err
	}
	return &fileStore{parent: s, name: name, dir: dir}, nil
}

func (s *fileStorage) Has(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.isClosed() {
		return false, ErrStorageClosed
	}
	if validateName(name) != nil {
		return false, nil
	}
	return s.exists(name)
}

func (s *fileStorage) exists(name string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.storeDir(name), metaFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (s *fileStorage) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.isClosed() {
		return nil, ErrStorageClosed
	}
	metas, err := s.loadMetas()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(metas))
	for i, meta := range metas {
		names[i] = meta.name
	}
	return names, nil
}

func (s *fileStorage) loadMetas() ([]namedMeta, error) {
	dirs, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	var result []namedMeta
	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.basePath, dir.Name(), metaFileName))
		if err != nil {
			continue
		}
		var meta storeMeta
		if err := decodeGob(raw, &meta); err != nil {
			continue
		}
		result = append(result, namedMeta{name: dir.Name(), storeMeta: meta})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

func (s *fileStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if validateName(name) != nil {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStorageClosed
	}

	ok, err := s.exists(name)
	if err != nil || !ok {
		return false, err
	}
	// 先删除元数据，保证中途失败时 store 对外已不可见。
	if err := os.Remove(filepath.Join(s.storeDir(name), metaFileName)); err != nil {
		return false, err
	}
	if err := os.RemoveAll(s.storeDir(name)); err != nil {
		return true, err
	}
	return true, nil
}

func (s *fileStorage) Match(ctx context.Context, key RequestKey) (*Response, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		resp, err := s.read(s.storeDir(name), key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return resp, err
	}
	return nil, ErrNotFound
}

func (s *fileStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fileStorage) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fileStorage) storeDir(name string) string {
	return filepath.Join(s.basePath, name)
}

func (s *fileStorage) read(dir string, key RequestKey) (*Response, error) {
	raw, err := os.ReadFile(entryPath(dir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var entry fileEntry
	if err := decodeGob(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	// sha1 碰撞时以完整键为准。
	if entry.Key != key {
		return nil, ErrNotFound
	}
	resp := entry.Response
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	return &resp, nil
}

func (s *fileStorage) lockEntry(path string) func() {
	s.lockMu.Lock()
	lock := s.locks[path]
	if lock == nil {
		lock = &entryLock{}
		s.locks[path] = lock
	}
	lock.refs++
	s.lockMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.lockMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, path)
		}
		s.lockMu.Unlock()
	}
}

type fileStore struct {
	parent *fileStorage
	name   string
	dir    string
}

func (s *fileStore) Name() string { return s.name }

func (s *fileStore) Match(ctx context.Context, key RequestKey) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.parent.isClosed() {
		return nil, ErrStorageClosed
	}
	return s.parent.read(s.dir, key)
}

func (s *fileStore) Put(ctx context.Context, key RequestKey, resp *Response) error {
	if resp == nil {
		return errors.New("nil response")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := resp.Clone()
	if stored.StoredAt.IsZero() {
		stored.StoredAt = time.Now().UTC()
	}
	encoded, err := encodeGob(fileEntry{Key: key, Response: *stored})
	if err != nil {
		return err
	}

	// 存在性检查与写入都在 parent.mu 内完成，避免与 store 删除交错留下孤立目录。
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	if s.parent.closed {
		return ErrStorageClosed
	}
	ok, err := s.parent.exists(s.name)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	path := entryPath(s.dir, key)
	unlock := s.parent.lockEntry(path)
	defer unlock()
	return writeAtomic(path, encoded)
}

func (s *fileStore) Delete(ctx context.Context, key RequestKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.parent.isClosed() {
		return false, ErrStorageClosed
	}
	path := entryPath(s.dir, key)
	unlock := s.parent.lockEntry(path)
	defer unlock()

	if _, err := s.parent.read(s.dir, key); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return true, nil
}

func (s *fileStore) Keys(ctx context.Context) ([]RequestKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.parent.isClosed() {
		return nil, ErrStorageClosed
	}
	files, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var keys []RequestKey
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), entrySuffix) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, f.Name()))
		if err != nil {
			continue
		}
		var entry fileEntry
		if err := decodeGob(raw, &entry); err != nil {
			continue
		}
		keys = append(keys, entry.Key)
	}
	return keys, nil
}

func entryPath(dir string, key RequestKey) string {
	sum := sha1.Sum([]byte(key.String()))
	return filepath.Join(dir, hex.EncodeToString(sum[:])+entrySuffix)
}

// writeAtomic 先写临时文件再 rename，读者不会看到半写状态。
func writeAtomic(path string, data []byte) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, path); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}
