package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	metaPrefix  = "n:"
	entryPrefix = "e:"
	keySep      = "\x00"
)

// storeMeta 记录 store 的创建序号，Names/Match 依赖它保持创建顺序。
type storeMeta struct {
	Seq     uint64
	Created time.Time
}

// levelStorage 以单个 leveldb 实例承载所有版本的 store：
//
//	n:<name>                 -> storeMeta
//	e:<name>\x00<METHOD URL> -> Response
type levelStorage struct {
	db *leveldb.DB

	mu      sync.Mutex
	nextSeq uint64
	closed  bool
}

// NewLevelStorage 在 dir 下打开（或创建）leveldb 数据库。
func NewLevelStorage(dir string) (Storage, error) {
	if dir == "" {
		return nil, errors.New("storage path required")
	}
	db, err := leveldb.OpenFile(filepath.Join(dir, "leveldb"), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return newLevelStorage(db)
}

// NewMemoryStorage 返回基于内存 leveldb 的实现，进程退出即丢失。
func NewMemoryStorage() (Storage, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory leveldb: %w", err)
	}
	return newLevelStorage(db)
}

func newLevelStorage(db *leveldb.DB) (*levelStorage, error) {
	s := &levelStorage{db: db}
	metas, err := s.loadMetas()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, meta := range metas {
		if meta.Seq >= s.nextSeq {
			s.nextSeq = meta.Seq + 1
		}
	}
	return s, nil
}

type namedMeta struct {
	name string
	storeMeta
}

func (s *levelStorage) loadMetas() ([]namedMeta, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(metaPrefix)), nil)
	defer it.Release()

	var result []namedMeta
	for it.Next() {
		name := string(bytes.TrimPrefix(it.Key(), []byte(metaPrefix)))
		var meta storeMeta
		if err := decodeGob(it.Value(), &meta); err != nil {
			continue
		}
		result = append(result, namedMeta{name: name, storeMeta: meta})
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result, nil
}

func (s *levelStorage) Open(ctx context.Context, name string) (Store, error) {
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

	metaKey := []byte(metaPrefix + name)
	exists, err := s.db.Has(metaKey, nil)
	if err != nil {
		return nil, err
	}
	if !exists {
		encoded, err := encodeGob(storeMeta{Seq: s.nextSeq, Created: time.Now().UTC()})
		if err != nil {
			return nil, err
		}
		if err := s.db.Put(metaKey, encoded, nil); err != nil {
			return nil, err
		}
		s.nextSeq++
	}
	return &levelStore{parent: s, name: name}, nil
}

func (s *levelStorage) Has(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s.isClosed() {
		return false, ErrStorageClosed
	}
	return s.db.Has([]byte(metaPrefix+name), nil)
}

func (s *levelStorage) Names(ctx context.Context) ([]string, error) {
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

func (s *levelStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStorageClosed
	}

	metaKey := []byte(metaPrefix + name)
	exists, err := s.db.Has(metaKey, nil)
	if err != nil || !exists {
		return false, err
	}

	batch := new(leveldb.Batch)
	batch.Delete(metaKey)
	it := s.db.NewIterator(util.BytesPrefix(entryPrefixFor(name)), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return false, err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *levelStorage) Match(ctx context.Context, key RequestKey) (*Response, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		resp, err := s.get(name, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return resp, err
	}
	return nil, ErrNotFound
}

func (s *levelStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *levelStorage) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *levelStorage) get(name string, key RequestKey) (*Response, error) {
	raw, err := s.db.Get(entryKeyFor(name, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := decodeGob(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	if resp.Header == nil {
		resp.Header = http.Header{}
	}
	return &resp, nil
}

type levelStore struct {
	parent *levelStorage
	name   string
}

func (s *levelStore) Name() string { return s.name }

func (s *levelStore) Match(ctx context.Context, key RequestKey) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.parent.isClosed() {
		return nil, ErrStorageClosed
	}
	return s.parent.get(s.name, key)
}

func (s *levelStore) Put(ctx context.Context, key RequestKey, resp *Response) error {
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
	encoded, err := encodeGob(stored)
	if err != nil {
		return err
	}

	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	if s.parent.closed {
		return ErrStorageClosed
	}
	// store 已被删除时拒绝写入，避免产生孤儿条目。
	exists, err := s.parent.db.Has([]byte(metaPrefix+s.name), nil)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return s.parent.db.Put(entryKeyFor(s.name, key), encoded, nil)
}

func (s *levelStore) Delete(ctx context.Context, key RequestKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	if s.parent.closed {
		return false, ErrStorageClosed
	}
	entryKey := entryKeyFor(s.name, key)
	exists, err := s.parent.db.Has(entryKey, nil)
	if err != nil || !exists {
		return false, err
	}
	return true, s.parent.db.Delete(entryKey, nil)
}

func (s *levelStore) Keys(ctx context.Context) ([]RequestKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.parent.isClosed() {
		return nil, ErrStorageClosed
	}
	prefix := entryPrefixFor(s.name)
	it := s.parent.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	var keys []RequestKey
	for it.Next() {
		if key, ok := parseRequestKey(string(bytes.TrimPrefix(it.Key(), prefix))); ok {
			keys = append(keys, key)
		}
	}
	return keys, it.Error()
}

func entryPrefixFor(name string) []byte {
	return []byte(entryPrefix + name + keySep)
}

func entryKeyFor(name string, key RequestKey) []byte {
	return append(entryPrefixFor(name), key.String()...)
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
