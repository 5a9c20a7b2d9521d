// pkg/blobstore/memstore/adapter.go
package memstore

import (
	"context"
	"sync"

	"assetvault/pkg/blobstore"
	"assetvault/pkg/types"
)

// Store 是纯内存的 BlobStore 实现
// 进程退出即失。给测试和一次性工具用，正常配置走 sqlite/磁盘。
type Store struct {
	mu    sync.RWMutex
	blobs map[types.ID]blobstore.Record
}

var _ blobstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{blobs: make(map[types.ID]blobstore.Record)}
}

func (s *Store) Put(_ context.Context, id types.ID, projectID types.ProjectID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	s.blobs[id] = blobstore.Record{ID: id, ProjectID: projectID, Bytes: buf}
	return nil
}

func (s *Store) Get(_ context.Context, id types.ID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.blobs[id]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return rec.Bytes, nil
}

func (s *Store) GetRecord(_ context.Context, id types.ID) (*blobstore.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.blobs[id]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return &rec, nil
}

func (s *Store) Delete(_ context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, id)
	return nil
}

func (s *Store) ListByProject(_ context.Context, projectID types.ProjectID) ([]types.ID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []types.ID
	for id, rec := range s.blobs {
		if rec.ProjectID == projectID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) Close() error { return nil }
