// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package objstoretest provides an in-memory object store for tests.
package objstoretest

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/ManuGH/livegate/internal/objstore"
)

var _ objstore.Uploader = (*Memory)(nil)

// Object is one stored object.
type Object struct {
	Data        []byte
	ContentType string
}

// Memory keeps uploaded objects keyed by "bucket/key".
type Memory struct {
	mu      sync.Mutex
	objects map[string]Object
	puts    int

	// Err, when set, fails every upload.
	Err error
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]Object)}
}

func (m *Memory) PutFile(_ context.Context, bucket, key, path, contentType string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if err := m.put(bucket, key, data, contentType); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (m *Memory) PutBytes(_ context.Context, bucket, key string, data []byte, contentType string) error {
	return m.put(bucket, key, append([]byte(nil), data...), contentType)
}

func (m *Memory) EnsureBucket(context.Context, string) error { return nil }

func (m *Memory) put(bucket, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return fmt.Errorf("put %s/%s: %w", bucket, key, m.Err)
	}
	if contentType == "" {
		contentType = objstore.ContentTypeFor(key)
	}
	m.objects[bucket+"/"+key] = Object{Data: data, ContentType: contentType}
	m.puts++
	return nil
}

// Get returns the object at bucket/key.
func (m *Memory) Get(bucket, key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[bucket+"/"+key]
	return o, ok
}

// Keys lists every "bucket/key" in order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Puts counts successful uploads, overwrites included.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
