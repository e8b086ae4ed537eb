package objstore

import (
	"context"
	"sync"

	errors "github.com/Laisky/errors/v2"
)

// MemoryObject is one stored object.
type MemoryObject struct {
	Content     []byte
	ContentType string
	Metadata    map[string]string
}

// Memory is an in-process Storage for tests and local development.
type Memory struct {
	mu       sync.Mutex
	objects  map[string]MemoryObject
	failures map[string]error
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		objects:  make(map[string]MemoryObject),
		failures: make(map[string]error),
	}
}

// FailOn makes every subsequent call of op ("put", "get", "delete", "copy", "exists")
// return err. A nil err clears the failure.
func (m *Memory) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Object returns a stored object.
func (m *Memory) Object(bucket, key string) (MemoryObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[bucket+"/"+key]
	return obj, ok
}

// Len returns the number of stored objects across buckets.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// Put stores a copy of content.
func (m *Memory) Put(_ context.Context, bucket, key string, content []byte, contentType string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["put"]; err != nil {
		return err
	}
	m.objects[bucket+"/"+key] = MemoryObject{
		Content:     append([]byte(nil), content...),
		ContentType: contentType,
		Metadata:    metadata,
	}
	return nil
}

// Get returns a copy of the stored content.
func (m *Memory) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["get"]; err != nil {
		return nil, err
	}
	obj, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "get object %s", key)
	}
	return append([]byte(nil), obj.Content...), nil
}

// Delete removes an object if present.
func (m *Memory) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["delete"]; err != nil {
		return err
	}
	delete(m.objects, bucket+"/"+key)
	return nil
}

// Copy duplicates srcKey to dstKey.
func (m *Memory) Copy(_ context.Context, bucket, srcKey, dstKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["copy"]; err != nil {
		return err
	}
	obj, ok := m.objects[bucket+"/"+srcKey]
	if !ok {
		return errors.Wrapf(ErrNotFound, "copy object %s", srcKey)
	}
	obj.Content = append([]byte(nil), obj.Content...)
	m.objects[bucket+"/"+dstKey] = obj
	return nil
}

// Exists reports whether key is present.
func (m *Memory) Exists(_ context.Context, bucket, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures["exists"]; err != nil {
		return false, err
	}
	_, ok := m.objects[bucket+"/"+key]
	return ok, nil
}

// EnsureBucket is a no-op; buckets are implicit.
func (m *Memory) EnsureBucket(context.Context, string) error {
	return nil
}
