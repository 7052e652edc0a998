package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/example/worship-scheduler/internal/persistence"
)

// documentStore reads and writes one JSON document type through the state
// port. Missing documents decode as the zero value produced by empty.
type documentStore[T any] struct {
	store persistence.StateStore
	empty func() T
	locks *namespaceLocks
}

// normalizer is implemented by documents that must repair nil collections
// after decoding.
type normalizer interface {
	normalize()
}

func newDocumentStore[T any](store persistence.StateStore, empty func() T) documentStore[T] {
	return documentStore[T]{store: store, empty: empty, locks: newNamespaceLocks()}
}

func (d documentStore[T]) load(ctx context.Context, namespace string) (T, error) {
	doc, err := d.store.Load(ctx, namespace)
	if errors.Is(err, persistence.ErrNotFound) {
		return d.empty(), nil
	}
	if err != nil {
		var zero T
		return zero, fmt.Errorf("load %s: %w", namespace, err)
	}
	value := d.empty()
	if err := json.Unmarshal(doc.Data, &value); err != nil {
		var zero T
		return zero, fmt.Errorf("decode %s: %w", namespace, err)
	}
	if n, ok := any(&value).(normalizer); ok {
		n.normalize()
	}
	return value, nil
}

func (d documentStore[T]) save(ctx context.Context, namespace string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", namespace, err)
	}
	if _, err := d.store.Save(ctx, namespace, data); err != nil {
		return fmt.Errorf("save %s: %w", namespace, err)
	}
	return nil
}

// update runs fn on a freshly loaded document under the namespace lock and
// saves the result unless fn fails.
func (d documentStore[T]) update(ctx context.Context, namespace string, fn func(*T) error) (T, error) {
	unlock := d.locks.lock(namespace)
	defer unlock()

	value, err := d.load(ctx, namespace)
	if err != nil {
		return value, err
	}
	if err := fn(&value); err != nil {
		return value, err
	}
	if err := d.save(ctx, namespace, value); err != nil {
		return value, err
	}
	return value, nil
}

// namespaceLocks serialises load-modify-save cycles per namespace.
type namespaceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newNamespaceLocks() *namespaceLocks {
	return &namespaceLocks{locks: make(map[string]*sync.Mutex)}
}

func (n *namespaceLocks) lock(namespace string) func() {
	n.mu.Lock()
	m, ok := n.locks[namespace]
	if !ok {
		m = &sync.Mutex{}
		n.locks[namespace] = m
	}
	n.mu.Unlock()

	m.Lock()
	return m.Unlock
}
