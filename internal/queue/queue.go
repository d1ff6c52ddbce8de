// Package queue implements a disk-backed FIFO of files awaiting
// anonymization. The queue is a pair of directories: pending (the inbox a
// network receiver writes into) and active (items currently held by a
// worker). Files survive crashes; anything left in active at startup is
// recovered back into pending, which makes delivery at-least-once.
package queue

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PartialSuffix marks a file whose transfer is still in progress. A receiver
// writes under this suffix and renames when the bytes are complete; the queue
// never dequeues a partial file.
const PartialSuffix = ".partial"

// Queue is a durable filesystem queue. Safe for one producer and one consumer
// goroutine plus concurrent Size calls.
type Queue struct {
	pending string
	active  string
	minAge  time.Duration

	mu  sync.Mutex
	log *slog.Logger
}

// Open creates the queue directories under root and recovers any items a
// previous process left in the active area.
func Open(root string, minAge time.Duration, log *slog.Logger) (*Queue, error) {
	if log == nil {
		log = slog.Default()
	}
	q := &Queue{
		pending: filepath.Join(root, "pending"),
		active:  filepath.Join(root, "active"),
		minAge:  minAge,
		log:     log,
	}
	for _, dir := range []string{q.pending, q.active} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("could not create queue directory: %w", err)
		}
	}
	n, err := q.recover()
	if err != nil {
		return nil, err
	}
	if n > 0 {
		q.log.Info("recovered interrupted queue items", "count", n)
	}
	return q, nil
}

// PendingDir returns the inbox directory external producers write into.
func (q *Queue) PendingDir() string {
	return q.pending
}

// Enqueue copies a file into the pending area under an opaque unique name.
// The copy lands under the partial suffix first and is renamed once complete,
// so a crash mid-copy never leaves a dequeueable torn file.
func (q *Queue) Enqueue(src string) error {
	name := uuid.NewString() + ".dcm"
	tmp := filepath.Join(q.pending, name+PartialSuffix)
	if err := copyFile(src, tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not copy into queue: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(q.pending, name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not commit queue entry: %w", err)
	}
	return nil
}

// Dequeue moves the oldest eligible pending file into the active area and
// returns its new path. It returns false when nothing is eligible. Files with
// the partial suffix, and files modified more recently than the minimum age,
// are skipped so an in-progress transfer is never read.
func (q *Queue) Dequeue() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, name := range q.eligible() {
		src := filepath.Join(q.pending, name)
		dst := filepath.Join(q.active, name)
		if err := os.Rename(src, dst); err != nil {
			// Possibly raced with another consumer; try the next item.
			q.log.Debug("could not claim queue item", "item", name, "error", err)
			continue
		}
		return dst, true
	}
	return "", false
}

// Requeue returns an active item to the pending area for a later retry.
func (q *Queue) Requeue(activePath string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	dst := filepath.Join(q.pending, filepath.Base(activePath))
	if err := os.Rename(activePath, dst); err != nil {
		return fmt.Errorf("could not requeue item: %w", err)
	}
	return nil
}

// Remove deletes an active item after terminal processing.
func (q *Queue) Remove(activePath string) error {
	if err := os.Remove(activePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove queue item: %w", err)
	}
	return nil
}

// Size returns the number of eligible pending items.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.eligible())
}

// eligible lists pending items ready for dequeue, oldest first. Callers hold
// the queue lock.
func (q *Queue) eligible() []string {
	entries, err := os.ReadDir(q.pending)
	if err != nil {
		q.log.Warn("could not read pending directory", "error", err)
		return nil
	}

	type item struct {
		name string
		mod  time.Time
	}
	cutoff := time.Now().Add(-q.minAge)
	items := make([]item, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), PartialSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if q.minAge > 0 && info.ModTime().After(cutoff) {
			continue
		}
		items = append(items, item{name: e.Name(), mod: info.ModTime()})
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].mod.Equal(items[j].mod) {
			return items[i].mod.Before(items[j].mod)
		}
		return items[i].name < items[j].name
	})

	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.name
	}
	return names
}

// recover moves every leftover active item back to pending. Called once at
// startup, before any worker holds items.
func (q *Queue) recover() (int, error) {
	entries, err := os.ReadDir(q.active)
	if err != nil {
		return 0, fmt.Errorf("could not read active directory: %w", err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(q.active, e.Name())
		dst := filepath.Join(q.pending, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return n, fmt.Errorf("could not recover queue item %s: %w", e.Name(), err)
		}
		n++
	}
	return n, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
