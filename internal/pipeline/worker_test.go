package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicom-archive/internal/filter"
	"dicom-archive/internal/queue"
)

// jsonReader parses queued files whose content is a JSON attribute map, so
// worker tests can exercise the queue with real files on disk.
func jsonReader() Reader {
	return ReaderFunc(func(path string) (Object, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var attrs map[string]string
		if err := json.Unmarshal(data, &attrs); err != nil {
			return nil, fmt.Errorf("could not parse file: %w", err)
		}
		return &fakeObject{image: true, attrs: attrs}, nil
	})
}

func enqueueAttrs(t *testing.T, q *queue.Queue, attrs map[string]string) {
	t.Helper()
	data, err := json.Marshal(attrs)
	require.NoError(t, err)
	src := filepath.Join(t.TempDir(), "in.dcm")
	require.NoError(t, os.WriteFile(src, data, 0644))
	require.NoError(t, q.Enqueue(src))
}

func TestWorkerDrainProcessesAndRemoves(t *testing.T) {
	env := newTestEnv(t, jsonReader(), filter.Settings{}, false)

	q, err := queue.Open(t.TempDir(), 0, nil)
	require.NoError(t, err)

	enqueueAttrs(t, q, imageAttrs("PID-1", "20200101", "A1", "1.2.3.4"))
	enqueueAttrs(t, q, imageAttrs("PID-2", "20210315", "A2", "1.2.3.5"))

	w := NewWorker(q, env.pipe, 0, nil)
	w.Drain(context.Background())

	assert.Equal(t, 0, q.Size(), "processed items must leave the queue")
	assert.Len(t, env.idx.List(), 2)
}

func TestWorkerDrainDiscardsTerminalFailures(t *testing.T) {
	env := newTestEnv(t, jsonReader(), filter.Settings{}, false)

	q, err := queue.Open(t.TempDir(), 0, nil)
	require.NoError(t, err)

	// Not valid JSON, so the reader fails and the item is terminal.
	src := filepath.Join(t.TempDir(), "junk.bin")
	require.NoError(t, os.WriteFile(src, []byte("not json"), 0644))
	require.NoError(t, q.Enqueue(src))

	w := NewWorker(q, env.pipe, 0, nil)
	w.Drain(context.Background())

	assert.Equal(t, 0, q.Size(), "terminal failures are discarded, not retried")
	assert.Empty(t, env.idx.List())
}

func TestWorkerDrainRequeuesRetryableFailures(t *testing.T) {
	env := newTestEnv(t, jsonReader(), filter.Settings{}, false)

	q, err := queue.Open(t.TempDir(), 0, nil)
	require.NoError(t, err)
	enqueueAttrs(t, q, imageAttrs("PID-1", "20200101", "A1", "1.2.3.4"))

	// A closed index makes every index write fail with a retryable status.
	require.NoError(t, env.idx.Close())

	w := NewWorker(q, env.pipe, 0, nil)
	w.Drain(context.Background())

	assert.Equal(t, 1, q.Size(), "retryable failures return to pending")
}
