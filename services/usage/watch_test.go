package usage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/agency-llm-client/models"
	"github.com/upb/agency-llm-client/repositories/filestore"
	"go.uber.org/zap"
)

func TestTracker_Watch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "api-usage.json")
	tracker := NewTracker(filestore.New(path, zap.NewNop()), newAgency(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan struct{}, 16)
	done := make(chan error, 1)
	go func() {
		done <- tracker.Watch(ctx, path, func() { changes <- struct{}{} })
	}()

	// Give the watcher time to register the directory.
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Dir(path))
		return err == nil
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// Unrelated files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.txt"), []byte("x"), 0o644))

	require.NoError(t, tracker.LogRequest(ctx, "math-auditor", "claude", 1, 1, 0, models.UsageStatusSuccess, nil))

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change notification for usage log write")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}
