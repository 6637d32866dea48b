package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/alphagoones/smartbackup/pkg/configstore"
	"github.com/alphagoones/smartbackup/pkg/history"
	"github.com/alphagoones/smartbackup/pkg/lockfile"
	"github.com/alphagoones/smartbackup/pkg/paths"
	"github.com/alphagoones/smartbackup/pkg/retention"
	"github.com/alphagoones/smartbackup/pkg/scan"
)

// testEngine builds an engine over a fresh state root with a controllable
// artifact clock.
func testEngine(t *testing.T) (*Engine, *time.Time) {
	t.Helper()
	layout, err := paths.Resolve(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatal(err)
	}
	if err := layout.Ensure(); err != nil {
		t.Fatal(err)
	}
	e := New(layout)
	clock := time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)
	e.Now = func() time.Time { return clock }
	return e, &clock
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func countArtifacts(t *testing.T, dest, name string) int {
	t.Helper()
	entries, err := os.ReadDir(dest)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, e := range entries {
		if _, ok := retention.ParseArtifactName(name, e.Name()); ok {
			n++
		}
	}
	return n
}

func TestRunLifecycle(t *testing.T) {
	// Arrange
	e, clock := testEngine(t)
	src := filepath.Join(t.TempDir(), "docs")
	writeFile(t, src, "report.txt", "hello")
	writeFile(t, src, "notes/ideas.md", "world")
	dest := filepath.Join(t.TempDir(), "backups")

	if err := e.Configs.Add(configstore.Config{
		Name:        "docs",
		Sources:     []string{src},
		Destination: dest,
		MaxBackups:  2,
		Compression: true,
	}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// Act: first run is a full backup.
	rec1, err := e.Run(context.Background(), "docs")
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	// Assert
	if rec1.Outcome != history.Success {
		t.Fatalf("first run outcome = %v, detail %q", rec1.Outcome, rec1.ErrorDetail)
	}
	if rec1.FileCount != 2 {
		t.Errorf("first run FileCount = %d, want 2", rec1.FileCount)
	}
	if !strings.HasSuffix(rec1.ArtifactPath, ".tar.gz") {
		t.Errorf("ArtifactPath = %q, want archive", rec1.ArtifactPath)
	}
	if e.State() != Done {
		t.Errorf("State() = %v, want Done", e.State())
	}

	// Act: change one file, the second run copies only that one.
	time.Sleep(10 * time.Millisecond)
	writeFile(t, src, "report.txt", "hello again")
	*clock = clock.Add(time.Hour)

	rec2, err := e.Run(context.Background(), "docs")
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if rec2.Outcome != history.Success {
		t.Fatalf("second run outcome = %v, detail %q", rec2.Outcome, rec2.ErrorDetail)
	}
	if rec2.FileCount != 1 {
		t.Errorf("second run FileCount = %d, want 1", rec2.FileCount)
	}

	// Act: nothing changed, the third run copies nothing but still produces
	// an artifact, and retention trims to two.
	*clock = clock.Add(time.Hour)
	rec3, err := e.Run(context.Background(), "docs")
	if err != nil {
		t.Fatalf("third Run() error = %v", err)
	}
	if rec3.Outcome != history.Success || rec3.FileCount != 0 {
		t.Errorf("third run = outcome %v, files %d, want success/0", rec3.Outcome, rec3.FileCount)
	}
	if _, err := os.Stat(rec3.ArtifactPath); err != nil {
		t.Errorf("empty run artifact missing: %v", err)
	}
	if got := countArtifacts(t, dest, "docs"); got != 2 {
		t.Errorf("artifacts after retention = %d, want 2", got)
	}

	// The history holds all three runs.
	records, err := e.History.Records("docs")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Errorf("history length = %d, want 3", len(records))
	}
}

func TestRunUnknownConfig(t *testing.T) {
	e, _ := testEngine(t)
	_, err := e.Run(context.Background(), "ghost")
	if !errors.Is(err, configstore.ErrNotFound) {
		t.Errorf("Run() error = %v, want ErrNotFound", err)
	}
}

func TestRunRejectsConcurrentSameConfig(t *testing.T) {
	// Arrange
	e, _ := testEngine(t)
	src := filepath.Join(t.TempDir(), "docs")
	writeFile(t, src, "a.txt", "x")
	if err := e.Configs.Add(configstore.Config{
		Name:        "docs",
		Sources:     []string{src},
		Destination: filepath.Join(t.TempDir(), "backups"),
	}); err != nil {
		t.Fatal(err)
	}

	// The first run parks inside the writing phase, the builder reads the
	// clock right before staging begins.
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	e.Now = func() time.Time {
		once.Do(func() {
			close(started)
			<-release
		})
		return time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)
	}

	firstErr := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background(), "docs")
		firstErr <- err
	}()

	// Act: a second run for the same configuration while the first holds it.
	<-started
	_, err := e.Run(context.Background(), "docs")

	// Assert
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
	close(release)
	if err := <-firstErr; err != nil {
		t.Errorf("first Run() error = %v", err)
	}
}

func TestRunRejectsForeignLock(t *testing.T) {
	// Arrange: another process holds the lock file for this configuration.
	e, _ := testEngine(t)
	src := filepath.Join(t.TempDir(), "docs")
	writeFile(t, src, "a.txt", "x")
	dest := filepath.Join(t.TempDir(), "backups")
	if err := os.MkdirAll(dest, 0755); err != nil {
		t.Fatal(err)
	}
	if err := e.Configs.Add(configstore.Config{
		Name:        "docs",
		Sources:     []string{src},
		Destination: dest,
	}); err != nil {
		t.Fatal(err)
	}
	lock, err := lockfile.Acquire(context.Background(), dest, "docs")
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	// Act
	_, err = e.Run(context.Background(), "docs")

	// Assert
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Run() error = %v, want ErrAlreadyRunning", err)
	}
	// A blocked run leaves no history record behind.
	records, recErr := e.History.Records("docs")
	if recErr != nil {
		t.Fatal(recErr)
	}
	if len(records) != 0 {
		t.Errorf("history length = %d, want 0", len(records))
	}
}

func TestRunAllSourcesUnavailable(t *testing.T) {
	// Arrange: the configured source vanished after it was added.
	e, _ := testEngine(t)
	src := filepath.Join(t.TempDir(), "docs")
	writeFile(t, src, "a.txt", "x")
	if err := e.Configs.Add(configstore.Config{
		Name:        "docs",
		Sources:     []string{src},
		Destination: filepath.Join(t.TempDir(), "backups"),
	}); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(src); err != nil {
		t.Fatal(err)
	}

	// Act
	rec, err := e.Run(context.Background(), "docs")

	// Assert: the run fails before touching the destination but is still
	// recorded.
	if !errors.Is(err, scan.ErrAllSourcesUnavailable) {
		t.Fatalf("Run() error = %v, want ErrAllSourcesUnavailable", err)
	}
	if rec == nil || rec.Outcome != history.Failed {
		t.Fatalf("record = %+v, want failed outcome", rec)
	}
	records, recErr := e.History.Records("docs")
	if recErr != nil || len(records) != 1 {
		t.Errorf("history = %v, %v, want one failed record", records, recErr)
	}
}

func TestRunPartialSourceUnavailable(t *testing.T) {
	// Arrange: one healthy source, one missing.
	e, _ := testEngine(t)
	src := filepath.Join(t.TempDir(), "docs")
	writeFile(t, src, "a.txt", "x")
	missing := filepath.Join(t.TempDir(), "gone")
	if err := e.Configs.Add(configstore.Config{
		Name:        "mixed",
		Sources:     []string{src, missing},
		Destination: filepath.Join(t.TempDir(), "backups"),
	}); err != nil {
		t.Fatal(err)
	}

	// Act
	rec, err := e.Run(context.Background(), "mixed")

	// Assert
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rec.Outcome != history.Partial {
		t.Errorf("outcome = %v, want partial", rec.Outcome)
	}
	if !strings.Contains(rec.ErrorDetail, "unavailable") {
		t.Errorf("ErrorDetail = %q", rec.ErrorDetail)
	}
	if rec.FileCount != 1 {
		t.Errorf("FileCount = %d, want 1", rec.FileCount)
	}
}

func TestRunCancelled(t *testing.T) {
	e, _ := testEngine(t)
	src := filepath.Join(t.TempDir(), "docs")
	writeFile(t, src, "a.txt", "x")
	if err := e.Configs.Add(configstore.Config{
		Name:        "docs",
		Sources:     []string{src},
		Destination: filepath.Join(t.TempDir(), "backups"),
	}); err != nil {
		t.Fatal(err)
	}

	// Cancel once the run reaches the writing phase. The builder reads the
	// clock right before staging begins.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Now = func() time.Time {
		cancel()
		return time.Date(2026, 8, 30, 2, 0, 0, 0, time.UTC)
	}

	rec, err := e.Run(ctx, "docs")
	if err == nil {
		t.Fatal("Run() succeeded with cancelled context")
	}
	if rec == nil || rec.Outcome != history.Failed {
		t.Fatalf("record = %+v, want failed outcome", rec)
	}
	if !strings.Contains(rec.ErrorDetail, "cancel") {
		t.Errorf("ErrorDetail = %q, want cancellation detail", rec.ErrorDetail)
	}
}
