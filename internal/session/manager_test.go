package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fieldvoice/fieldvoice/internal/models"
	"github.com/fieldvoice/fieldvoice/internal/session/drivers"
)

type recordingArchiver struct {
	mu       sync.Mutex
	archives []models.SessionArchive
}

func (a *recordingArchiver) ArchiveSession(_ context.Context, archive models.SessionArchive) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archives = append(a.archives, archive)
	return nil
}

func (a *recordingArchiver) all() []models.SessionArchive {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.SessionArchive(nil), a.archives...)
}

func TestManagerCreatesSessionOnFirstUse(t *testing.T) {
	m := NewManager(drivers.NewInMemoryStore(), time.Minute)

	var seen *models.Session
	err := m.Do(context.Background(), "sess-1", func(sess *models.Session) error {
		seen = sess
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if seen == nil {
		t.Fatal("expected a session to be created")
	}
	if seen.State != models.StateIdle {
		t.Errorf("new session state = %q, want %q", seen.State, models.StateIdle)
	}

	// The session must survive to the next command.
	err = m.Do(context.Background(), "sess-1", func(sess *models.Session) error {
		if sess.CreatedAt != seen.CreatedAt {
			t.Error("second Do created a fresh session instead of loading the existing one")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
}

func TestManagerSerializesSameSession(t *testing.T) {
	m := NewManager(drivers.NewInMemoryStore(), time.Minute)

	var inFlight atomic.Int32
	var overlapped atomic.Bool
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Do(context.Background(), "sess-1", func(sess *models.Session) error {
				if inFlight.Add(1) > 1 {
					overlapped.Store(true)
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				sess.History = append(sess.History, models.Command{})
				return nil
			})
		}()
	}
	wg.Wait()

	if overlapped.Load() {
		t.Error("two commands for the same session ran concurrently")
	}

	err := m.Do(context.Background(), "sess-1", func(sess *models.Session) error {
		if len(sess.History) != 16 {
			t.Errorf("history length = %d, want 16", len(sess.History))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
}

func TestManagerDifferentSessionsRunConcurrently(t *testing.T) {
	m := NewManager(drivers.NewInMemoryStore(), time.Minute)

	release := make(chan struct{})
	entered := make(chan struct{})

	go func() {
		_ = m.Do(context.Background(), "sess-a", func(*models.Session) error {
			close(entered)
			<-release
			return nil
		})
	}()

	<-entered

	done := make(chan struct{})
	go func() {
		_ = m.Do(context.Background(), "sess-b", func(*models.Session) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("command for a different session blocked behind sess-a")
	}
	close(release)
}

func TestManagerArchivesClosedSession(t *testing.T) {
	archiver := &recordingArchiver{}
	store := drivers.NewInMemoryStore()
	m := NewManager(store, time.Minute, WithArchiver(archiver))

	err := m.Do(context.Background(), "sess-1", func(sess *models.Session) error {
		sess.ProcedureID = "pump-inspection"
		sess.RecordTransition(models.StateAwaitingConfirmation, models.StateClosed, models.IntentNavigateComplete)
		sess.State = models.StateClosed
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	archives := archiver.all()
	if len(archives) != 1 {
		t.Fatalf("got %d archives, want 1", len(archives))
	}
	if archives[0].Reason != "closed" {
		t.Errorf("archive reason = %q, want %q", archives[0].Reason, "closed")
	}
	if !archives[0].Completed {
		t.Error("completion via navigate_complete should mark the archive completed")
	}

	sess, err := store.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sess != nil {
		t.Error("closed session should be removed from the live store")
	}
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	archiver := &recordingArchiver{}
	store := drivers.NewInMemoryStore()
	m := NewManager(store, 10*time.Minute, WithArchiver(archiver))

	ctx := context.Background()
	if err := m.Do(ctx, "stale", func(*models.Session) error { return nil }); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if err := m.Do(ctx, "fresh", func(*models.Session) error { return nil }); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	// Age the stale session past the timeout.
	stale, _ := store.Get(ctx, "stale")
	stale.LastActivity = time.Now().Add(-time.Hour)
	if err := store.Put(ctx, stale); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := m.Sweep(ctx, time.Now()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if sess, _ := store.Get(ctx, "stale"); sess != nil {
		t.Error("stale session should have been expired")
	}
	if sess, _ := store.Get(ctx, "fresh"); sess == nil {
		t.Error("fresh session should have survived the sweep")
	}

	archives := archiver.all()
	if len(archives) != 1 {
		t.Fatalf("got %d archives, want 1", len(archives))
	}
	if archives[0].Reason != "timeout" {
		t.Errorf("archive reason = %q, want %q", archives[0].Reason, "timeout")
	}
	if archives[0].Completed {
		t.Error("swept session must not count as completed")
	}
}

func TestManagerLockTableShrinks(t *testing.T) {
	m := NewManager(drivers.NewInMemoryStore(), time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Do(context.Background(), "sess-1", func(*models.Session) error { return nil })
		}()
	}
	wg.Wait()

	m.mu.Lock()
	n := len(m.locks)
	m.mu.Unlock()
	if n != 0 {
		t.Errorf("lock table holds %d entries after all commands finished, want 0", n)
	}
}

func TestSweepDoesNotRaceLiveCommands(t *testing.T) {
	m := NewManager(drivers.NewInMemoryStore(), time.Hour)
	ctx := context.Background()

	stop := make(chan struct{})
	var sweeps sync.WaitGroup
	sweeps.Add(1)
	go func() {
		defer sweeps.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = m.Sweep(ctx, time.Now())
			}
		}
	}()

	const writers = 4
	const commands = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < commands; j++ {
				err := m.Do(ctx, "sess-1", func(sess *models.Session) error {
					sess.History = append(sess.History, models.Command{Transcript: "tick"})
					return nil
				})
				if err != nil {
					t.Errorf("Do failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	sweeps.Wait()

	var history int
	if err := m.Do(ctx, "sess-1", func(sess *models.Session) error {
		history = len(sess.History)
		return nil
	}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if history != writers*commands {
		t.Errorf("history length = %d, want %d", history, writers*commands)
	}
}

func TestInMemoryStoreRoundTrip(t *testing.T) {
	store := drivers.NewInMemoryStore()
	ctx := context.Background()

	if sess, err := store.Get(ctx, "missing"); err != nil || sess != nil {
		t.Fatalf("Get(missing) = (%v, %v), want (nil, nil)", sess, err)
	}

	sess := models.NewSession("sess-1")
	if err := store.Put(ctx, sess); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got == nil || got.ID != "sess-1" {
		t.Fatalf("Get returned %v, want session sess-1", got)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("List returned %d sessions, want 1", len(all))
	}

	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got, _ := store.Get(ctx, "sess-1"); got != nil {
		t.Error("session survived Delete")
	}
}
