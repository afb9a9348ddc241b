package scheduler_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/internal/scheduler"
	"github.com/ogulcanaydogan/credit-guardian/pkg/mailscan"
	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/ogulcanaydogan/credit-guardian/pkg/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeService struct {
	store    *state.Store
	refresh  atomic.Int32
	scans    atomic.Int32
	purges   atomic.Int32
	block    chan struct{}
	panicked atomic.Bool
}

func newFakeService() *fakeService {
	return &fakeService{store: state.NewStore(quietLogger())}
}

func (f *fakeService) RefreshAll(context.Context, bool) {
	f.refresh.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.panicked.Load() {
		panic("refresh exploded")
	}
	f.store.UpdateBalance([]model.ProjectCheckResult{{Project: "a", Success: true}})
}

func (f *fakeService) ScanMailboxes(context.Context, int, bool) mailscan.Summary {
	f.scans.Add(1)
	return mailscan.Summary{}
}

func (f *fakeService) PurgeCaches()         { f.purges.Add(1) }
func (f *fakeService) State() *state.Store { return f.store }

func TestRunOnStartSavesState(t *testing.T) {
	svc := newFakeService()
	stateFile := filepath.Join(t.TempDir(), "state.json")
	s, err := scheduler.New(svc, quietLogger(), scheduler.Options{
		RefreshInterval: time.Hour,
		StateFile:       stateFile,
		RunOnStart:      true,
	})
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return svc.purges.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), svc.refresh.Load())
	require.Eventually(t, func() bool {
		_, err := os.Stat(stateFile)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOverlappingRefreshIsSkipped(t *testing.T) {
	svc := newFakeService()
	svc.block = make(chan struct{})
	s, err := scheduler.New(svc, quietLogger(), scheduler.Options{RefreshInterval: time.Hour})
	require.NoError(t, err)

	go s.RunNow()
	require.Eventually(t, func() bool { return svc.refresh.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.RunNow()
	assert.Equal(t, int32(1), svc.refresh.Load())

	close(svc.block)
	require.Eventually(t, func() bool { return svc.purges.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.RunNow()
	assert.Equal(t, int32(2), svc.refresh.Load())
}

func TestPanicIsRecovered(t *testing.T) {
	svc := newFakeService()
	svc.panicked.Store(true)
	s, err := scheduler.New(svc, quietLogger(), scheduler.Options{RefreshInterval: time.Hour})
	require.NoError(t, err)

	assert.NotPanics(t, s.RunNow)
	svc.panicked.Store(false)
	s.RunNow()
	assert.Equal(t, int32(2), svc.refresh.Load())
}

func TestMailScheduleAndInterval(t *testing.T) {
	svc := newFakeService()
	var cleaned atomic.Int32
	s, err := scheduler.New(svc, quietLogger(), scheduler.Options{
		RefreshInterval: time.Hour,
		MailSchedule:    "* * * * * *",
		Cleanup: func(context.Context) error {
			cleaned.Add(1)
			return nil
		},
	})
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return svc.scans.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	s.SetRefreshInterval(time.Second)
	require.Eventually(t, func() bool { return svc.refresh.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	s.Stop(context.Background())
	assert.Zero(t, cleaned.Load())
}

func TestInvalidOptions(t *testing.T) {
	_, err := scheduler.New(newFakeService(), quietLogger(), scheduler.Options{RefreshInterval: time.Hour, MailSchedule: "not a cron"})
	assert.Error(t, err)

	_, err = scheduler.New(newFakeService(), quietLogger(), scheduler.Options{})
	assert.Error(t, err)
}
