package host

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/serverboot/internal/logging"
)

type recordingCommander struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (r *recordingCommander) Command(_ context.Context, line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.lines = append(r.lines, line)
	return nil
}

func (r *recordingCommander) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestSchedulerRunsJobs(t *testing.T) {
	target := &recordingCommander{}
	s, err := NewScheduler(target, []Job{
		{Spec: "@every 30m", Command: "save"},
		{Spec: "0 4 * * *", Command: "say Nightly restart soon"},
	}, WithSchedulerLogger(logging.Discard()), WithLocation(time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, s.Len())

	for _, e := range s.cron.Entries() {
		e.Job.Run()
	}
	assert.ElementsMatch(t, []string{"save", "say Nightly restart soon"}, target.Lines())
}

func TestSchedulerRejectsInvalidSpec(t *testing.T) {
	_, err := NewScheduler(&recordingCommander{}, []Job{{Spec: "every day", Command: "save"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid schedule "every day" for "save"`)
}

func TestSchedulerSecondsParser(t *testing.T) {
	target := &recordingCommander{}
	s, err := NewScheduler(target, []Job{{Spec: "*/1 * * * * *", Command: "time"}},
		WithCronParser(cron.NewParser(cron.Second|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)),
		WithSchedulerLogger(logging.Discard()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool { return len(target.Lines()) > 0 }, 3*time.Second, 50*time.Millisecond)
	cancel()
	s.Stop()
	assert.Equal(t, "time", target.Lines()[0])
}

func TestSchedulerToleratesStoppedCore(t *testing.T) {
	target := &recordingCommander{err: ErrNotRunning}
	s, err := NewScheduler(target, []Job{{Spec: "@hourly", Command: "save"}}, WithSchedulerLogger(logging.Discard()))
	require.NoError(t, err)

	s.cron.Entries()[0].Job.Run()
	assert.Empty(t, target.Lines())
}
