package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestScheduleFiresOnlyAtOrAfterDeadline(t *testing.T) {
	s := New()
	base := time.Now()
	s.Schedule("a", base.Add(10*time.Second), KindTaskTick)

	require.Empty(t, s.Poll(base))
	items := s.Poll(base.Add(10 * time.Second))
	require.Len(t, items, 1)
	require.Equal(t, "a", items[0].ID)
}

func TestCancelledEntryNeverFires(t *testing.T) {
	s := New()
	base := time.Now()
	s.Schedule("a", base.Add(time.Second), KindTaskTick)
	s.Cancel("a")

	require.Empty(t, s.Poll(base.Add(time.Hour)))
}

func TestScheduleOverwritesPriorEntryWithSameID(t *testing.T) {
	s := New()
	base := time.Now()
	s.Schedule("a", base.Add(time.Second), KindTaskTick)
	s.Schedule("a", base.Add(time.Hour), KindQueueTick)

	require.Empty(t, s.Poll(base.Add(time.Second)))
	items := s.Poll(base.Add(time.Hour))
	require.Len(t, items, 1)
	require.Equal(t, KindQueueTick, items[0].Kind)
}

func TestPollReturnsFireTimeOrder(t *testing.T) {
	s := New()
	base := time.Now()
	s.Schedule("late", base.Add(2*time.Second), KindTaskTick)
	s.Schedule("early", base.Add(1*time.Second), KindTaskTick)

	items := s.Poll(base.Add(5 * time.Second))
	require.Len(t, items, 2)
	require.Equal(t, "early", items[0].ID)
	require.Equal(t, "late", items[1].ID)
}

func TestRepeatingEntryReArmsAfterFiring(t *testing.T) {
	s := New()
	base := time.Now()
	s.ScheduleRepeating("tick", base.Add(time.Second), time.Second, KindSessionCheck)

	items := s.Poll(base.Add(time.Second))
	require.Len(t, items, 1)

	next, ok := s.NextFireTime()
	require.True(t, ok)
	require.Equal(t, base.Add(2*time.Second), next)
}

func TestNextFireTimeEmptyWhenNoEntries(t *testing.T) {
	s := New()
	_, ok := s.NextFireTime()
	require.False(t, ok)
}
