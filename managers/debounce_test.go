package managers

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Saver_Coalesces_Burst_Into_One_Write(t *testing.T) {
	req := require.New(t)
	var writes atomic.Int32
	s := newSaver(100*time.Millisecond, func() { writes.Add(1) })

	for i := 0; i < 5; i++ {
		s.Schedule()
		time.Sleep(10 * time.Millisecond)
	}

	req.Eventually(func() bool { return writes.Load() == 1 },
		time.Second, 10*time.Millisecond)

	// No second write sneaks in after the window.
	time.Sleep(150 * time.Millisecond)
	req.Equal(int32(1), writes.Load())
}

func Test_Saver_Flush_Writes_Pending_Immediately(t *testing.T) {
	req := require.New(t)
	var writes atomic.Int32
	s := newSaver(time.Hour, func() { writes.Add(1) })

	s.Schedule()
	s.Flush()
	req.Equal(int32(1), writes.Load())

	// Flush without a pending write is a no-op.
	s.Flush()
	req.Equal(int32(1), writes.Load())
}

func Test_Saver_Stop_Discards_Pending_Write(t *testing.T) {
	req := require.New(t)
	var writes atomic.Int32
	s := newSaver(50*time.Millisecond, func() { writes.Add(1) })

	s.Schedule()
	s.Stop()
	time.Sleep(100 * time.Millisecond)
	req.Equal(int32(0), writes.Load())
}
