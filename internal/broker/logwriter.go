package broker

import "sync/atomic"

const maxLogLinesPerTick = 32

// LogForwarder is an io.Writer that queues log lines for publication on the
// broker. Writes never block; lines are dropped while the queue is full.
type LogForwarder struct {
	lines   chan []byte
	dropped atomic.Uint64
}

// NewLogForwarder creates a forwarder holding up to capacity lines.
func NewLogForwarder(capacity int) *LogForwarder {
	if capacity <= 0 {
		capacity = 256
	}
	return &LogForwarder{lines: make(chan []byte, capacity)}
}

// Write queues a copy of p.
func (f *LogForwarder) Write(p []byte) (int, error) {
	line := make([]byte, len(p))
	copy(line, p)
	select {
	case f.lines <- line:
	default:
		f.dropped.Add(1)
	}
	return len(p), nil
}

// Drain returns up to max queued lines.
func (f *LogForwarder) Drain(max int) [][]byte {
	var out [][]byte
	for len(out) < max {
		select {
		case line := <-f.lines:
			out = append(out, line)
		default:
			return out
		}
	}
	return out
}

// Dropped counts lines discarded because the queue was full.
func (f *LogForwarder) Dropped() uint64 {
	return f.dropped.Load()
}
