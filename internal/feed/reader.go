package feed

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/banshee-data/birdgame/internal/monitoring"
)

// ErrStop may be returned by a Reader callback to end Run early without
// reporting an error.
var ErrStop = errors.New("stop reading")

// Reader delivers parsed records from a line oriented source.
type Reader struct {
	src io.Reader

	// Guard, when non-nil, filters out-of-order records before delivery.
	Guard *MonotonicGuard

	parsed  int
	invalid int
}

// NewReader creates a Reader over src.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

// Run reads lines until EOF, context cancellation, or fn returns an error.
// Malformed lines are logged and skipped. Returning ErrStop from fn ends
// the run with a nil error.
func (r *Reader) Run(ctx context.Context, fn func(Record) error) error {
	scan := bufio.NewScanner(r.src)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan runs in its own goroutine so cancellation is
	// observed even while a serial port read is stalled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-done:
				return
			}
		}
		if err := scan.Err(); err != nil {
			scanErrChan <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}

			rec, err := ParseRecord(line)
			if errors.Is(err, ErrEmptyLine) {
				continue
			}
			if err != nil {
				r.invalid++
				monitoring.Logf("feed: skipping malformed line %q: %v", line, err)
				continue
			}
			r.parsed++

			if r.Guard != nil && !r.Guard.Accept(rec.Time) {
				continue
			}

			if err := fn(rec); err != nil {
				if errors.Is(err, ErrStop) {
					return nil
				}
				return err
			}
		}
	}
}

// Parsed returns how many well formed records have been read.
func (r *Reader) Parsed() int { return r.parsed }

// Invalid returns how many malformed lines were skipped.
func (r *Reader) Invalid() int { return r.invalid }

// MonotonicGuard rejects times earlier than the last accepted time. The
// trackers assume non-decreasing times and do not check them.
type MonotonicGuard struct {
	last    float64
	seen    bool
	skipped int
}

// Accept reports whether t may be delivered and, if so, records it.
func (g *MonotonicGuard) Accept(t float64) bool {
	if g.seen && t < g.last {
		g.skipped++
		monitoring.Logf("Skipping out-of-order time: %v < %v", t, g.last)
		return false
	}
	g.last = t
	g.seen = true
	return true
}

// Skipped returns how many times were rejected.
func (g *MonotonicGuard) Skipped() int { return g.skipped }
