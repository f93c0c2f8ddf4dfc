package mot

import (
	"context"

	"github.com/pkg/errors"
)

// FrameInput is a batch of detections of a single frame handed over by detection producer
type FrameInput struct {
	// Frame sequence number. Must strictly increase
	Seq        int64
	Detections []Box
	// Opaque payload passed back with the result (e.g. raw message the detections were parsed from)
	Meta interface{}
}

// FrameOutput pairs frame input with tracking result
type FrameOutput struct {
	Input  FrameInput
	Result FrameResult
}

// Run consumes frames from in and calls handle for every processed frame.
// Producer should send over an unbuffered channel: then it can't hand over the next frame until Step for the previous one has returned.
// Frames which are not newer than the last processed one are dropped since they would corrupt velocity estimates.
// Run returns nil when in is closed, ctx.Err() on cancellation or the first error returned by handle.
func Run(ctx context.Context, tm *TrackManager, in <-chan FrameInput, handle func(FrameOutput) error) error {
	started := false
	lastSeq := int64(0)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-in:
			if !ok {
				return nil
			}
			if started && frame.Seq <= lastSeq {
				tm.stats.OutOfOrderFrames++
				Logf("mot: session %s: dropping out of order frame %d (last processed %d)", tm.session, frame.Seq, lastSeq)
				continue
			}
			started = true
			lastSeq = frame.Seq
			result := tm.Step(frame.Detections)
			if err := handle(FrameOutput{Input: frame, Result: result}); err != nil {
				return errors.Wrapf(err, "can't handle frame %d", frame.Seq)
			}
		}
	}
}
