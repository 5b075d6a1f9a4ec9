package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/MrWong99/songbird/pkg/audio"
)

// outcome is how one track's playback ended.
type outcome int

const (
	outcomeCompleted   outcome = iota // stream exhausted
	outcomeSkipped                    // cancellation observed
	outcomeInterrupted                // sink stopped accepting writes
	outcomeFailed                     // transcoder error
)

func (o outcome) String() string {
	switch o {
	case outcomeCompleted:
		return "completed"
	case outcomeSkipped:
		return "skipped"
	case outcomeInterrupted:
		return "interrupted"
	default:
		return "failed"
	}
}

// runLoop drains sess's queue. Exactly one runLoop runs per session at a
// time: it is spawned by appendTracks under sess.mu and clears
// sess.looping under sess.mu in the same critical section that observes the
// queue empty.
func (o *Orchestrator) runLoop(sess *Session, done chan struct{}) {
	defer close(done)
	log := slog.With("guild_id", sess.guildID)
	log.Debug("playback: loop started")

	for {
		sess.mu.Lock()
		if sess.closed || sess.conn == nil {
			// Stopped or torn down; release() already reset the state.
			sess.looping = false
			sess.mu.Unlock()
			log.Debug("playback: loop exits, session stopped")
			return
		}
		if len(sess.queue) == 0 {
			sess.looping = false
			sess.state = StateIdle
			sess.firstTrack = true
			sess.origin = nil
			sess.mu.Unlock()
			log.Debug("playback: loop exits, queue drained")
			return
		}
		head := sess.queue[0]
		tok := sess.ctrl.CurrentToken()
		conn := sess.conn
		var next *Track
		if len(sess.queue) > 1 {
			n := sess.queue[1].track
			next = &n
		}
		queueLen := len(sess.queue) - 1
		sess.mu.Unlock()

		res, played := o.playTrack(sess, conn, head.track, next, queueLen, tok)
		o.metrics.RecordTrack(context.Background(), res.String(), played)
		log.Debug("playback: track finished", "title", head.track.Title, "outcome", res, "played", played)

		sess.mu.Lock()
		// Stop or ClearQueue may have rewritten the queue; pop only the
		// entry that was played.
		if len(sess.queue) > 0 && sess.queue[0].id == head.id {
			sess.queue = sess.queue[1:]
		}
		// Renew only if nobody else has already moved the generation on.
		if tok.Canceled() && sess.ctrl.Generation() == tok.Generation() {
			sess.ctrl.Renew()
		}
		sess.mu.Unlock()
	}
}

// playTrack streams one track into conn and reports how it ended.
func (o *Orchestrator) playTrack(sess *Session, conn audio.Connection, track Track, next *Track, queueLen int, tok Token) (outcome, time.Duration) {
	// A skip that landed before the track started skips it unplayed.
	if tok.Canceled() {
		return outcomeSkipped, 0
	}

	ctx := tok.Context()
	openStart := time.Now()
	stream, err := o.transcoder.Open(ctx, track.StreamURL)
	if err != nil {
		if tok.Canceled() {
			return outcomeSkipped, 0
		}
		o.reportTranscodeError(sess, track, err)
		return outcomeFailed, 0
	}
	defer stream.Close()
	o.metrics.TranscodeOpenDuration.Record(ctx, time.Since(openStart).Seconds())

	// Stop may have raced the open; never announce a track that won't play.
	if tok.Canceled() {
		return outcomeSkipped, 0
	}
	o.announce(sess, track, next, queueLen)

	written, res, readErr := o.copyTrack(conn, stream, tok)
	if err := conn.Flush(); err != nil && !errors.Is(err, audio.ErrClosed) {
		slog.Warn("playback: flush sink", "guild_id", sess.guildID, "err", err)
	}
	if res == outcomeFailed {
		o.reportTranscodeError(sess, track, readErr)
	}
	return res, audio.DurationOf(written)
}

// announce emits now-playing and stores the returned status ref.
func (o *Orchestrator) announce(sess *Session, track Track, next *Track, queueLen int) {
	sess.mu.Lock()
	ev := Event{
		Type:           EventNowPlaying,
		GuildID:        sess.guildID,
		TextChannelID:  sess.textChannelID,
		VoiceChannelID: sess.room.ChannelID,
		Track:          &track,
		NextTrack:      next,
		QueueLength:    queueLen,
		First:          sess.firstTrack,
		Previous:       sess.status,
		// Set for the first track after a connect, and for a track enqueued
		// onto a queue the loop had just drained.
		Interaction: sess.origin,
	}
	sess.firstTrack = false
	sess.origin = nil
	sess.mu.Unlock()

	ref := o.notify(context.Background(), ev)

	sess.mu.Lock()
	if !ref.IsZero() && sess.conn != nil {
		sess.status = ref
	}
	sess.mu.Unlock()
}

// copyTrack copies PCM from stream to conn chunk by chunk. The token is
// checked before every write and a write is never interrupted, so a
// cancellation never leaves a partial chunk in the sink.
func (o *Orchestrator) copyTrack(conn audio.Connection, stream io.Reader, tok Token) (int64, outcome, error) {
	buf := make([]byte, o.chunkSize)
	var written int64
	for {
		n, rErr := io.ReadFull(stream, buf)
		if n > 0 {
			if tok.Canceled() {
				return written, outcomeSkipped, nil
			}
			if _, wErr := conn.Write(buf[:n]); wErr != nil {
				// The sink is closing (Stop or teardown); the track is over.
				return written, outcomeInterrupted, nil
			}
			written += int64(n)
		}
		switch {
		case rErr == nil:
			continue
		case tok.Canceled():
			return written, outcomeSkipped, nil
		case errors.Is(rErr, io.EOF), errors.Is(rErr, io.ErrUnexpectedEOF):
			return written, outcomeCompleted, nil
		default:
			return written, outcomeFailed, rErr
		}
	}
}

// reportTranscodeError logs a transcoder failure and emits an error event.
// The loop continues with the next track.
func (o *Orchestrator) reportTranscodeError(sess *Session, track Track, err error) {
	tErr := &TranscodeError{Track: track, Err: err}
	slog.Warn("playback: transcode failed", "guild_id", sess.guildID, "title", track.Title, "err", err)
	o.metrics.TranscodeErrors.Add(context.Background(), 1)

	sess.mu.Lock()
	textChannel := sess.textChannelID
	voiceChannel := sess.room.ChannelID
	sess.mu.Unlock()

	o.notify(context.Background(), Event{
		Type:           EventError,
		GuildID:        sess.guildID,
		TextChannelID:  textChannel,
		VoiceChannelID: voiceChannel,
		Track:          &track,
		ErrKind:        KindTranscode,
		Detail:         tErr.Error(),
	})
}
