// Package playback is songbird's per-guild playback session orchestrator.
//
// Each guild owns at most one [Session] holding a linear track queue, the
// voice sink, and a generation-counted [Controller]. The [Orchestrator]
// exposes the command surface (Enqueue, Skip, Stop, ClearQueue, Teardown)
// and runs at most one playback loop per guild, which drains the queue by
// copying transcoded PCM into the sink.
//
// Queue and cancellation state are mutated only under the session's mutex.
// The long-running byte copy runs outside it, so commands never wait on
// streaming I/O.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/songbird/internal/observe"
	"github.com/MrWong99/songbird/pkg/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultStopTimeout   = 5 * time.Second
	defaultNotifyTimeout = 10 * time.Second

	// enqueueAttempts bounds how often Enqueue retries when the session it
	// was working on is torn down underneath it.
	enqueueAttempts = 3
)

// Config holds all dependencies for an [Orchestrator].
type Config struct {
	// Platform connects voice sinks. Required.
	Platform audio.Platform

	// Resolver turns queries into tracks. Required.
	Resolver Resolver

	// Transcoder turns stream URLs into PCM. Required.
	Transcoder Transcoder

	// Notifier receives playback events. Optional.
	Notifier Notifier

	// Registry is the session registry. A fresh one is created when nil.
	Registry *Registry

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// StopTimeout bounds how long Stop and Teardown wait for the playback
	// loop to exit. Default: 5s.
	StopTimeout time.Duration

	// ChunkSize is the number of PCM bytes copied per write.
	// Default: one 20 ms frame ([audio.FrameBytes]).
	ChunkSize int
}

// Orchestrator is the command-facing surface of the playback subsystem.
// All exported methods are safe for concurrent use.
type Orchestrator struct {
	platform    audio.Platform
	resolver    Resolver
	transcoder  Transcoder
	notifier    Notifier
	registry    *Registry
	metrics     *observe.Metrics
	stopTimeout time.Duration
	chunkSize   int
}

// New creates an Orchestrator with the given dependencies.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		platform:    cfg.Platform,
		resolver:    cfg.Resolver,
		transcoder:  cfg.Transcoder,
		notifier:    cfg.Notifier,
		registry:    cfg.Registry,
		metrics:     cfg.Metrics,
		stopTimeout: cfg.StopTimeout,
		chunkSize:   cfg.ChunkSize,
	}
	if o.notifier == nil {
		o.notifier = NotifierFunc(func(context.Context, Event) (StatusRef, error) { return StatusRef{}, nil })
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.stopTimeout <= 0 {
		o.stopTimeout = defaultStopTimeout
	}
	if o.chunkSize <= 0 {
		o.chunkSize = audio.FrameBytes
	}
	return o
}

// Registry returns the session registry.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Queue returns a snapshot of the guild's session.
func (o *Orchestrator) Queue(guildID string) (Snapshot, bool) {
	sess, ok := o.registry.Get(guildID)
	if !ok {
		return Snapshot{}, false
	}
	return sess.Snapshot(), true
}

// Enqueue resolves query and appends the resulting tracks to the caller's
// guild queue, joining the caller's voice room first if needed. It returns
// once the tracks are queued; streaming happens in the background.
//
// Errors: [ErrNoChannel], [ErrChannelFull], *[ConnectionError],
// *[ResolutionError].
func (o *Orchestrator) Enqueue(ctx context.Context, in Interaction, query string) (err error) {
	guildID := in.GuildID()
	ctx, span := observe.StartSpan(ctx, "playback.Enqueue",
		trace.WithAttributes(attribute.String("guild_id", guildID)),
	)
	defer func() {
		o.metrics.RecordCommand(ctx, "enqueue", resultOf(err))
		observe.EndSpan(span, err)
	}()

	room, ok := in.VoiceRoom()
	if !ok {
		return ErrNoChannel
	}
	if room.Full() && !o.connectedTo(guildID, room.ChannelID) {
		return ErrChannelFull
	}

	if aErr := in.Acknowledge(ctx); aErr != nil {
		observe.GuildLogger(ctx, guildID).Warn("playback: acknowledge enqueue", "err", aErr)
	}

	start := time.Now()
	tracks, err := o.resolver.Resolve(ctx, query, Requester{ID: in.UserID(), Name: in.UserName()})
	if err == nil && len(tracks) == 0 {
		err = ErrNotFound
	}
	if err != nil {
		o.metrics.RecordResolve(ctx, "chain", "error", time.Since(start))
		return &ResolutionError{Query: query, Err: err}
	}
	o.metrics.RecordResolve(ctx, "chain", "ok", time.Since(start))
	span.SetAttributes(attribute.Int("tracks", len(tracks)))

	for range enqueueAttempts {
		sess := o.registry.GetOrCreate(guildID)
		err := o.connect(ctx, sess, room)
		if errors.Is(err, errSessionClosed) {
			continue
		}
		if err != nil {
			return err
		}
		if o.appendTracks(ctx, sess, in, tracks) {
			return nil
		}
	}

	observe.GuildLogger(ctx, guildID).Error("playback: session kept closing during enqueue")
	return ErrInternal
}

// connectedTo reports whether the bot already has a live sink in channelID.
func (o *Orchestrator) connectedTo(guildID, channelID string) bool {
	sess, ok := o.registry.Get(guildID)
	if !ok {
		return false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.conn != nil && sess.room.ChannelID == channelID
}

// connect makes sure sess has a live sink. On failure the session is closed
// and removed so no half-initialised session stays behind.
func (o *Orchestrator) connect(ctx context.Context, sess *Session, room audio.Room) error {
	sess.connectMu.Lock()
	defer sess.connectMu.Unlock()

	sess.mu.Lock()
	if sess.closed {
		sess.mu.Unlock()
		return errSessionClosed
	}
	if sess.state != StateDisconnected {
		sess.mu.Unlock()
		return nil
	}
	sess.state = StateConnecting
	sess.mu.Unlock()

	conn, err := o.platform.Connect(ctx, room)

	sess.mu.Lock()
	if err != nil {
		sess.state = StateDisconnected
		sess.closed = true
		sess.mu.Unlock()
		o.registry.RemoveIf(sess.guildID, sess)
		observe.Logger(ctx).Warn("playback: voice connect failed", "guild_id", sess.guildID, "channel_id", room.ChannelID, "err", err)
		return &ConnectionError{Err: err}
	}
	if sess.closed {
		sess.mu.Unlock()
		_ = conn.Disconnect()
		return errSessionClosed
	}
	sess.conn = conn
	sess.room = room
	sess.streamID = conn.StreamID()
	sess.state = StateIdle
	sess.firstTrack = true
	sess.status = StatusRef{}
	if sess.ctrl.Canceled() {
		sess.ctrl.Renew()
	}
	streamID := sess.streamID
	// Index before the callback can fire; Teardown blocks on sess.mu until
	// the session is fully wired.
	o.registry.IndexStream(streamID, sess.guildID)
	conn.OnDestroyed(func(id string) {
		o.Teardown(context.Background(), id)
	})
	sess.mu.Unlock()

	o.metrics.ActiveSessions.Add(ctx, 1)
	observe.Logger(ctx).Info("playback: voice connected", "guild_id", sess.guildID, "channel_id", room.ChannelID, "stream_id", streamID)
	return nil
}

// appendTracks appends tracks in one critical section and spawns the loop if
// none is running. It returns false if the session lost its sink meanwhile.
func (o *Orchestrator) appendTracks(ctx context.Context, sess *Session, in Interaction, tracks []Track) bool {
	sess.mu.Lock()
	if sess.closed || sess.conn == nil {
		sess.mu.Unlock()
		return false
	}

	wasEmpty := len(sess.queue) == 0
	for _, t := range tracks {
		sess.nextID++
		sess.queue = append(sess.queue, entry{id: sess.nextID, track: t})
	}
	sess.textChannelID = in.TextChannelID()
	if wasEmpty {
		sess.origin = in
	}

	var done chan struct{}
	if !sess.looping {
		done = make(chan struct{})
		sess.looping = true
		sess.loopDone = done
		sess.state = StatePlaying
	}
	queueLen := len(sess.queue) - 1
	textChannel := sess.textChannelID
	voiceChannel := sess.room.ChannelID
	sess.mu.Unlock()

	if done != nil {
		go o.runLoop(sess, done)
	}

	// The first track of an empty queue is announced by now-playing instead,
	// and that now-playing answers the request. Otherwise only the first
	// track-queued answers it; the rest go to the text channel.
	announce := tracks
	reply := in
	if wasEmpty {
		announce = tracks[1:]
		reply = nil
	}
	for i := range announce {
		ev := Event{
			Type:           EventTrackQueued,
			GuildID:        sess.guildID,
			TextChannelID:  textChannel,
			VoiceChannelID: voiceChannel,
			Track:          &announce[i],
			QueueLength:    queueLen,
		}
		if i == 0 {
			ev.Interaction = reply
		}
		o.notify(ctx, ev)
	}
	return true
}

// Skip cancels the track at the head of the queue. It does not wait for the
// loop to move on. Skipping twice before the loop reacts advances only once.
//
// Errors: [ErrNotPlaying], [ErrWrongChannel].
func (o *Orchestrator) Skip(ctx context.Context, in Interaction) (err error) {
	defer func() { o.metrics.RecordCommand(ctx, "skip", resultOf(err)) }()

	sess, ok := o.registry.Get(in.GuildID())
	if !ok {
		return ErrNotPlaying
	}
	room, inVoice := in.VoiceRoom()

	sess.mu.Lock()
	if sess.conn == nil || len(sess.queue) == 0 {
		sess.mu.Unlock()
		return ErrNotPlaying
	}
	if !sess.inRoom(room, inVoice) {
		sess.mu.Unlock()
		return ErrWrongChannel
	}
	tok := sess.ctrl.CurrentToken()
	if tok.Canceled() {
		sess.mu.Unlock()
		return nil
	}
	tok.Cancel()
	head := sess.queue[0].track
	prev := sess.status
	textChannel := sess.textChannelID
	voiceChannel := sess.room.ChannelID
	sess.mu.Unlock()

	o.notify(ctx, Event{
		Type:           EventTrackSkipped,
		GuildID:        sess.guildID,
		TextChannelID:  textChannel,
		VoiceChannelID: voiceChannel,
		Interaction:    in,
		Track:          &head,
		Previous:       prev,
	})
	return nil
}

// Stop disconnects the sink, empties the queue and cancels playback. It
// returns after the playback loop has let go of the sink, or after the stop
// timeout. The session itself stays registered until the sink reports
// destruction.
//
// Errors: [ErrWrongChannel].
func (o *Orchestrator) Stop(ctx context.Context, in Interaction) (err error) {
	defer func() { o.metrics.RecordCommand(ctx, "stop", resultOf(err)) }()

	sess, ok := o.registry.Get(in.GuildID())
	if !ok {
		return ErrWrongChannel
	}
	room, inVoice := in.VoiceRoom()

	sess.mu.Lock()
	if !sess.inRoom(room, inVoice) {
		sess.mu.Unlock()
		return ErrWrongChannel
	}
	conn, done, prev := sess.release()
	textChannel := sess.textChannelID
	voiceChannel := sess.room.ChannelID
	sess.mu.Unlock()

	// Waiting for the loop can take up to StopTimeout.
	if aErr := in.Acknowledge(ctx); aErr != nil {
		observe.GuildLogger(ctx, sess.guildID).Warn("playback: acknowledge stop", "err", aErr)
	}
	o.disconnect(ctx, sess.guildID, conn)
	o.waitLoop(ctx, sess.guildID, done)

	o.notify(ctx, Event{
		Type:           EventStopped,
		GuildID:        sess.guildID,
		TextChannelID:  textChannel,
		VoiceChannelID: voiceChannel,
		Interaction:    in,
		Previous:       prev,
	})
	return nil
}

// ClearQueue drops every queued track except the one playing. Clearing a
// queue with zero or one entries succeeds without changing anything.
//
// Errors: [ErrWrongChannel].
func (o *Orchestrator) ClearQueue(ctx context.Context, in Interaction) (err error) {
	defer func() { o.metrics.RecordCommand(ctx, "clear", resultOf(err)) }()

	sess, ok := o.registry.Get(in.GuildID())
	if !ok {
		return ErrWrongChannel
	}
	room, inVoice := in.VoiceRoom()

	sess.mu.Lock()
	if !sess.inRoom(room, inVoice) {
		sess.mu.Unlock()
		return ErrWrongChannel
	}
	removed := 0
	if len(sess.queue) > 1 {
		removed = len(sess.queue) - 1
		sess.queue = sess.queue[:1:1]
	}
	textChannel := sess.textChannelID
	voiceChannel := sess.room.ChannelID
	sess.mu.Unlock()

	o.notify(ctx, Event{
		Type:           EventQueueCleared,
		GuildID:        sess.guildID,
		TextChannelID:  textChannel,
		VoiceChannelID: voiceChannel,
		Interaction:    in,
		Removed:        removed,
	})
	return nil
}

// Teardown handles a destroyed sink. It removes the owning session and
// releases its resources regardless of loop state. Notifications for stale
// streams (the session has since reconnected) only drop the index entry.
func (o *Orchestrator) Teardown(ctx context.Context, streamID string) {
	guildID, ok := o.registry.ResolveStream(streamID)
	if !ok {
		slog.Debug("playback: teardown for unknown stream", "stream_id", streamID)
		return
	}
	o.registry.UnindexStream(streamID)

	sess, ok := o.registry.Get(guildID)
	if !ok {
		return
	}
	o.closeSession(ctx, sess, streamID, true)
}

// Shutdown tears down every session in parallel. It is meant for process
// exit; no events are emitted.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, sess := range o.registry.Sessions() {
		g.Go(func() error {
			o.closeSession(gctx, sess, "", false)
			return nil
		})
	}
	return g.Wait()
}

// closeSession closes sess if its current stream is streamID (any stream
// when streamID is empty), waits for its loop, and removes it from the
// registry.
func (o *Orchestrator) closeSession(ctx context.Context, sess *Session, streamID string, announce bool) {
	sess.mu.Lock()
	if sess.closed || (streamID != "" && sess.streamID != streamID) {
		sess.mu.Unlock()
		return
	}
	sess.closed = true
	conn, done, prev := sess.release()
	textChannel := sess.textChannelID
	voiceChannel := sess.room.ChannelID
	sess.mu.Unlock()

	o.disconnect(ctx, sess.guildID, conn)
	o.waitLoop(ctx, sess.guildID, done)

	if !o.registry.RemoveIf(sess.guildID, sess) {
		slog.Debug("playback: session already replaced", "guild_id", sess.guildID)
	}
	slog.Info("playback: session torn down", "guild_id", sess.guildID, "stream_id", streamID)

	// Only announce when the sink was still live, i.e. not after a Stop.
	if announce && conn != nil {
		o.notify(ctx, Event{
			Type:           EventStopped,
			GuildID:        sess.guildID,
			TextChannelID:  textChannel,
			VoiceChannelID: voiceChannel,
			Previous:       prev,
		})
	}
}

// disconnect closes a sink taken out of a session by release.
func (o *Orchestrator) disconnect(ctx context.Context, guildID string, conn audio.Connection) {
	if conn == nil {
		return
	}
	if err := conn.Disconnect(); err != nil {
		slog.Warn("playback: disconnect voice", "guild_id", guildID, "err", err)
	}
	o.metrics.ActiveSessions.Add(ctx, -1)
}

// waitLoop waits for a playback loop to exit, bounded by ctx and the stop
// timeout.
func (o *Orchestrator) waitLoop(ctx context.Context, guildID string, done <-chan struct{}) {
	if done == nil {
		return
	}
	timer := time.NewTimer(o.stopTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-ctx.Done():
	case <-timer.C:
		slog.Warn("playback: loop did not exit in time", "guild_id", guildID, "timeout", o.stopTimeout)
	}
}

// notify delivers ev to the notifier and returns its status ref. Delivery
// failures are logged; they never affect playback.
func (o *Orchestrator) notify(ctx context.Context, ev Event) StatusRef {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultNotifyTimeout)
	defer cancel()
	ref, err := o.notifier.Notify(ctx, ev)
	if err != nil {
		slog.Warn("playback: notify", "guild_id", ev.GuildID, "event", ev.Type, "err", err)
	}
	return ref
}
