package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"

	"github.com/jonboulle/clockwork"

	"github.com/fares7elsadek/syncspace-watch/internal/domain"
	"github.com/fares7elsadek/syncspace-watch/internal/engine"
	"github.com/fares7elsadek/syncspace-watch/internal/identity"
	"github.com/fares7elsadek/syncspace-watch/internal/notify"
	"github.com/fares7elsadek/syncspace-watch/internal/transport"
	"github.com/fares7elsadek/syncspace-watch/pkg/videoid"
)

var (
	ErrNotHost  = errors.New("local participant is not the room host")
	ErrNoRoom   = errors.New("not in a room")
	ErrNoVideo  = errors.New("no active video")
	ErrNotReady = errors.New("playback engine is not ready")
)

// mode is the feedback-loop suppression state machine. Engine callbacks are
// dispatched through a single switch on it: while a remote-originated change
// is being applied to the engine, the resulting state-change callbacks must
// not be re-broadcast as user actions.
type mode int

const (
	modeIdle mode = iota
	modeAwaitingReady
	modeSyncing
)

type transportMux interface {
	Subscribe(destination string, h transport.Handler) (func(), error)
	Publish(destination string, body any) error
}

type stateAPI interface {
	FetchRoomState(ctx context.Context, roomID string) (domain.RoomState, error)
	SendControlEvent(ctx context.Context, event domain.ControlEvent) error
	ResetRoom(ctx context.Context, roomID string, by domain.User) error
}

// Controller orchestrates one room membership at a time: join with late-join
// catch-up, remote control-event application, periodic drift correction, and
// cleanup on leave or room change. All engine work is guarded by a session
// epoch so a completion belonging to an abandoned room is a no-op.
type Controller struct {
	cfg      Config
	clock    clockwork.Clock
	logger   *slog.Logger
	mux      transportMux
	api      stateAPI
	engine   engine.Engine
	identity identity.Provider
	notifier notify.Notifier
	store    *Store

	mu          gosync.Mutex
	roomID      string
	epoch       uint64
	mode        mode
	engineReady bool
	readyCh     chan struct{}
	lastCode    engine.StateCode
	localStop   bool
	seeding     bool
	pending     []func()
	unsubs      []func()
	stopTicker  context.CancelFunc
}

func NewController(
	cfg Config,
	clock clockwork.Clock,
	logger *slog.Logger,
	mux transportMux,
	api stateAPI,
	eng engine.Engine,
	provider identity.Provider,
	notifier notify.Notifier,
) *Controller {
	return &Controller{
		cfg:      cfg.withDefaults(),
		clock:    clock,
		logger:   logger,
		mux:      mux,
		api:      api,
		engine:   eng,
		identity: provider,
		notifier: notifier,
		store:    NewStore(),
		lastCode: engine.StateUnstarted,
		readyCh:  make(chan struct{}),
	}
}

// RoomID returns the current room membership, or empty when not joined.
func (c *Controller) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// State returns the last-known authoritative state and whether one is held.
func (c *Controller) State() (domain.RoomState, bool) {
	state, _, ok := c.store.Snapshot()
	return state, ok
}

// Join enters a room: subscribes its control and reset streams, seeds the
// state store from the State API and, when a video is active, runs the
// catch-up protocol before returning. Joining while in another room leaves
// it first.
func (c *Controller) Join(ctx context.Context, roomID string) error {
	c.mu.Lock()
	current := c.roomID
	c.mu.Unlock()

	if current == roomID {
		return nil
	}
	if current != "" {
		if err := c.Leave(ctx); err != nil {
			c.logger.Warn("failed to leave previous room", "room_id", current, "error", err)
		}
	}

	c.mu.Lock()
	c.epoch++
	epoch := c.epoch
	c.mode = modeIdle
	c.localStop = false
	// Events arriving between subscription and the initial state fetch are
	// buffered, then replayed in receipt order once the store is seeded.
	c.seeding = true
	c.pending = nil
	c.mu.Unlock()

	c.attachEngine()

	controlUnsub, err := c.mux.Subscribe(transport.ControlTopic(roomID), c.makeControlHandler(epoch))
	if err != nil {
		return fmt.Errorf("failed to subscribe to control events: %w", err)
	}
	resetUnsub, err := c.mux.Subscribe(transport.ResetTopic(roomID), c.makeResetHandler(epoch))
	if err != nil {
		controlUnsub()
		return fmt.Errorf("failed to subscribe to reset signal: %w", err)
	}

	state, err := c.api.FetchRoomState(ctx, roomID)
	if err != nil {
		controlUnsub()
		resetUnsub()
		c.mu.Lock()
		c.seeding = false
		c.pending = nil
		c.mu.Unlock()
		return fmt.Errorf("failed to fetch initial room state: %w", err)
	}
	receivedAt := c.clock.Now()
	c.store.Replace(state, receivedAt)

	tickerCtx, stopTicker := context.WithCancel(context.Background())

	c.mu.Lock()
	c.roomID = roomID
	c.unsubs = []func(){controlUnsub, resetUnsub}
	c.stopTicker = stopTicker
	c.seeding = false
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, replay := range pending {
		replay()
	}
	state, _, _ = c.store.Snapshot()

	if err := c.mux.Publish(transport.ViewingDestination(roomID), map[string]string{"status": "START"}); err != nil {
		c.logger.Debug("failed to announce viewing start", "room_id", roomID, "error", err)
	}

	if state.HasVideo() {
		c.setMode(epoch, modeAwaitingReady)
		if err := c.engine.Load(ctx, state.VideoRef); err != nil {
			c.logger.Warn("failed to load video into engine", "video_ref", state.VideoRef, "error", err)
			c.notifier.Error("could not load the room's video")
			c.setMode(epoch, modeIdle)
		} else {
			c.catchUp(ctx, epoch)
		}
	}

	go c.driftLoop(tickerCtx, epoch)

	c.logger.Info("joined room", "room_id", roomID, "video_ref", state.VideoRef, "is_playing", state.IsPlaying)
	return nil
}

// Leave exits the current room. When the local participant is host and a
// video is active, a best-effort reset request is published first; failures
// are logged, never retried, since the room is being abandoned anyway.
// Calling Leave when not in a room is a no-op.
func (c *Controller) Leave(ctx context.Context) error {
	c.mu.Lock()
	if c.roomID == "" {
		c.mu.Unlock()
		return nil
	}
	roomID := c.roomID
	unsubs := c.unsubs
	stopTicker := c.stopTicker
	localStop := c.localStop

	c.epoch++
	c.roomID = ""
	c.unsubs = nil
	c.stopTicker = nil
	c.mode = modeIdle
	c.engineReady = false
	c.readyCh = make(chan struct{})
	c.lastCode = engine.StateUnstarted
	c.localStop = false
	c.seeding = false
	c.pending = nil
	c.mu.Unlock()

	state, _, seeded := c.store.Snapshot()
	self := c.identity.CurrentUser()
	if seeded && state.HasVideo() && state.IsHost(self) && !localStop {
		if err := c.api.ResetRoom(ctx, roomID, self); err != nil {
			c.logger.Warn("failed to send room reset on leave", "room_id", roomID, "error", err)
		}
	}

	if err := c.mux.Publish(transport.ViewingDestination(roomID), map[string]string{"status": "END"}); err != nil {
		c.logger.Debug("failed to announce viewing end", "room_id", roomID, "error", err)
	}

	if stopTicker != nil {
		stopTicker()
	}
	for _, unsub := range unsubs {
		unsub()
	}
	c.detachEngine()
	c.store.Clear()

	c.logger.Info("left room", "room_id", roomID)
	return nil
}

// LoadVideo resolves a video reference from user input and emits a
// CHANGE_VIDEO event. Any participant may load a video; doing so makes them
// the host.
func (c *Controller) LoadVideo(ctx context.Context, rawURL string) error {
	c.mu.Lock()
	roomID := c.roomID
	epoch := c.epoch
	c.mu.Unlock()
	if roomID == "" {
		return ErrNoRoom
	}

	ref, err := videoid.Extract(rawURL)
	if err != nil {
		c.notifier.Error("that does not look like a playable video link")
		return fmt.Errorf("failed to resolve video reference: %w", err)
	}

	self := c.identity.CurrentUser()
	zero := 0.0
	event := domain.ControlEvent{
		RoomID:    roomID,
		Action:    domain.ActionChangeVideo,
		Timestamp: &zero,
		VideoRef:  ref,
		Actor:     self,
	}
	if err := c.api.SendControlEvent(ctx, event); err != nil {
		c.notifier.Error("failed to start the video for the room")
		return err
	}

	// The fan-out skips the sender, so apply locally too.
	c.applyLocal(event)
	c.setMode(epoch, modeAwaitingReady)
	if err := c.engine.Load(ctx, ref); err != nil {
		c.logger.Warn("failed to load video into engine", "video_ref", ref, "error", err)
		c.setMode(epoch, modeIdle)
		return nil
	}
	c.catchUp(ctx, epoch)

	return nil
}

// Seek jumps the room's playback position. Host only.
func (c *Controller) Seek(ctx context.Context, seconds float64) error {
	c.mu.Lock()
	roomID := c.roomID
	epoch := c.epoch
	c.mu.Unlock()
	if roomID == "" {
		return ErrNoRoom
	}

	state, _, seeded := c.store.Snapshot()
	if !seeded || !state.HasVideo() {
		return ErrNoVideo
	}
	self := c.identity.CurrentUser()
	if !state.IsHost(self) {
		return ErrNotHost
	}

	event := domain.ControlEvent{
		RoomID:    roomID,
		Action:    domain.ActionSeek,
		Timestamp: &seconds,
		Actor:     self,
	}
	if err := c.api.SendControlEvent(ctx, event); err != nil {
		return err
	}

	c.applyLocal(event)
	c.setMode(epoch, modeSyncing)
	if err := c.engine.SeekTo(ctx, seconds, true); err != nil {
		c.logger.Warn("failed to seek engine", "seconds", seconds, "error", err)
	}
	c.releaseSyncing(epoch)

	return nil
}

// StopVideo resets the room's playback for everyone. The local-stop flag
// suppresses handling of the reset echo this client is about to receive.
func (c *Controller) StopVideo(ctx context.Context) error {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	if roomID == "" {
		return ErrNoRoom
	}

	state, _, seeded := c.store.Snapshot()
	if !seeded || !state.HasVideo() {
		return ErrNoVideo
	}

	c.mu.Lock()
	c.localStop = true
	c.mu.Unlock()

	self := c.identity.CurrentUser()
	if err := c.api.ResetRoom(ctx, roomID, self); err != nil {
		c.mu.Lock()
		c.localStop = false
		c.mu.Unlock()
		return err
	}

	c.clearVideoLocally(roomID)
	return nil
}

func (c *Controller) applyLocal(event domain.ControlEvent) {
	now := c.clock.Now()
	state, _, seeded := c.store.Snapshot()
	if !seeded {
		state = domain.RoomState{RoomID: event.RoomID, PlaybackRate: 1.0}
	}
	c.store.Replace(Apply(state, event, now), now)
}

func (c *Controller) clearVideoLocally(roomID string) {
	now := c.clock.Now()
	state, _, seeded := c.store.Snapshot()
	if !seeded {
		state = domain.RoomState{RoomID: roomID, PlaybackRate: 1.0}
	}
	state.VideoRef = ""
	state.BaseTimestamp = 0
	state.IsPlaying = false
	state.LastUpdatedAt = now.UnixMilli()
	c.store.Replace(state, now)

	if err := c.engine.Pause(context.Background()); err != nil {
		c.logger.Debug("failed to pause engine on video stop", "error", err)
	}
}

// deferUntilSeeded queues a payload for replay when the initial state fetch
// has not landed yet, so early messages are not applied to a zero state and
// then clobbered by the seed. Reports whether the payload was queued.
func (c *Controller) deferUntilSeeded(epoch uint64, payload []byte, h func(uint64, []byte)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || !c.seeding {
		return false
	}

	buf := append([]byte(nil), payload...)
	c.pending = append(c.pending, func() { h(epoch, buf) })
	return true
}

// makeControlHandler binds the remote control-event stream to this session
// epoch. Events are applied in receipt order; a handler firing after the
// session moved on is discarded by the epoch check.
func (c *Controller) makeControlHandler(epoch uint64) transport.Handler {
	return func(payload []byte) {
		if !c.deferUntilSeeded(epoch, payload, c.handleControlPayload) {
			c.handleControlPayload(epoch, payload)
		}
	}
}

func (c *Controller) handleControlPayload(epoch uint64, payload []byte) {
	if c.stale(epoch) {
		return
	}

	var event domain.ControlEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		c.logger.Warn("failed to decode control event", "error", err)
		return
	}
	if event.Actor.ID == c.identity.CurrentUser().ID {
		return
	}

	c.applyLocal(event)

	ctx := context.Background()
	switch event.Action {
	case domain.ActionChangeVideo:
		c.setMode(epoch, modeAwaitingReady)
		if err := c.engine.Load(ctx, event.VideoRef); err != nil {
			c.logger.Warn("failed to load video into engine", "video_ref", event.VideoRef, "error", err)
			c.setMode(epoch, modeIdle)
			return
		}
		go c.catchUp(ctx, epoch)
	default:
		c.synchronize(ctx, epoch)
	}
}

func (c *Controller) makeResetHandler(epoch uint64) transport.Handler {
	return func(payload []byte) {
		if !c.deferUntilSeeded(epoch, payload, c.handleResetPayload) {
			c.handleResetPayload(epoch, payload)
		}
	}
}

func (c *Controller) handleResetPayload(epoch uint64, payload []byte) {
	if c.stale(epoch) {
		return
	}

	c.mu.Lock()
	localStop := c.localStop
	c.localStop = false
	roomID := c.roomID
	c.mu.Unlock()
	if localStop {
		return
	}

	var signal domain.ResetSignal
	if err := json.Unmarshal(payload, &signal); err != nil {
		c.logger.Warn("failed to decode reset signal", "error", err)
	}

	c.clearVideoLocally(roomID)
	c.notifier.Info("the video was stopped")
}

// catchUp aligns the local player with the projected authoritative position
// after a video loads. Engines acknowledge ready before seeks are guaranteed
// to apply precisely, so one bounded re-seek absorbs the slack. Engine
// faults are logged and swallowed; a transient player fault never blocks the
// session.
func (c *Controller) catchUp(ctx context.Context, epoch uint64) {
	if err := c.waitReady(ctx); err != nil {
		c.logger.Warn("engine did not become ready in time", "error", err)
		c.setMode(epoch, modeIdle)
		return
	}
	if !c.setMode(epoch, modeSyncing) {
		return
	}
	defer c.releaseSyncing(epoch)

	state, receivedAt, seeded := c.store.Snapshot()
	if !seeded || !state.HasVideo() {
		return
	}

	target := Project(state, receivedAt, c.clock.Now())
	if err := c.engine.SeekTo(ctx, target, true); err != nil {
		c.logger.Warn("catch-up seek failed", "target", target, "error", err)
		return
	}
	c.clock.Sleep(c.cfg.SettleDelay)

	for attempt := 0; attempt < c.cfg.SeekRetries; attempt++ {
		if c.stale(epoch) {
			return
		}
		current, err := c.engine.CurrentTime(ctx)
		if err != nil {
			c.logger.Warn("failed to read engine time during catch-up", "error", err)
			break
		}
		target = Project(state, receivedAt, c.clock.Now())
		if Drift(current, target) <= c.cfg.CatchUpSeekEpsilon {
			break
		}
		if err := c.engine.SeekTo(ctx, target, true); err != nil {
			c.logger.Warn("catch-up re-seek failed", "target", target, "error", err)
			break
		}
		c.clock.Sleep(c.cfg.SettleDelay)
	}

	if state.IsPlaying {
		if c.stale(epoch) {
			return
		}
		if err := c.engine.Play(ctx); err != nil {
			c.logger.Warn("failed to start playback during catch-up", "error", err)
			return
		}
		c.clock.Sleep(c.cfg.SettleDelay)

		current, err := c.engine.CurrentTime(ctx)
		if err != nil {
			return
		}
		target = Project(state, receivedAt, c.clock.Now())
		if Drift(current, target) > c.cfg.PostPlayThreshold && !c.stale(epoch) {
			if err := c.engine.SeekTo(ctx, target, true); err != nil {
				c.logger.Warn("post-play correction seek failed", "target", target, "error", err)
			}
		}
	}
}

// synchronize reconciles the engine with the projected state: one corrective
// seek when drift exceeds the threshold, then play/pause and rate alignment.
// Skipped entirely while the engine reports buffering.
func (c *Controller) synchronize(ctx context.Context, epoch uint64) {
	c.mu.Lock()
	buffering := c.lastCode == engine.StateBuffering
	playing := c.lastCode == engine.StatePlaying
	ready := c.engineReady
	c.mu.Unlock()
	if buffering || !ready {
		return
	}

	if !c.setMode(epoch, modeSyncing) {
		return
	}
	defer c.releaseSyncing(epoch)

	state, receivedAt, seeded := c.store.Snapshot()
	if !seeded || !state.HasVideo() {
		return
	}

	target := Project(state, receivedAt, c.clock.Now())
	current, err := c.engine.CurrentTime(ctx)
	if err != nil {
		c.logger.Warn("failed to read engine time", "error", err)
		return
	}

	if Drift(current, target) > c.cfg.DriftThreshold {
		if err := c.engine.SeekTo(ctx, target, true); err != nil {
			c.logger.Warn("corrective seek failed", "target", target, "error", err)
			return
		}
		c.clock.Sleep(c.cfg.SettleDelay)
	}

	if c.stale(epoch) {
		return
	}
	if state.IsPlaying != playing {
		if state.IsPlaying {
			if err := c.engine.Play(ctx); err != nil {
				c.logger.Warn("failed to resume playback", "error", err)
			}
		} else {
			if err := c.engine.Pause(ctx); err != nil {
				c.logger.Warn("failed to pause playback", "error", err)
			}
		}
	}

	rate, err := c.engine.PlaybackRate(ctx)
	if err == nil && Drift(rate, state.PlaybackRate) > 0.01 {
		if err := c.engine.SetPlaybackRate(ctx, state.PlaybackRate); err != nil {
			c.logger.Warn("failed to align playback rate", "rate", state.PlaybackRate, "error", err)
		}
	}
}

// driftLoop is the periodic drift check. Hosts are authoritative and never
// corrected against themselves.
func (c *Controller) driftLoop(ctx context.Context, epoch uint64) {
	ticker := c.clock.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}
		if c.stale(epoch) {
			return
		}

		state, receivedAt, seeded := c.store.Snapshot()
		if !seeded || !state.HasVideo() {
			continue
		}
		if state.IsHost(c.identity.CurrentUser()) {
			continue
		}

		c.mu.Lock()
		ready := c.engineReady
		c.mu.Unlock()
		if !ready {
			continue
		}

		current, err := c.engine.CurrentTime(ctx)
		if err != nil {
			c.logger.Debug("failed to read engine time in drift check", "error", err)
			continue
		}
		target := Project(state, receivedAt, c.clock.Now())
		if drift := Drift(current, target); drift > c.cfg.DriftThreshold {
			c.logger.Debug("drift over threshold", "drift", drift, "target", target)
			c.synchronize(ctx, epoch)
		}
	}
}

func (c *Controller) attachEngine() {
	c.engine.OnReady(func() {
		c.mu.Lock()
		if !c.engineReady {
			c.engineReady = true
			close(c.readyCh)
		}
		c.mu.Unlock()
	})
	c.engine.OnStateChange(c.onEngineStateChange)
	c.engine.OnError(c.onEngineError)
}

func (c *Controller) detachEngine() {
	c.engine.OnReady(nil)
	c.engine.OnStateChange(nil)
	c.engine.OnError(nil)
}

// onEngineStateChange is the single dispatch point for engine transitions.
// Anything arriving while the mode is not idle was caused by the session's
// own corrective actions and must not be re-broadcast.
func (c *Controller) onEngineStateChange(code engine.StateCode) {
	c.mu.Lock()
	c.lastCode = code
	currentMode := c.mode
	roomID := c.roomID
	c.mu.Unlock()

	if roomID == "" {
		return
	}

	switch currentMode {
	case modeSyncing, modeAwaitingReady:
		return
	case modeIdle:
	}

	switch code {
	case engine.StatePlaying, engine.StatePaused:
		c.emitPlayPause(code == engine.StatePlaying, roomID)
	case engine.StateEnded:
		c.notifier.Info("the video ended")
	}
}

// emitPlayPause turns a user-initiated engine transition into a control
// event, gated by host authority. Non-hosts are silently realigned by the
// next drift check instead.
func (c *Controller) emitPlayPause(playing bool, roomID string) {
	state, _, seeded := c.store.Snapshot()
	if !seeded || !state.HasVideo() {
		return
	}
	self := c.identity.CurrentUser()
	if !state.IsHost(self) {
		return
	}
	if state.IsPlaying == playing {
		return
	}

	ctx := context.Background()
	position, err := c.engine.CurrentTime(ctx)
	if err != nil {
		c.logger.Warn("failed to read engine time for control event", "error", err)
		return
	}

	action := domain.ActionPause
	if playing {
		action = domain.ActionPlay
	}
	event := domain.ControlEvent{
		RoomID:    roomID,
		Action:    action,
		Timestamp: &position,
		Actor:     self,
	}
	if err := c.api.SendControlEvent(ctx, event); err != nil {
		c.logger.Warn("failed to emit control event", "action", action, "error", err)
		c.notifier.Error("failed to sync your playback change to the room")
		return
	}

	c.applyLocal(event)
}

// onEngineError reports the fault and, when the local participant is host,
// auto-stops the shared video after a grace period so the room is not left
// stuck on an unplayable video.
func (c *Controller) onEngineError(code int) {
	c.notifier.Error(fmt.Sprintf("the player reported an error (code %d)", code))
	c.logger.Warn("engine error", "code", code)

	state, _, seeded := c.store.Snapshot()
	if !seeded || !state.HasVideo() || !state.IsHost(c.identity.CurrentUser()) {
		return
	}

	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	c.clock.AfterFunc(c.cfg.AutoStopDelay, func() {
		if c.stale(epoch) {
			return
		}
		if err := c.StopVideo(context.Background()); err != nil {
			c.logger.Warn("failed to auto-stop after engine error", "error", err)
		}
	})
}

func (c *Controller) waitReady(ctx context.Context) error {
	c.mu.Lock()
	if c.engineReady {
		c.mu.Unlock()
		return nil
	}
	ready := c.readyCh
	c.mu.Unlock()

	timeout := c.clock.NewTimer(c.cfg.ReadyTimeout)
	defer timeout.Stop()

	select {
	case <-ready:
		return nil
	case <-timeout.Chan():
		return ErrNotReady
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) stale(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch != epoch
}

// setMode transitions the suppression machine, refusing stale epochs.
func (c *Controller) setMode(epoch uint64, m mode) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.mode = m
	return true
}

// releaseSyncing keeps the syncing mode held for the trailing hold so engine
// callbacks triggered by the corrective action are still swallowed, then
// returns to idle.
func (c *Controller) releaseSyncing(epoch uint64) {
	c.clock.AfterFunc(c.cfg.TrailingHold, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.epoch != epoch || c.mode != modeSyncing {
			return
		}
		c.mode = modeIdle
	})
}
