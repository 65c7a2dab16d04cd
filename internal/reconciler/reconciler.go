package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiremeet/internal/identity"
	"github.com/vovakirdan/wiremeet/internal/session"
)

// DefaultFetchTimeout bounds a credential request when Options.FetchTimeout is zero.
const DefaultFetchTimeout = 10 * time.Second

// MaxChatLength is the longest chat message, in characters.
const MaxChatLength = 2000

const chatSendTimeout = 5 * time.Second

const (
	commandBuffer      = 8
	eventBuffer        = 64
	updateBuffer       = 16
	notificationBuffer = 32
)

// Options configures a Reconciler. TokenSource and Transport are required.
type Options struct {
	TokenSource TokenSource
	Transport   Transport
	// Devices supplies local media. Nil joins without publishing.
	Devices MediaDevices
	// Cache defaults to an in-memory store.
	Cache    session.Store
	Renderer Renderer
	Logger   *zerolog.Logger
	// FetchTimeout defaults to DefaultFetchTimeout.
	FetchTimeout time.Duration
	Now          func() time.Time
}

// EnterOptions describes how to join a room.
type EnterOptions struct {
	Room string
	// Principal is the signed-in user, if any.
	Principal   *identity.Principal
	BearerToken string
	// Credential is a previously issued credential offered by the caller.
	Credential *session.Entry
}

type commandKind int

const (
	cmdEnter commandKind = iota
	cmdGuestName
	cmdLeave
	cmdRetry
	cmdSetMedia
	cmdChat
)

type command struct {
	kind   commandKind
	enter  EnterOptions
	name   string
	source TrackSource
	on     bool
	text   string
}

type fetchResult struct {
	attempt uint64
	cred    *Credential
	err     error
}

type connectResult struct {
	attempt   uint64
	entry     *session.Entry
	conn      Connection
	tracks    []MediaTrack
	mediaErrs []error
	err       error
}

type chatResult struct {
	attempt uint64
	text    string
	err     error
}

func (r connectResult) release() {
	for _, t := range r.tracks {
		_ = t.Close()
	}
	if r.conn != nil {
		r.conn.Disconnect()
	}
}

// Reconciler drives one room session at a time: it resolves an identity,
// obtains a credential, connects, and keeps a view of the room in sync with
// transport events. All state is owned by the goroutine running Run.
type Reconciler struct {
	tokens       TokenSource
	transport    Transport
	devices      MediaDevices
	cache        session.Store
	renderer     Renderer
	log          *zerolog.Logger
	fetchTimeout time.Duration
	now          func() time.Time

	commands      chan command
	events        chan Event
	results       chan any
	updates       chan View
	notifications chan Notification
	done          chan struct{}
	snapshot      atomic.Pointer[View]

	// Owned by Run.
	ctx     context.Context
	view    View
	attempt uint64
	conn    Connection
	tracks  []MediaTrack
	retry   func()
}

// New creates a reconciler. Call Run to start it.
func New(opts Options) (*Reconciler, error) {
	if opts.TokenSource == nil {
		return nil, errors.New("reconciler: token source is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("reconciler: transport is required")
	}
	if opts.Cache == nil {
		opts.Cache = session.NewMemoryStore()
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Reconciler{
		tokens:        opts.TokenSource,
		transport:     opts.Transport,
		devices:       opts.Devices,
		cache:         opts.Cache,
		renderer:      opts.Renderer,
		log:           opts.Logger,
		fetchTimeout:  opts.FetchTimeout,
		now:           opts.Now,
		commands:      make(chan command, commandBuffer),
		events:        make(chan Event, eventBuffer),
		results:       make(chan any),
		updates:       make(chan View, updateBuffer),
		notifications: make(chan Notification, notificationBuffer),
		done:          make(chan struct{}),
	}
	r.snapshot.Store(&View{})
	return r, nil
}

// Enter starts joining o.Room, leaving any current room first.
func (r *Reconciler) Enter(o EnterOptions) error {
	if strings.TrimSpace(o.Room) == "" {
		return errors.New("room is required")
	}
	return r.send(command{kind: cmdEnter, enter: o})
}

// SubmitGuestName supplies the display name requested in StateAwaitingIdentity.
// Invalid names are rejected here and never reach the loop.
func (r *Reconciler) SubmitGuestName(name string) error {
	valid, err := identity.ValidateDisplayName(name)
	if err != nil {
		return err
	}
	return r.send(command{kind: cmdGuestName, name: valid})
}

// Leave disconnects and purges the cached credential for the current room.
func (r *Reconciler) Leave() error {
	return r.send(command{kind: cmdLeave})
}

// Retry repeats the failed fetch or connect with the same identity.
func (r *Reconciler) Retry() error {
	return r.send(command{kind: cmdRetry})
}

// SetMicrophone unmutes (on) or mutes the published microphone.
func (r *Reconciler) SetMicrophone(on bool) error {
	return r.send(command{kind: cmdSetMedia, source: SourceMicrophone, on: on})
}

// SetCamera unmutes (on) or mutes the published camera.
func (r *Reconciler) SetCamera(on bool) error {
	return r.send(command{kind: cmdSetMedia, source: SourceCamera, on: on})
}

// SendChat broadcasts text to the room. The sent message is echoed back as a
// NotifyChat notification once the transport accepts it.
func (r *Reconciler) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty", ErrInvalidChat)
	}
	if utf8.RuneCountInString(text) > MaxChatLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidChat, MaxChatLength)
	}
	return r.send(command{kind: cmdChat, text: text})
}

// Snapshot returns the latest view.
func (r *Reconciler) Snapshot() View {
	return r.snapshot.Load().clone()
}

// Updates delivers views as they change. Slow readers only miss intermediate views.
func (r *Reconciler) Updates() <-chan View {
	return r.updates
}

// Notifications delivers transient messages. They are dropped when the reader lags.
func (r *Reconciler) Notifications() <-chan Notification {
	return r.notifications
}

func (r *Reconciler) send(c command) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	select {
	case r.commands <- c:
		return nil
	case <-r.done:
		return ErrStopped
	}
}

// Run processes commands, transport events and async results until ctx ends.
// On exit the connection and media are released; the cache is kept.
func (r *Reconciler) Run(ctx context.Context) error {
	r.ctx = ctx
	defer close(r.done)
	defer r.endSession(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-r.commands:
			r.handleCommand(cmd)
		case ev := <-r.events:
			r.handleEvent(ev)
		case res := <-r.results:
			switch res := res.(type) {
			case fetchResult:
				r.handleFetch(res)
			case connectResult:
				r.handleConnect(res)
			case chatResult:
				r.handleChat(res)
			}
		}
	}
}

func (r *Reconciler) handleCommand(cmd command) {
	switch cmd.kind {
	case cmdEnter:
		r.enter(cmd.enter)
	case cmdGuestName:
		r.submitGuestName(cmd.name)
	case cmdLeave:
		r.leave()
	case cmdRetry:
		r.doRetry()
	case cmdSetMedia:
		r.setMedia(cmd.source, cmd.on)
	case cmdChat:
		r.sendChat(cmd.text)
	}
}

func (r *Reconciler) enter(o EnterOptions) {
	if o.Room == r.view.Room && r.view.State == StateConnected {
		r.log.Debug().Str("room", o.Room).Msg("already connected")
		return
	}
	if r.view.Room != "" && (r.view.State.active() || r.view.State == StateFailed) {
		r.releaseRenderers(r.view.Participants)
		r.endSession(r.view.Room != o.Room)
	}

	r.attempt++
	r.retry = nil
	r.view = View{Room: o.Room, State: StateUnresolved}
	r.publish()

	if entry := r.usableCredential(o); entry != nil {
		r.log.Info().Str("room", o.Room).Str("identity", entry.Identity).Msg("reusing cached credential")
		r.startConnect(entry)
		return
	}

	if p := o.Principal; p != nil {
		r.startFetch(TokenRequest{
			Identity:        identity.FromPrincipal(*p),
			RoomName:        o.Room,
			DisplayName:     principalName(*p),
			AvatarURL:       p.PhotoURL,
			IsAuthenticated: true,
			UserID:          p.UID,
			BearerToken:     o.BearerToken,
		})
		return
	}

	r.view.State = StateAwaitingIdentity
	r.publish()
}

// usableCredential returns a passed-in or cached credential for o.Room that
// has not expired. An unusable cache entry is discarded.
func (r *Reconciler) usableCredential(o EnterOptions) *session.Entry {
	now := r.now()
	if o.Credential.UsableFor(o.Room, now) {
		return o.Credential
	}

	entry, err := r.cache.Load(r.ctx, o.Room)
	if err != nil {
		if !errors.Is(err, session.ErrNoEntry) {
			r.log.Warn().Err(err).Str("room", o.Room).Msg("failed to read session cache")
		}
		return nil
	}
	if entry.UsableFor(o.Room, now) {
		return entry
	}
	r.clearCache(o.Room)
	return nil
}

func (r *Reconciler) submitGuestName(name string) {
	if r.view.State != StateAwaitingIdentity {
		r.reject("guest name")
		return
	}
	r.startFetch(TokenRequest{
		Identity:    identity.Guest(name),
		RoomName:    r.view.Room,
		DisplayName: name,
	})
}

func (r *Reconciler) startFetch(req TokenRequest) {
	r.attempt++
	attempt := r.attempt
	r.retry = func() { r.startFetch(req) }
	r.view.State = StateRequesting
	r.view.Err = nil
	r.view.Local = LocalView{Identity: identity.Sanitize(req.Identity), Name: req.DisplayName}
	r.publish()

	ctx, timeout := r.ctx, r.fetchTimeout
	go func() {
		fetchCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cred, err := r.tokens.Fetch(fetchCtx, req)
		if err != nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrRequestTimedOut) {
			err = fmt.Errorf("%w after %s: %v", ErrRequestTimedOut, timeout, err)
		}
		r.deliver(fetchResult{attempt: attempt, cred: cred, err: err}, nil)
	}()
}

func (r *Reconciler) handleFetch(res fetchResult) {
	if res.attempt != r.attempt {
		r.log.Debug().Uint64("attempt", res.attempt).Msg("discarding stale token response")
		return
	}
	if res.err != nil {
		r.fail(res.err)
		return
	}

	cred := res.cred
	switch {
	case cred == nil || cred.Token == "" || cred.EndpointURL == "":
		r.fail(&FetchError{Status: 200, Message: "response missing token or endpointUrl"})
		return
	case cred.RoomName != "" && cred.RoomName != r.view.Room:
		r.fail(&FetchError{Status: 200, Message: fmt.Sprintf("credential issued for room %q", cred.RoomName)})
		return
	}

	entry := &session.Entry{
		RoomName:    r.view.Room,
		Token:       cred.Token,
		EndpointURL: cred.EndpointURL,
		Identity:    cred.Identity,
		DisplayName: cred.DisplayName,
		Avatar:      cred.Avatar,
		UserType:    cred.UserType,
		CreatedAt:   r.now(),
	}
	if err := r.cache.Save(r.ctx, entry); err != nil {
		r.log.Warn().Err(err).Str("room", entry.RoomName).Msg("failed to cache credential")
	}
	r.startConnect(entry)
}

// startConnect connects with entry and then acquires media. The sink is bound
// to the current attempt before Connect is called.
func (r *Reconciler) startConnect(entry *session.Entry) {
	attempt := r.attempt
	r.retry = func() {
		r.view.State = StateRequesting
		r.view.Err = nil
		r.startConnect(entry)
	}
	r.view.Local = LocalView{
		Identity: entry.Identity,
		Name:     entry.DisplayName,
		Avatar:   entry.Avatar,
		Kind:     entry.UserType,
	}
	r.publish()

	sink := r.sinkFor(attempt)
	ctx := r.ctx
	go func() {
		conn, err := r.transport.Connect(ctx, entry.EndpointURL, entry.Token, sink)
		if err != nil {
			r.deliver(connectResult{attempt: attempt, entry: entry, err: err}, nil)
			return
		}
		res := connectResult{attempt: attempt, entry: entry, conn: conn}
		res.tracks, res.mediaErrs = r.acquireMedia(ctx, conn)
		r.deliver(res, res.release)
	}()
}

// acquireMedia opens and publishes microphone and camera. Failures are
// collected, never fatal; a track that fails to publish is closed.
func (r *Reconciler) acquireMedia(ctx context.Context, conn Connection) ([]MediaTrack, []error) {
	if r.devices == nil {
		return nil, nil
	}
	var (
		tracks []MediaTrack
		errs   []error
	)
	for _, source := range []TrackSource{SourceMicrophone, SourceCamera} {
		track, err := r.devices.Open(ctx, source)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrMediaAcquisition, source, err))
			continue
		}
		if err := conn.Publish(ctx, track); err != nil {
			_ = track.Close()
			errs = append(errs, fmt.Errorf("%w: publish %s: %v", ErrMediaAcquisition, source, err))
			continue
		}
		tracks = append(tracks, track)
	}
	return tracks, errs
}

func (r *Reconciler) handleConnect(res connectResult) {
	if res.attempt != r.attempt {
		r.log.Debug().Uint64("attempt", res.attempt).Msg("discarding stale connection")
		res.release()
		return
	}
	if res.err != nil {
		// Events may have arrived before the join was rejected.
		r.releaseRenderers(r.view.Participants)
		r.view.Participants = nil
		r.fail(fmt.Errorf("%w: %v", ErrTransportConnect, res.err))
		return
	}

	r.conn, r.tracks = res.conn, res.tracks
	r.view.State = StateConnected
	r.view.Err = nil
	for _, t := range res.tracks {
		applySource(&r.view.Local.MediaState, t.Source(), true)
	}
	for _, err := range res.mediaErrs {
		r.log.Warn().Err(err).Str("room", r.view.Room).Msg("joining without media device")
		r.notify(Notification{Kind: NotifyMediaUnavailable, Message: err.Error(), Err: err})
	}
	r.log.Info().Str("room", r.view.Room).Str("identity", r.view.Local.Identity).Msg("connected")
	r.publish()
}

func (r *Reconciler) handleEvent(ev Event) {
	if ev.attempt != r.attempt {
		return
	}
	switch r.view.State {
	case StateUnresolved, StateRequesting, StateConnected:
	default:
		return
	}

	prev := r.view
	next, notes := Reduce(prev, ev)
	r.view = next
	for _, n := range notes {
		if n.Kind == NotifyParticipantLeft && r.renderer != nil {
			r.renderer.Release(n.Identity)
		}
		r.notify(n)
	}

	if next.State == StateDisconnected {
		r.log.Info().Str("room", next.Room).Str("reason", ev.Reason).Msg("transport disconnected")
		r.releaseRenderers(prev.Participants)
		r.endSession(true)
	}
	r.publish()
}

func (r *Reconciler) leave() {
	if r.view.Room == "" || !(r.view.State.active() || r.view.State == StateFailed) {
		r.reject("leave")
		return
	}

	r.releaseRenderers(r.view.Participants)
	r.endSession(true)
	r.view.State = StateDisconnected
	r.view.Participants = nil
	r.view.Local.MediaState = MediaState{}
	r.view.Err = nil
	r.log.Info().Str("room", r.view.Room).Msg("left room")
	r.notify(Notification{Kind: NotifyDisconnected, Message: "left the room"})
	r.publish()
}

func (r *Reconciler) doRetry() {
	if r.view.State != StateFailed || r.retry == nil {
		r.reject("retry")
		return
	}
	r.attempt++
	r.retry()
}

func (r *Reconciler) setMedia(source TrackSource, on bool) {
	if r.view.State != StateConnected {
		r.reject(source.String() + " toggle")
		return
	}
	published := false
	for _, t := range r.tracks {
		if t.Source() == source {
			published = true
			break
		}
	}
	if !published {
		err := fmt.Errorf("%w: no %s published", ErrMediaAcquisition, source)
		r.notify(Notification{Kind: NotifyMediaUnavailable, Message: err.Error(), Err: err})
		return
	}
	if err := r.conn.SetMuted(source, !on); err != nil {
		r.log.Warn().Err(err).Str("source", source.String()).Bool("on", on).Msg("failed to toggle track")
		r.notify(Notification{Kind: NotifyError, Message: err.Error(), Err: err})
		return
	}
	applySource(&r.view.Local.MediaState, source, on)
	r.publish()
}

func (r *Reconciler) sendChat(text string) {
	if r.view.State != StateConnected {
		r.reject("chat")
		return
	}
	attempt, conn, ctx := r.attempt, r.conn, r.ctx
	go func() {
		sendCtx, cancel := context.WithTimeout(ctx, chatSendTimeout)
		defer cancel()
		r.deliver(chatResult{attempt: attempt, text: text, err: conn.SendChat(sendCtx, text)}, nil)
	}()
}

func (r *Reconciler) handleChat(res chatResult) {
	if res.attempt != r.attempt {
		return
	}
	if res.err != nil {
		r.log.Warn().Err(res.err).Str("room", r.view.Room).Msg("failed to send chat message")
		r.notify(Notification{Kind: NotifyError, Message: "chat not sent: " + res.err.Error(), Err: res.err})
		return
	}
	r.notify(chatNotification(r.view.Local.Identity, r.view.Local.Name, res.text))
}

func (r *Reconciler) fail(err error) {
	r.view.State = StateFailed
	r.view.Err = err
	r.log.Warn().Err(err).Str("room", r.view.Room).Msg("join failed")
	r.notify(Notification{Kind: NotifyError, Message: err.Error(), Err: err})
	r.publish()
}

func (r *Reconciler) reject(what string) {
	err := fmt.Errorf("%w: %s in %s", ErrInvalidState, what, r.view.State)
	r.log.Debug().Err(err).Msg("command rejected")
	r.notify(Notification{Kind: NotifyError, Message: err.Error(), Err: err})
}

// endSession invalidates in-flight work and releases everything the session owns.
func (r *Reconciler) endSession(purge bool) {
	r.attempt++
	r.retry = nil
	if r.conn != nil {
		r.conn.Disconnect()
		r.conn = nil
	}
	for _, t := range r.tracks {
		if err := t.Close(); err != nil {
			r.log.Warn().Err(err).Str("source", t.Source().String()).Msg("failed to release media track")
		}
	}
	r.tracks = nil
	if purge && r.view.Room != "" {
		r.clearCache(r.view.Room)
	}
}

func (r *Reconciler) clearCache(room string) {
	if err := r.cache.Clear(r.ctx, room); err != nil {
		r.log.Warn().Err(err).Str("room", room).Msg("failed to clear session cache")
	}
}

func (r *Reconciler) releaseRenderers(participants []ParticipantView) {
	if r.renderer == nil {
		return
	}
	for _, p := range participants {
		r.renderer.Release(p.Identity)
	}
}

func (r *Reconciler) sinkFor(attempt uint64) EventSink {
	return func(ev Event) {
		ev.attempt = attempt
		select {
		case r.events <- ev:
		case <-r.done:
		}
	}
}

// deliver hands an async result to the loop, or releases it if the loop is gone.
func (r *Reconciler) deliver(res any, release func()) {
	select {
	case r.results <- res:
	case <-r.done:
		if release != nil {
			release()
		}
	}
}

// publish stores a snapshot and offers it on Updates, replacing the oldest
// queued view when the reader lags.
func (r *Reconciler) publish() {
	snap := r.view.clone()
	r.snapshot.Store(&snap)
	for {
		select {
		case r.updates <- snap:
			return
		default:
			select {
			case <-r.updates:
			default:
			}
		}
	}
}

func (r *Reconciler) notify(n Notification) {
	select {
	case r.notifications <- n:
	default:
		r.log.Debug().Str("message", n.Message).Msg("dropping notification")
	}
}

func principalName(p identity.Principal) string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	if local, _, _ := strings.Cut(strings.TrimSpace(p.Email), "@"); local != "" {
		return local
	}
	return "User"
}
