// Package sessionsync reconciles the auth provider's event stream with local
// identity state. It debounces duplicate events, breaks runaway event loops,
// guarantees a local profile exists for every authenticated principal, and
// classifies failures into credential wipes versus surfaced messages.
package sessionsync

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"talent-hub/backend/internal/authevent"
	"talent-hub/backend/internal/autherr"
	"talent-hub/backend/internal/profile/domain"
	"talent-hub/backend/internal/provider"
	"talent-hub/backend/internal/telemetry"
)

// admissionDeniedMessage is the raw message surfaced when the admission gate
// refuses a session for a synced profile.
const admissionDeniedMessage = "account suspended: session not allowed"

// ErrorInfo is the observable error portion of State.
type ErrorInfo struct {
	CredentialIssue bool
	Message         string
}

// Error is returned by imperative operations. It mirrors the ErrorInfo that
// was published to observers, so try-style callers and passive observers see
// the same classification.
type Error struct {
	CredentialIssue bool
	Message         string
}

func (e *Error) Error() string { return e.Message }

// State is the externally observable synchronizer state. Profile is nil
// whenever the most recent processed event carried no session payload.
type State struct {
	Profile *domain.Profile
	Loading bool
	Err     *ErrorInfo
}

// ProfileEnsurer returns the local profile for a principal, creating it with
// defaults when absent. Must be idempotent under concurrent calls.
type ProfileEnsurer interface {
	EnsureProfile(ctx context.Context, p *authevent.SessionPayload) (*domain.Profile, error)
}

// ArtifactStore persists local session artifacts (tokens). Wipe is idempotent
// and safe when nothing is stored.
type ArtifactStore interface {
	Store(ctx context.Context, sess *provider.Session) error
	Wipe(ctx context.Context) error
}

// CredentialClient performs the provider's credential operations.
type CredentialClient interface {
	SignIn(ctx context.Context, email, password string) (*provider.Session, error)
	SignUp(ctx context.Context, data provider.SignUpData) (*provider.Session, error)
	SignOut(ctx context.Context) error
}

// AdmissionGate decides whether a synced profile may hold a session.
type AdmissionGate interface {
	Admit(ctx context.Context, p *domain.Profile) (bool, error)
}

// Deps are the synchronizer's collaborators. Profiles, Artifacts, and
// Classifier are required; Credentials is required only for the imperative
// operations; Gate, Emitter, and Now are optional.
type Deps struct {
	Profiles    ProfileEnsurer
	Artifacts   ArtifactStore
	Credentials CredentialClient
	Classifier  *autherr.Classifier
	Gate        AdmissionGate
	Emitter     telemetry.EventEmitter
	Now         func() time.Time
}

// Synchronizer is the session synchronization state machine. One instance per
// active session; construct with New, feed it via Start or HandleEvent, and
// dispose with Stop.
type Synchronizer struct {
	profiles   ProfileEnsurer
	artifacts  ArtifactStore
	creds      CredentialClient
	classifier *autherr.Classifier
	gate       AdmissionGate
	emitter    telemetry.EventEmitter
	nowF       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	alive       bool
	epoch       uint64
	state       State
	lastPayload *authevent.SessionPayload
	deb         debouncer
	guard       loopGuard
	unsubscribe func()
	watchers    map[int]func(State)
	nextWatch   int
}

// New returns a Synchronizer in the idle state.
func New(d Deps) *Synchronizer {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Synchronizer{
		profiles:   d.Profiles,
		artifacts:  d.Artifacts,
		creds:      d.Credentials,
		classifier: d.Classifier,
		gate:       d.Gate,
		emitter:    d.Emitter,
		nowF:       now,
		ctx:        ctx,
		cancel:     cancel,
		alive:      true,
		watchers:   make(map[int]func(State)),
	}
}

// Start subscribes the synchronizer to the event source. At most one
// subscription per instance.
func (s *Synchronizer) Start(src authevent.Source) {
	s.mu.Lock()
	if !s.alive || s.unsubscribe != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	unsub := src.Subscribe(s.HandleEvent)

	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		unsub()
		return
	}
	s.unsubscribe = unsub
	s.mu.Unlock()
}

// Stop unsubscribes from the event source and marks the instance dead. Any
// identity-store call still in flight discards its result instead of mutating
// state after teardown. Idempotent.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	s.alive = false
	s.epoch++
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	s.cancel()
	if unsub != nil {
		unsub()
	}
}

// Snapshot returns a copy of the observable state.
func (s *Synchronizer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Watch registers fn to be called with every state change. Returns an
// idempotent unregister func. fn runs outside the instance lock and must not
// block.
func (s *Synchronizer) Watch(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextWatch
	s.nextWatch++
	s.watchers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// ClearError clears the observable error without touching identity.
func (s *Synchronizer) ClearError() {
	s.mutate(func() { s.state.Err = nil })
}

// HandleEvent processes one provider event. Debouncing and loop detection run
// synchronously before any suspension point, so their counters reflect true
// arrival order even when downstream identity-store calls overlap.
func (s *Synchronizer) HandleEvent(ev authevent.Event) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return
	}
	now := ev.At
	if now.IsZero() {
		now = s.nowF()
	}
	if !s.deb.shouldProcess(ev.Kind, now) {
		s.mu.Unlock()
		return
	}
	loop := s.guard.observe(ev.Kind, now)
	epoch := s.epoch
	s.mu.Unlock()

	if loop == LoopDetected {
		s.failCredential(s.ctx, epoch, autherr.LoopDetectedMessage, telemetry.EventLoopDetected, principalOf(ev))
		return
	}
	s.dispatch(ev, epoch)
}

func (s *Synchronizer) dispatch(ev authevent.Event, epoch uint64) {
	ctx := s.ctx
	switch ev.Kind {
	case authevent.KindInitialSession:
		s.transition(epoch, func() { s.state.Loading = true })
		_, _ = s.syncPayload(ctx, epoch, ev.Payload)
	case authevent.KindSignedIn, authevent.KindTokenRefreshed,
		authevent.KindUserUpdated, authevent.KindMfaVerified:
		_, _ = s.syncPayload(ctx, epoch, ev.Payload)
	case authevent.KindSignedOut, authevent.KindUserDeleted:
		s.clearSession(ctx)
		s.emit(telemetry.EventSignedOut, principalOf(ev), "")
	case authevent.KindTokenRefreshFailed:
		raw := ev.RawError
		if raw == "" {
			raw = "token refresh failed"
		}
		s.failCredential(ctx, epoch, raw, telemetry.EventSyncFailed, principalOf(ev))
		s.mu.Lock()
		s.guard.reset(s.nowF())
		s.mu.Unlock()
	case authevent.KindPasswordRecovery, authevent.KindOther:
		s.transition(epoch, func() { s.state.Loading = false })
	default:
		// ParseKind maps unknown provider strings to KindOther; a Kind outside
		// the closed set can only come from a caller bug. Treat it the same.
		s.transition(epoch, func() { s.state.Loading = false })
	}
}

// syncPayload runs identity sync for payload: ensure the profile exists, pass
// the admission gate, then publish the synced state. A nil payload clears
// identity. Returns the synced profile or the normalized error that was
// published.
func (s *Synchronizer) syncPayload(ctx context.Context, epoch uint64, payload *authevent.SessionPayload) (*domain.Profile, error) {
	if payload == nil || payload.UserID == "" {
		s.transition(epoch, func() {
			s.state.Profile = nil
			s.state.Err = nil
			s.state.Loading = false
			s.lastPayload = nil
		})
		return nil, nil
	}

	prof, err := s.profiles.EnsureProfile(ctx, payload)
	if err != nil {
		cls := s.classifier.Classify(err.Error())
		if cls.CredentialIssue {
			s.wipeArtifacts(ctx)
		}
		s.transition(epoch, func() {
			s.state.Profile = nil
			s.state.Err = &ErrorInfo{CredentialIssue: cls.CredentialIssue, Message: cls.DisplayMessage}
			s.state.Loading = false
			s.lastPayload = nil
		})
		s.emit(telemetry.EventSyncFailed, payload.UserID, cls.DisplayMessage)
		return nil, &Error{CredentialIssue: cls.CredentialIssue, Message: cls.DisplayMessage}
	}

	if s.gate != nil {
		allowed, gerr := s.gate.Admit(ctx, prof)
		if gerr != nil {
			cls := s.classifier.Classify(gerr.Error())
			s.transition(epoch, func() {
				s.state.Profile = nil
				s.state.Err = &ErrorInfo{CredentialIssue: cls.CredentialIssue, Message: cls.DisplayMessage}
				s.state.Loading = false
				s.lastPayload = nil
			})
			return nil, &Error{CredentialIssue: cls.CredentialIssue, Message: cls.DisplayMessage}
		}
		if !allowed {
			// Suspended profiles must not retain a live session locally.
			s.wipeArtifacts(ctx)
			msg := s.classifier.Classify(admissionDeniedMessage).DisplayMessage
			s.transition(epoch, func() {
				s.state.Profile = nil
				s.state.Err = &ErrorInfo{CredentialIssue: true, Message: msg}
				s.state.Loading = false
				s.lastPayload = nil
			})
			s.emit(telemetry.EventAdmissionDenied, payload.UserID, msg)
			return nil, &Error{CredentialIssue: true, Message: msg}
		}
	}

	s.transition(epoch, func() {
		s.state.Profile = prof
		s.state.Err = nil
		s.state.Loading = false
		s.lastPayload = payload
	})
	return prof, nil
}

// failCredential classifies raw, wipes local artifacts when the classifier
// says the credential itself is bad, then clears identity and publishes the
// error. The wipe happens before identity is cleared so there is no window
// where identity is gone but stale artifacts remain.
func (s *Synchronizer) failCredential(ctx context.Context, epoch uint64, raw string, evType telemetry.EventType, principalID string) {
	cls := s.classifier.Classify(raw)
	if cls.CredentialIssue {
		s.wipeArtifacts(ctx)
	}
	s.transition(epoch, func() {
		s.state.Profile = nil
		s.state.Err = &ErrorInfo{CredentialIssue: cls.CredentialIssue, Message: cls.DisplayMessage}
		s.state.Loading = false
		s.lastPayload = nil
	})
	s.emit(evType, principalID, cls.DisplayMessage)
}

// clearSession wipes artifacts and resets the state to signed-out. The epoch
// bump makes any in-flight identity sync discard its result, so a sign-out
// wins over overlapping syncs regardless of completion order.
func (s *Synchronizer) clearSession(ctx context.Context) {
	s.wipeArtifacts(ctx)
	s.mutate(func() {
		s.epoch++
		s.state = State{}
		s.lastPayload = nil
	})
}

// SignIn authenticates with the provider and syncs the returned principal
// through the same ensure path used by events. The error is both published to
// observers and returned.
func (s *Synchronizer) SignIn(ctx context.Context, email, password string) (*domain.Profile, error) {
	epoch, err := s.beginOp()
	if err != nil {
		return nil, err
	}
	s.wipeArtifacts(ctx)
	sess, err := s.creds.SignIn(ctx, email, password)
	if err != nil {
		return nil, s.failOp(ctx, epoch, err)
	}
	s.storeArtifacts(ctx, sess)
	prof, serr := s.syncPayload(ctx, epoch, sess.User)
	if serr != nil {
		return nil, serr
	}
	s.emit(telemetry.EventSignedIn, sess.User.UserID, "")
	return prof, nil
}

// SignUp registers with the provider and syncs the returned principal.
func (s *Synchronizer) SignUp(ctx context.Context, data provider.SignUpData) (*domain.Profile, error) {
	epoch, err := s.beginOp()
	if err != nil {
		return nil, err
	}
	s.wipeArtifacts(ctx)
	sess, err := s.creds.SignUp(ctx, data)
	if err != nil {
		return nil, s.failOp(ctx, epoch, err)
	}
	s.storeArtifacts(ctx, sess)
	prof, serr := s.syncPayload(ctx, epoch, sess.User)
	if serr != nil {
		return nil, serr
	}
	s.emit(telemetry.EventSignedIn, sess.User.UserID, "")
	return prof, nil
}

// SignOut revokes the provider session and clears all local state.
func (s *Synchronizer) SignOut(ctx context.Context) error {
	_, err := s.beginOp()
	if err != nil {
		return err
	}
	s.wipeArtifacts(ctx)
	var principalID string
	if st := s.Snapshot(); st.Profile != nil {
		principalID = st.Profile.ID
	}
	if perr := s.creds.SignOut(ctx); perr != nil {
		cls := s.classifier.Classify(perr.Error())
		s.mutate(func() {
			s.state.Err = &ErrorInfo{CredentialIssue: cls.CredentialIssue, Message: cls.DisplayMessage}
			s.state.Loading = false
		})
		return &Error{CredentialIssue: cls.CredentialIssue, Message: cls.DisplayMessage}
	}
	s.clearSession(ctx)
	s.emit(telemetry.EventSignedOut, principalID, "")
	return nil
}

// RefreshIdentity re-runs identity sync for the current principal. Unlike the
// other imperative operations it does not wipe artifacts first: the live
// session's tokens are not stale, and wiping them would invalidate it.
func (s *Synchronizer) RefreshIdentity(ctx context.Context) (*domain.Profile, error) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return nil, &Error{Message: "synchronizer stopped"}
	}
	payload := s.lastPayload
	epoch := s.epoch
	s.mu.Unlock()
	if payload == nil {
		return nil, &Error{Message: "no active session"}
	}
	s.transition(epoch, func() { s.state.Loading = true })
	return s.syncPayload(ctx, epoch, payload)
}

// beginOp starts an imperative operation: loading on, previous error cleared.
func (s *Synchronizer) beginOp() (uint64, error) {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return 0, &Error{Message: "synchronizer stopped"}
	}
	if s.creds == nil {
		s.mu.Unlock()
		return 0, &Error{Message: "no credential client configured"}
	}
	s.state.Loading = true
	s.state.Err = nil
	epoch := s.epoch
	st := s.state
	ws := s.watcherList()
	s.mu.Unlock()
	for _, w := range ws {
		w(st)
	}
	return epoch, nil
}

// failOp publishes a classified failure of an imperative operation and returns
// the normalized error. Credential issues also drop identity and artifacts;
// transient failures only reset loading and surface the message.
func (s *Synchronizer) failOp(ctx context.Context, epoch uint64, err error) error {
	cls := s.classifier.Classify(err.Error())
	if cls.CredentialIssue {
		s.wipeArtifacts(ctx)
	}
	s.transition(epoch, func() {
		if cls.CredentialIssue {
			s.state.Profile = nil
			s.lastPayload = nil
		}
		s.state.Err = &ErrorInfo{CredentialIssue: cls.CredentialIssue, Message: cls.DisplayMessage}
		s.state.Loading = false
	})
	return &Error{CredentialIssue: cls.CredentialIssue, Message: cls.DisplayMessage}
}

// transition mutates state under the lock if the instance is alive and the
// epoch still matches, then notifies watchers outside the lock. A false
// return means the mutation was discarded (stopped or superseded).
func (s *Synchronizer) transition(epoch uint64, fn func()) bool {
	s.mu.Lock()
	if !s.alive || s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	fn()
	st := s.state
	ws := s.watcherList()
	s.mu.Unlock()
	for _, w := range ws {
		w(st)
	}
	return true
}

// mutate is transition without the epoch check, for transitions that supersede
// in-flight work themselves.
func (s *Synchronizer) mutate(fn func()) bool {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return false
	}
	fn()
	st := s.state
	ws := s.watcherList()
	s.mu.Unlock()
	for _, w := range ws {
		w(st)
	}
	return true
}

func (s *Synchronizer) watcherList() []func(State) {
	ws := make([]func(State), 0, len(s.watchers))
	for _, w := range s.watchers {
		ws = append(ws, w)
	}
	return ws
}

func (s *Synchronizer) wipeArtifacts(ctx context.Context) {
	if s.artifacts == nil {
		return
	}
	if err := s.artifacts.Wipe(ctx); err != nil {
		log.Printf("sessionsync: artifact wipe failed: %v", err)
	}
}

func (s *Synchronizer) storeArtifacts(ctx context.Context, sess *provider.Session) {
	if s.artifacts == nil || sess == nil {
		return
	}
	if err := s.artifacts.Store(ctx, sess); err != nil {
		log.Printf("sessionsync: artifact store failed: %v", err)
	}
}

func (s *Synchronizer) emit(t telemetry.EventType, principalID, msg string) {
	if s.emitter == nil {
		return
	}
	telemetry.EmitAsync(s.emitter, s.ctx, &telemetry.Event{
		ID:          uuid.NewString(),
		Type:        t,
		PrincipalID: principalID,
		Message:     msg,
		At:          s.nowF(),
	})
}

func principalOf(ev authevent.Event) string {
	if ev.Payload == nil {
		return ""
	}
	return ev.Payload.UserID
}
