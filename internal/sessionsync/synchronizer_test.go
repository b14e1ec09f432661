package sessionsync

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"talent-hub/backend/internal/autherr"
	"talent-hub/backend/internal/authevent"
	"talent-hub/backend/internal/profile/domain"
	"talent-hub/backend/internal/provider"
)

// syncRecorder collects labelled calls so tests can assert ordering across
// collaborators.
type syncRecorder struct {
	mu  sync.Mutex
	log []string
}

func (r *syncRecorder) add(entry string) {
	r.mu.Lock()
	r.log = append(r.log, entry)
	r.mu.Unlock()
}

func (r *syncRecorder) entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.log))
	copy(out, r.log)
	return out
}

type fakeProfiles struct {
	mu      sync.Mutex
	calls   int
	profile *domain.Profile
	err     error
	block   chan struct{}
}

func (f *fakeProfiles) EnsureProfile(ctx context.Context, p *authevent.SessionPayload) (*domain.Profile, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	prof, err := f.profile, f.err
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	if prof != nil {
		return prof, nil
	}
	return domain.NewDefault(p, time.Now().UTC()), nil
}

func (f *fakeProfiles) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeArtifacts struct {
	rec    *syncRecorder
	mu     sync.Mutex
	stores int
	wipes  int
}

func (f *fakeArtifacts) Store(ctx context.Context, sess *provider.Session) error {
	f.mu.Lock()
	f.stores++
	f.mu.Unlock()
	if f.rec != nil {
		f.rec.add("store")
	}
	return nil
}

func (f *fakeArtifacts) Wipe(ctx context.Context) error {
	f.mu.Lock()
	f.wipes++
	f.mu.Unlock()
	if f.rec != nil {
		f.rec.add("wipe")
	}
	return nil
}

func (f *fakeArtifacts) wipeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wipes
}

type fakeCreds struct {
	session    *provider.Session
	signInErr  error
	signUpErr  error
	signOutErr error

	mu       sync.Mutex
	signOuts int
}

func (f *fakeCreds) SignIn(ctx context.Context, email, password string) (*provider.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.session, nil
}

func (f *fakeCreds) SignUp(ctx context.Context, data provider.SignUpData) (*provider.Session, error) {
	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	return f.session, nil
}

func (f *fakeCreds) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.signOuts++
	f.mu.Unlock()
	return f.signOutErr
}

type fakeGate struct {
	allow bool
	err   error
}

func (f *fakeGate) Admit(ctx context.Context, p *domain.Profile) (bool, error) {
	return f.allow, f.err
}

func testPayload() *authevent.SessionPayload {
	return &authevent.SessionPayload{
		UserID: "principal-1",
		Email:  "ana.souza@example.com",
	}
}

func testProfile() *domain.Profile {
	return &domain.Profile{
		ID:       "principal-1",
		Email:    "ana.souza@example.com",
		Name:     "Ana Souza",
		Role:     domain.RoleEmployee,
		Status:   domain.StatusActive,
		Position: domain.DefaultPosition,
		Level:    domain.DefaultLevel,
	}
}

func TestSynchronizer_InitialSessionSyncs(t *testing.T) {
	profiles := &fakeProfiles{profile: testProfile()}
	s := New(Deps{
		Profiles:   profiles,
		Artifacts:  &fakeArtifacts{},
		Classifier: autherr.NewClassifier(nil),
	})
	defer s.Stop()

	var sawLoading bool
	s.Watch(func(st State) {
		if st.Loading {
			sawLoading = true
		}
	})

	s.HandleEvent(authevent.Event{
		Kind:    authevent.KindInitialSession,
		Payload: testPayload(),
		At:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	st := s.Snapshot()
	if st.Profile == nil || st.Profile.ID != "principal-1" {
		t.Fatalf("Profile = %+v, want principal-1", st.Profile)
	}
	if st.Loading {
		t.Error("Loading = true after sync, want false")
	}
	if st.Err != nil {
		t.Errorf("Err = %+v, want nil", st.Err)
	}
	if !sawLoading {
		t.Error("watcher never observed the loading state")
	}
}

func TestSynchronizer_DebouncedRepeatEnsuresOnce(t *testing.T) {
	profiles := &fakeProfiles{profile: testProfile()}
	s := New(Deps{
		Profiles:   profiles,
		Artifacts:  &fakeArtifacts{},
		Classifier: autherr.NewClassifier(nil),
	})
	defer s.Stop()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.HandleEvent(authevent.Event{Kind: authevent.KindSignedIn, Payload: testPayload(), At: t0})
	s.HandleEvent(authevent.Event{Kind: authevent.KindSignedIn, Payload: testPayload(), At: t0.Add(300 * time.Millisecond)})

	if got := profiles.callCount(); got != 1 {
		t.Errorf("EnsureProfile calls = %d, want 1 (repeat within 750ms is suppressed)", got)
	}
}

func TestSynchronizer_NilPayloadClearsIdentity(t *testing.T) {
	profiles := &fakeProfiles{profile: testProfile()}
	s := New(Deps{
		Profiles:   profiles,
		Artifacts:  &fakeArtifacts{},
		Classifier: autherr.NewClassifier(nil),
	})
	defer s.Stop()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.HandleEvent(authevent.Event{Kind: authevent.KindSignedIn, Payload: testPayload(), At: t0})
	s.HandleEvent(authevent.Event{Kind: authevent.KindUserUpdated, At: t0.Add(time.Second)})

	st := s.Snapshot()
	if st.Profile != nil {
		t.Errorf("Profile = %+v, want nil after payload-less event", st.Profile)
	}
	if st.Err != nil {
		t.Errorf("Err = %+v, want nil", st.Err)
	}
}

func TestSynchronizer_LoopDetectionWipesAndErrors(t *testing.T) {
	profiles := &fakeProfiles{profile: testProfile()}
	artifacts := &fakeArtifacts{}
	s := New(Deps{
		Profiles:   profiles,
		Artifacts:  artifacts,
		Classifier: autherr.NewClassifier(nil),
	})
	defer s.Stop()

	// Alternating kinds sidestep the debouncer; all 21 land inside the
	// 10s loop window.
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	kinds := []authevent.Kind{authevent.KindTokenRefreshed, authevent.KindUserUpdated}
	for i := 0; i < 21; i++ {
		s.HandleEvent(authevent.Event{
			Kind:    kinds[i%2],
			Payload: testPayload(),
			At:      t0.Add(time.Duration(i) * 10 * time.Millisecond),
		})
	}

	st := s.Snapshot()
	if st.Err == nil {
		t.Fatal("Err = nil, want loop-detected error")
	}
	if !st.Err.CredentialIssue {
		t.Error("Err.CredentialIssue = false, want true")
	}
	if st.Err.Message != autherr.LoopDetectedMessage {
		t.Errorf("Err.Message = %q, want %q", st.Err.Message, autherr.LoopDetectedMessage)
	}
	if st.Profile != nil {
		t.Errorf("Profile = %+v, want nil", st.Profile)
	}
	if artifacts.wipeCount() == 0 {
		t.Error("loop detection must wipe stored artifacts")
	}
}

func TestSynchronizer_SignedOutClearsEverything(t *testing.T) {
	profiles := &fakeProfiles{profile: testProfile()}
	artifacts := &fakeArtifacts{}
	s := New(Deps{
		Profiles:   profiles,
		Artifacts:  artifacts,
		Classifier: autherr.NewClassifier(nil),
	})
	defer s.Stop()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.HandleEvent(authevent.Event{Kind: authevent.KindSignedIn, Payload: testPayload(), At: t0})
	if s.Snapshot().Profile == nil {
		t.Fatal("precondition: profile should be synced")
	}

	s.HandleEvent(authevent.Event{Kind: authevent.KindSignedOut, At: t0.Add(time.Second)})

	st := s.Snapshot()
	if st.Profile != nil || st.Err != nil || st.Loading {
		t.Errorf("state after SignedOut = %+v, want zero", st)
	}
	if artifacts.wipeCount() == 0 {
		t.Error("SignedOut must wipe artifacts")
	}
}

func TestSynchronizer_SignedOutFromErrorState(t *testing.T) {
	profiles := &fakeProfiles{err: errors.New("jwt expired")}
	s := New(Deps{
		Profiles:   profiles,
		Artifacts:  &fakeArtifacts{},
		Classifier: autherr.NewClassifier(nil),
	})
	defer s.Stop()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.HandleEvent(authevent.Event{Kind: authevent.KindSignedIn, Payload: testPayload(), At: t0})
	if s.Snapshot().Err == nil {
		t.Fatal("precondition: error state expected")
	}

	s.HandleEvent(authevent.Event{Kind: authevent.KindSignedOut, At: t0.Add(time.Second)})
	if st := s.Snapshot(); st.Err != nil {
		t.Errorf("Err after SignedOut = %+v, want nil", st.Err)
	}
}

func TestSynchronizer_RefreshFailureWipesBeforeClearingIdentity(t *testing.T) {
	rec := &syncRecorder{}
	profiles := &fakeProfiles{profile: testProfile()}
	artifacts := &fakeArtifacts{rec: rec}
	s := New(Deps{
		Profiles:   profiles,
		Artifacts:  artifacts,
		Classifier: autherr.NewClassifier(map[string]string{
			"refresh token not found": "Sessão expirada. Entre novamente.",
		}),
	})
	defer s.Stop()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.HandleEvent(authevent.Event{Kind: authevent.KindSignedIn, Payload: testPayload(), At: t0})

	s.Watch(func(st State) {
		if st.Profile == nil && st.Err != nil {
			rec.add("cleared")
		}
	})
	s.HandleEvent(authevent.Event{
		Kind:     authevent.KindTokenRefreshFailed,
		RawError: "AuthApiError: refresh token not found",
		At:       t0.Add(time.Second),
	})

	st := s.Snapshot()
	if st.Err == nil || !st.Err.CredentialIssue {
		t.Fatalf("Err = %+v, want credential issue", st.Err)
	}
	if st.Err.Message != "Sessão expirada. Entre novamente." {
		t.Errorf("Err.Message = %q, want translated message", st.Err.Message)
	}

	log := rec.entries()
	wipeAt, clearAt := -1, -1
	for i, e := range log {
		if e == "wipe" && wipeAt == -1 {
			wipeAt = i
		}
		if e == "cleared" {
			clearAt = i
		}
	}
	if wipeAt == -1 || clearAt == -1 || wipeAt > clearAt {
		t.Errorf("call order = %v, want artifact wipe before identity cleared", log)
	}
}

func TestSynchronizer_TransientEnsureErrorDoesNotWipe(t *testing.T) {
	profiles := &fakeProfiles{err: errors.New("connection refused")}
	artifacts := &fakeArtifacts{}
	s := New(Deps{
		Profiles:   profiles,
		Artifacts:  artifacts,
		Classifier: autherr.NewClassifier(nil),
	})
	defer s.Stop()

	s.HandleEvent(authevent.Event{
		Kind:    authevent.KindSignedIn,
		Payload: testPayload(),
		At:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	st := s.Snapshot()
	if st.Err == nil {
		t.Fatal("Err = nil, want transient error")
	}
	if st.Err.CredentialIssue {
		t.Error("Err.CredentialIssue = true, want false for transient failure")
	}
	if st.Err.Message != "connection refused" {
		t.Errorf("Err.Message = %q, want raw message fallback", st.Err.Message)
	}
	if artifacts.wipeCount() != 0 {
		t.Errorf("wipes = %d, want 0 for transient failure", artifacts.wipeCount())
	}
}

func TestSynchronizer_AdmissionDeniedSuspendsSession(t *testing.T) {
	profiles := &fakeProfiles{profile: testProfile()}
	artifacts := &fakeArtifacts{}
	s := New(Deps{
		Profiles:   profiles,
		Artifacts:  artifacts,
		Classifier: autherr.NewClassifier(nil),
		Gate:       &fakeGate{allow: false},
	})
	defer s.Stop()

	s.HandleEvent(authevent.Event{
		Kind:    authevent.KindSignedIn,
		Payload: testPayload(),
		At:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	st := s.Snapshot()
	if st.Profile != nil {
		t.Errorf("Profile = %+v, want nil when admission is denied", st.Profile)
	}
	if st.Err == nil || !st.Err.CredentialIssue {
		t.Fatalf("Err = %+v, want credential issue", st.Err)
	}
	if !strings.Contains(st.Err.Message, "suspended") {
		t.Errorf("Err.Message = %q, want suspension message", st.Err.Message)
	}
	if artifacts.wipeCount() == 0 {
		t.Error("denied admission must wipe artifacts")
	}
}

func TestSynchronizer_SignInSuccess(t *testing.T) {
	profiles := &fakeProfiles{profile: testProfile()}
	artifacts := &fakeArtifacts{}
	creds := &fakeCreds{session: &provider.Session{
		AccessToken:  "at",
		RefreshToken: "rt",
		User:         testPayload(),
	}}
	s := New(Deps{
		Profiles:    profiles,
		Artifacts:   artifacts,
		Credentials: creds,
		Classifier:  autherr.NewClassifier(nil),
	})
	defer s.Stop()

	prof, err := s.SignIn(context.Background(), "ana.souza@example.com", "secret")
	if err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if prof == nil || prof.ID != "principal-1" {
		t.Fatalf("SignIn() profile = %+v, want principal-1", prof)
	}

	artifacts.mu.Lock()
	stores := artifacts.stores
	artifacts.mu.Unlock()
	if stores != 1 {
		t.Errorf("artifact stores = %d, want 1", stores)
	}

	st := s.Snapshot()
	if st.Profile == nil || st.Err != nil || st.Loading {
		t.Errorf("state after SignIn = %+v, want synced", st)
	}
}

func TestSynchronizer_SignInFailurePublishedAndReturned(t *testing.T) {
	profiles := &fakeProfiles{profile: testProfile()}
	artifacts := &fakeArtifacts{}
	creds := &fakeCreds{signInErr: errors.New("invalid_grant: wrong password")}
	s := New(Deps{
		Profiles:    profiles,
		Artifacts:   artifacts,
		Credentials: creds,
		Classifier:  autherr.NewClassifier(nil),
	})
	defer s.Stop()

	_, err := s.SignIn(context.Background(), "ana.souza@example.com", "wrong")
	if err == nil {
		t.Fatal("SignIn() error = nil, want credential error")
	}
	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("SignIn() error type = %T, want *Error", err)
	}
	if !serr.CredentialIssue {
		t.Error("returned error CredentialIssue = false, want true")
	}

	st := s.Snapshot()
	if st.Err == nil {
		t.Fatal("Snapshot().Err = nil, want the same failure published")
	}
	if st.Err.Message != serr.Message || st.Err.CredentialIssue != serr.CredentialIssue {
		t.Errorf("published = %+v, returned = %+v, want identical classification", st.Err, serr)
	}
}

func TestSynchronizer_SignOutClearsState(t *testing.T) {
	profiles := &fakeProfiles{profile: testProfile()}
	artifacts := &fakeArtifacts{}
	creds := &fakeCreds{session: &provider.Session{User: testPayload()}}
	s := New(Deps{
		Profiles:    profiles,
		Artifacts:   artifacts,
		Credentials: creds,
		Classifier:  autherr.NewClassifier(nil),
	})
	defer s.Stop()

	if _, err := s.SignIn(context.Background(), "ana.souza@example.com", "secret"); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if err := s.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut() error = %v", err)
	}

	creds.mu.Lock()
	signOuts := creds.signOuts
	creds.mu.Unlock()
	if signOuts != 1 {
		t.Errorf("provider sign-outs = %d, want 1", signOuts)
	}
	if st := s.Snapshot(); st.Profile != nil || st.Err != nil || st.Loading {
		t.Errorf("state after SignOut = %+v, want zero", st)
	}
}

func TestSynchronizer_RefreshIdentityWithoutSession(t *testing.T) {
	s := New(Deps{
		Profiles:   &fakeProfiles{},
		Artifacts:  &fakeArtifacts{},
		Classifier: autherr.NewClassifier(nil),
	})
	defer s.Stop()

	if _, err := s.RefreshIdentity(context.Background()); err == nil {
		t.Error("RefreshIdentity() error = nil, want no-active-session error")
	}
}

func TestSynchronizer_RefreshIdentityRerunsSync(t *testing.T) {
	profiles := &fakeProfiles{profile: testProfile()}
	artifacts := &fakeArtifacts{}
	s := New(Deps{
		Profiles:   profiles,
		Artifacts:  artifacts,
		Classifier: autherr.NewClassifier(nil),
	})
	defer s.Stop()

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.HandleEvent(authevent.Event{Kind: authevent.KindSignedIn, Payload: testPayload(), At: t0})

	updated := testProfile()
	updated.Points = 50
	profiles.mu.Lock()
	profiles.profile = updated
	profiles.mu.Unlock()

	wipesBefore := artifacts.wipeCount()
	prof, err := s.RefreshIdentity(context.Background())
	if err != nil {
		t.Fatalf("RefreshIdentity() error = %v", err)
	}
	if prof.Points != 50 {
		t.Errorf("Points = %d, want 50 after refresh", prof.Points)
	}
	if artifacts.wipeCount() != wipesBefore {
		t.Error("RefreshIdentity must not wipe live session artifacts")
	}
}

func TestSynchronizer_StopDiscardsInFlightSync(t *testing.T) {
	block := make(chan struct{})
	profiles := &fakeProfiles{profile: testProfile(), block: block}
	s := New(Deps{
		Profiles:   profiles,
		Artifacts:  &fakeArtifacts{},
		Classifier: autherr.NewClassifier(nil),
	})

	done := make(chan struct{})
	go func() {
		s.HandleEvent(authevent.Event{
			Kind:    authevent.KindSignedIn,
			Payload: testPayload(),
			At:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		})
		close(done)
	}()

	// Wait until the ensure call is in flight, then tear down.
	for i := 0; profiles.callCount() == 0 && i < 100; i++ {
		time.Sleep(time.Millisecond)
	}
	s.Stop()
	close(block)
	<-done

	if st := s.Snapshot(); st.Profile != nil || st.Err != nil {
		t.Errorf("state after Stop = %+v, want untouched zero state", st)
	}
}

func TestSynchronizer_ClearError(t *testing.T) {
	profiles := &fakeProfiles{err: errors.New("connection refused")}
	s := New(Deps{
		Profiles:   profiles,
		Artifacts:  &fakeArtifacts{},
		Classifier: autherr.NewClassifier(nil),
	})
	defer s.Stop()

	s.HandleEvent(authevent.Event{
		Kind:    authevent.KindSignedIn,
		Payload: testPayload(),
		At:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	if s.Snapshot().Err == nil {
		t.Fatal("precondition: error state expected")
	}

	s.ClearError()
	if st := s.Snapshot(); st.Err != nil {
		t.Errorf("Err after ClearError = %+v, want nil", st.Err)
	}
}

func TestSynchronizer_WatchUnsubscribe(t *testing.T) {
	profiles := &fakeProfiles{profile: testProfile()}
	s := New(Deps{
		Profiles:   profiles,
		Artifacts:  &fakeArtifacts{},
		Classifier: autherr.NewClassifier(nil),
	})
	defer s.Stop()

	var calls int
	unsub := s.Watch(func(State) { calls++ })
	unsub()
	unsub() // idempotent

	s.HandleEvent(authevent.Event{
		Kind:    authevent.KindSignedIn,
		Payload: testPayload(),
		At:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})

	if calls != 0 {
		t.Errorf("watcher calls after unsubscribe = %d, want 0", calls)
	}
}

func TestSynchronizer_OperationsAfterStopFail(t *testing.T) {
	s := New(Deps{
		Profiles:    &fakeProfiles{},
		Artifacts:   &fakeArtifacts{},
		Credentials: &fakeCreds{},
		Classifier:  autherr.NewClassifier(nil),
	})
	s.Stop()
	s.Stop() // idempotent

	if _, err := s.SignIn(context.Background(), "a@b.c", "pw"); err == nil {
		t.Error("SignIn() after Stop should fail")
	}
	if err := s.SignOut(context.Background()); err == nil {
		t.Error("SignOut() after Stop should fail")
	}
	if _, err := s.RefreshIdentity(context.Background()); err == nil {
		t.Error("RefreshIdentity() after Stop should fail")
	}
}
