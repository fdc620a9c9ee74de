package authstate

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"sessiongate/internal/domain"
	"sessiongate/internal/service"
	"sessiongate/pkg/errors"
	"sessiongate/pkg/logger"
)

// ErrAlreadyStarted is returned by Start on a machine that was started or stopped before
var ErrAlreadyStarted = stderrors.New("auth state machine already started")

// Provider is the client-side session primitive the machine is driven by
type Provider interface {
	GetSession(ctx context.Context) (*domain.Session, error)
	OnAuthStateChange() (<-chan domain.AuthEvent, func())
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password, fullName string) (*domain.Session, error)
	SignOut(ctx context.Context) error
	SignInWithOAuth(ctx context.Context, provider, redirectTo string) (string, error)
}

// Navigator moves the user to another location. Sign-out navigation runs on its own
// goroutine, so a navigator may call Machine.Stop.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(path string)

// Navigate calls f(path)
func (f NavigatorFunc) Navigate(path string) { f(path) }

// ActionResult is the outcome of a user action. Error is empty on success and holds
// the provider's message otherwise.
type ActionResult struct {
	Error string
	// RedirectURL is set by SignInWithOAuth
	RedirectURL string
}

// OK reports whether the action succeeded
func (r ActionResult) OK() bool { return r.Error == "" }

// Options configures a Machine
type Options struct {
	// HomePath is navigated to after sign-out
	HomePath string
	// OAuthRedirectURL is where the identity provider sends the user back to
	OAuthRedirectURL string
	// SessionTimeout bounds the initial session fetch
	SessionTimeout time.Duration
}

// Machine keeps an authentication state in sync with the identity provider.
// Async work carries the generation it was started under; results from an older
// generation, or arriving after Stop, are dropped.
type Machine struct {
	provider  Provider
	profiles  service.ProfileResolver
	navigator Navigator
	opts      Options
	logger    *logger.Logger

	mu          sync.Mutex
	state       domain.AuthState
	generation  uint64
	started     bool
	stopped     bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	watchers    map[uint64]chan domain.AuthState
	nextWatcher uint64

	ready     chan struct{}
	readyOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a machine in the uninitialized state
func New(provider Provider, profiles service.ProfileResolver, navigator Navigator, opts Options, logger *logger.Logger) *Machine {
	if opts.HomePath == "" {
		opts.HomePath = "/"
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = 5 * time.Second
	}
	return &Machine{
		provider:  provider,
		profiles:  profiles,
		navigator: navigator,
		opts:      opts,
		logger:    logger.Named("authstate"),
		state:     domain.AuthState{Status: domain.AuthUninitialized},
		watchers:  make(map[uint64]chan domain.AuthState),
		ready:     make(chan struct{}),
	}
}

// Start subscribes to auth events and loads the current session in the background.
// Ready is closed once the first result is known.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started || m.stopped {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)

	events, unsubscribe := m.provider.OnAuthStateChange()
	m.unsubscribe = unsubscribe
	gen := m.generation
	m.setStateLocked(domain.AuthState{Status: domain.AuthLoading})

	m.wg.Add(2)
	m.mu.Unlock()

	go m.listen(events)
	go m.initialize(gen)
	return nil
}

// Ready is closed when the machine leaves the loading state or is stopped
func (m *Machine) Ready() <-chan struct{} {
	return m.ready
}

// State returns a snapshot of the current state
func (m *Machine) State() domain.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Watch returns a channel holding the latest state, starting with the current one.
// Intermediate states may be skipped by slow readers. The channel is closed by the
// returned function or by Stop.
func (m *Machine) Watch() (<-chan domain.AuthState, func()) {
	ch := make(chan domain.AuthState, 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		ch <- m.state
		close(ch)
		return ch, func() {}
	}

	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = ch
	ch <- m.state

	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if w, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(w)
		}
	}
}

// Stop unsubscribes from auth events and waits for in-flight work. Later results are
// discarded. Safe to call more than once.
func (m *Machine) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.generation++
	cancel := m.cancel
	unsubscribe := m.unsubscribe
	watchers := m.watchers
	m.watchers = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	m.wg.Wait()

	for _, w := range watchers {
		close(w)
	}
	m.readyOnce.Do(func() { close(m.ready) })
}

// SignIn signs in with email and password
func (m *Machine) SignIn(email, password string) ActionResult {
	return m.action("sign_in", func(ctx context.Context) error {
		_, err := m.provider.SignInWithPassword(ctx, email, password)
		return err
	})
}

// SignUp registers a new account
func (m *Machine) SignUp(email, password, fullName string) ActionResult {
	return m.action("sign_up", func(ctx context.Context) error {
		_, err := m.provider.SignUp(ctx, email, password, fullName)
		return err
	})
}

// SignOut ends the session. The state changes when the provider reports SIGNED_OUT.
func (m *Machine) SignOut() ActionResult {
	return m.action("sign_out", func(ctx context.Context) error {
		return m.provider.SignOut(ctx)
	})
}

// SignInWithOAuth starts a social sign-in and navigates to the provider
func (m *Machine) SignInWithOAuth(provider string) ActionResult {
	var redirectURL string
	result := m.action("sign_in_oauth", func(ctx context.Context) error {
		if !service.OAuthProvider(provider).IsSupported() {
			return errors.NewValidationError("Unsupported provider: "+provider, nil)
		}
		url, err := m.provider.SignInWithOAuth(ctx, provider, m.opts.OAuthRedirectURL)
		if err != nil {
			return err
		}
		redirectURL = url
		m.navigator.Navigate(url)
		return nil
	})
	result.RedirectURL = redirectURL
	return result
}

// RefreshProfile reloads the profile of an authenticated state, bypassing the cache.
// It does nothing when no user is signed in.
func (m *Machine) RefreshProfile() ActionResult {
	return m.action("refresh_profile", func(ctx context.Context) error {
		m.mu.Lock()
		if m.stopped || !m.state.IsAuthenticated() || !m.state.Session.HasUser() {
			m.mu.Unlock()
			return nil
		}
		gen := m.generation
		identity := m.state.Session.User
		m.mu.Unlock()

		m.profiles.InvalidateProfile(ctx, identity.ID)
		profile := m.profiles.ResolveProfile(ctx, identity)

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.stopped || gen != m.generation || !m.state.IsAuthenticated() {
			return nil
		}
		next := m.state
		next.Profile = profile
		m.setStateLocked(next)
		return nil
	})
}

func (m *Machine) listen(events <-chan domain.AuthEvent) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case event := <-events:
			m.handleEvent(event)
		}
	}
}

func (m *Machine) handleEvent(event domain.AuthEvent) {
	log := m.logger.WithField("event", string(event.Type))

	if event.Type == domain.EventSignedOut {
		m.mu.Lock()
		if m.stopped {
			m.mu.Unlock()
			return
		}
		m.generation++
		m.setStateLocked(domain.AuthState{Status: domain.AuthUnauthenticated})
		m.mu.Unlock()

		log.Debug("Signed out")
		// not tracked by wg: Stop from inside Navigate must not wait on itself
		go m.navigator.Navigate(m.opts.HomePath)
		return
	}

	if !event.Session.HasUser() {
		log.Debug("Ignoring auth event without session")
		return
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.generation++
	gen := m.generation
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.authenticate(gen, event.Session)
	}()
}

func (m *Machine) initialize(gen uint64) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(m.ctx, m.opts.SessionTimeout)
	session, err := m.provider.GetSession(ctx)
	cancel()

	if err != nil {
		m.logger.WithError(err).Warn("Failed to load session")
		m.commit(gen, domain.AuthState{Status: domain.AuthUnauthenticated})
		return
	}
	if !session.HasUser() {
		m.commit(gen, domain.AuthState{Status: domain.AuthUnauthenticated})
		return
	}

	m.authenticate(gen, session)
}

func (m *Machine) authenticate(gen uint64, session *domain.Session) {
	profile := m.profiles.ResolveProfile(m.ctx, session.User)
	if m.commit(gen, domain.AuthState{
		Status:  domain.AuthAuthenticated,
		Session: session,
		Profile: profile,
	}) {
		m.logger.WithField("user_id", session.User.ID).Debug("Authenticated")
	}
}

// commit applies state if gen is still current
func (m *Machine) commit(gen uint64, state domain.AuthState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped || gen != m.generation {
		return false
	}
	m.setStateLocked(state)
	return true
}

func (m *Machine) setStateLocked(state domain.AuthState) {
	m.state = state

	for _, w := range m.watchers {
		select {
		case <-w:
		default:
		}
		w <- state
	}

	if state.Status != domain.AuthLoading && state.Status != domain.AuthUninitialized {
		m.readyOnce.Do(func() { close(m.ready) })
	}
}

// action runs fn with the machine's context and turns errors and panics into an
// ActionResult
func (m *Machine) action(name string, fn func(ctx context.Context) error) (result ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithField("action", name).Error("Action panicked", zap.Any("panic", r))
			result = ActionResult{Error: "An unexpected error occurred"}
		}
	}()

	if err := fn(m.actionContext()); err != nil {
		m.logger.WithField("action", name).WithError(err).Info("Action failed")
		return ActionResult{Error: errorMessage(err)}
	}
	return ActionResult{}
}

func (m *Machine) actionContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return m.ctx
	}
	return context.Background()
}

// errorMessage extracts the user-facing message from err
func errorMessage(err error) string {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}
