// Package session tracks the authenticated principal of the application and
// keeps its profile in sync with the identity provider.
//
// A Controller subscribes to a provider.Provider and moves through three
// states:
//
//	unauthenticated -> resolving -> authenticated
//
// Every resolution is tagged with a request token. A result is committed only
// when its token is still current and the principal has not changed, so a
// logout or a newer sign-in always wins over a slow profile lookup.
//
// # Usage
//
//	ctrl := session.NewController(p, profile.NewResolver(store))
//	if err := ctrl.Initialize(ctx); err != nil { ... }
//	defer ctrl.Close()
//
//	unsubscribe := ctrl.OnChange(func(s session.Snapshot) { ... })
//	err := ctrl.Login(ctx, "alice@example.com", "secret")
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/getkayan/mentorship/core/logger"
	"github.com/getkayan/mentorship/core/profile"
	"github.com/getkayan/mentorship/core/provider"
	"github.com/getkayan/mentorship/core/telemetry"
	"go.uber.org/zap"
)

var (
	// ErrInvalidCredentials is returned by Login when the provider rejects
	// the email and password.
	ErrInvalidCredentials = fmt.Errorf("session: %w", provider.ErrInvalidCredentials)

	// ErrTimeout is returned by Login when the provider does not answer
	// within the login timeout. The caller may retry.
	ErrTimeout = errors.New("session: login timed out")

	ErrAlreadyInitialized = errors.New("session: controller already initialized")
	ErrClosed             = errors.New("session: controller closed")
)

// DefaultLoginTimeout bounds Login when no WithLoginTimeout option is given.
const DefaultLoginTimeout = 15 * time.Second

// ProfileResolver returns the profile of a principal, creating it on first
// sight. profile.Resolver implements it.
type ProfileResolver interface {
	Resolve(ctx context.Context, principalID, emailHint string) (*profile.Profile, error)
}

type ControllerOption func(*Controller)

// WithLoginTimeout bounds how long Login waits for the provider.
func WithLoginTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		if d > 0 {
			c.loginTimeout = d
		}
	}
}

// WithResolveTimeout bounds each profile resolution. Zero means no bound.
func WithResolveTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.resolveTimeout = d }
}

func WithLogger(log *zap.Logger) ControllerOption {
	return func(c *Controller) { c.log = log }
}

func WithTelemetry(p *telemetry.Provider) ControllerOption {
	return func(c *Controller) { c.tel = p }
}

// Controller owns the session Snapshot. All writes happen under mu; readers
// get copies.
type Controller struct {
	provider       provider.Provider
	resolver       ProfileResolver
	loginTimeout   time.Duration
	resolveTimeout time.Duration
	log            *zap.Logger
	tel            *telemetry.Provider

	mu          sync.Mutex
	state       Snapshot
	token       uint64
	initialized bool
	closed      bool
	unsubscribe func()

	listeners    map[uint64]func(Snapshot)
	nextListener uint64
	pending      []Snapshot
	wake         chan struct{}
	stop         chan struct{}
	stopped      chan struct{}

	inflight sync.WaitGroup
}

// NewController builds a Controller in the unauthenticated state and starts
// its listener dispatcher. Call Close to release it.
func NewController(p provider.Provider, r ProfileResolver, opts ...ControllerOption) *Controller {
	c := &Controller{
		provider:       p,
		resolver:       r,
		loginTimeout:   DefaultLoginTimeout,
		resolveTimeout: 30 * time.Second,
		log:            logger.Named("session"),
		state:          Snapshot{Status: StatusUnauthenticated},
		listeners:      make(map[uint64]func(Snapshot)),
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.dispatch()
	return c
}

// Initialize subscribes to the provider and adopts its current session. A
// provider failure leaves the controller signed out and is only logged.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.initialized {
		c.mu.Unlock()
		return ErrAlreadyInitialized
	}
	c.initialized = true
	c.mu.Unlock()

	unsubscribe := c.provider.OnSessionChange(c.handle)

	c.mu.Lock()
	c.unsubscribe = unsubscribe
	before := c.token
	c.mu.Unlock()

	s, err := c.provider.CurrentSession(ctx)
	if err != nil {
		c.log.Warn("current session unavailable, starting signed out", zap.Error(err))
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// A notification handled meanwhile is newer than s.
	if c.closed || c.token != before || s == nil {
		return nil
	}
	c.startLocked(s)
	return nil
}

// Login asks the provider to sign in. State changes arrive through the
// provider's SignedIn notification, not from Login itself.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	ctx, span := c.tel.SpanLogin(ctx)
	err := c.login(ctx, email, password)
	telemetry.EndSpan(span, err)

	switch {
	case err == nil:
		c.tel.RecordLogin(ctx, "success")
	case errors.Is(err, ErrInvalidCredentials):
		c.tel.RecordLogin(ctx, "invalid_credentials")
	case errors.Is(err, ErrTimeout):
		c.tel.RecordLogin(ctx, "timeout")
	default:
		c.tel.RecordLogin(ctx, "error")
	}
	return err
}

type signInResult struct {
	sess *provider.Session
	err  error
}

func (c *Controller) login(ctx context.Context, email, password string) error {
	ctx, cancel := context.WithTimeout(ctx, c.loginTimeout)
	defer cancel()

	done := make(chan signInResult, 1)
	go func() {
		s, err := c.provider.SignInWithPassword(ctx, email, password)
		done <- signInResult{s, err}
	}()

	select {
	case r := <-done:
		switch {
		case r.err == nil:
			return nil
		case errors.Is(r.err, provider.ErrInvalidCredentials):
			return ErrInvalidCredentials
		case errors.Is(r.err, context.DeadlineExceeded):
			return ErrTimeout
		case errors.Is(r.err, context.Canceled):
			return fmt.Errorf("session: login: %w", r.err)
		case errors.Is(r.err, provider.ErrProviderUnavailable):
			return fmt.Errorf("session: login: %w", r.err)
		default:
			return fmt.Errorf("session: login: %w: %v", provider.ErrProviderUnavailable, r.err)
		}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}

// Logout signs out with the provider and, on success, clears the state
// without waiting for the SignedOut notification.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.provider.SignOut(ctx); err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	c.clear("logout")
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// OnChange registers fn for every later transition. Calls happen in
// transition order on a dispatcher goroutine, never under the controller's
// lock.
func (c *Controller) OnChange(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Close unsubscribes from the provider, waits for in-flight resolutions and
// stops the dispatcher. Resolutions finishing after Close are discarded.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.token++
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.inflight.Wait()
	close(c.stop)
	<-c.stopped
	return nil
}

// handle is the provider subscription. It never blocks on I/O and never
// lets a panic escape into the provider.
func (c *Controller) handle(kind provider.EventKind, s *provider.Session) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("session notification handler panicked", zap.String("event", string(kind)), zap.Any("panic", r))
		}
	}()

	if kind == provider.EventSignedOut || s == nil {
		c.clear(string(kind))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if c.state.PrincipalID == s.PrincipalID {
		switch {
		case c.state.Status == StatusAuthenticated && c.state.Profile != nil:
			c.log.Debug("session unchanged", zap.String("event", string(kind)), zap.String("principal_id", s.PrincipalID))
			return
		case c.state.Status == StatusResolving:
			return
		}
	}
	c.startLocked(s)
}

// startLocked moves to resolving for s and starts the lookup. Caller holds mu.
func (c *Controller) startLocked(s *provider.Session) {
	c.token++
	token := c.token
	c.setLocked(Snapshot{
		Status:      StatusResolving,
		PrincipalID: s.PrincipalID,
		Email:       s.Email,
	})

	c.inflight.Add(1)
	go c.resolve(token, s.PrincipalID, s.Email)
}

func (c *Controller) resolve(token uint64, principalID, email string) {
	defer c.inflight.Done()

	ctx := context.Background()
	if c.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.resolveTimeout)
		defer cancel()
	}
	ctx, span := c.tel.SpanResolve(ctx, principalID)

	start := time.Now()
	p, err := c.safeResolve(ctx, principalID, email)
	telemetry.EndSpan(span, err)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.tel.RecordResolve(ctx, outcome, time.Since(start))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || token != c.token || c.state.PrincipalID != principalID {
		c.log.Debug("discarding stale profile resolution", zap.String("principal_id", principalID))
		return
	}

	next := Snapshot{
		Status:      StatusAuthenticated,
		PrincipalID: principalID,
		Email:       email,
	}
	if err != nil {
		c.log.Warn("profile unavailable, continuing without one", zap.String("principal_id", principalID), zap.Error(err))
	} else {
		next.Profile = p.Clone()
	}
	c.setLocked(next)
}

func (c *Controller) safeResolve(ctx context.Context, principalID, email string) (p *profile.Profile, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session: profile resolver panicked: %v", r)
		}
	}()
	p, err = c.resolver.Resolve(ctx, principalID, email)
	if err == nil && p == nil {
		err = errors.New("session: profile resolver returned nothing")
	}
	return p, err
}

// clear drops the session and invalidates any in-flight resolution.
func (c *Controller) clear(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token++
	if c.closed || c.state.Status == StatusUnauthenticated {
		return
	}
	c.log.Info("session cleared", zap.String("principal_id", c.state.PrincipalID), zap.String("event", reason))
	c.setLocked(Snapshot{Status: StatusUnauthenticated})
}

// setLocked installs next and queues it for listeners. Caller holds mu.
func (c *Controller) setLocked(next Snapshot) {
	next.Version = c.state.Version + 1
	c.state = next
	c.pending = append(c.pending, next.clone())
	c.tel.RecordTransition(context.Background(), string(next.Status))

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) dispatch() {
	defer close(c.stopped)
	for {
		select {
		case <-c.wake:
			c.flush()
		case <-c.stop:
			c.flush()
			return
		}
	}
}

func (c *Controller) flush() {
	for {
		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		ids := make([]uint64, 0, len(c.listeners))
		for id := range c.listeners {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		fns := make([]func(Snapshot), len(ids))
		for i, id := range ids {
			fns[i] = c.listeners[id]
		}
		c.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, s := range batch {
			for _, fn := range fns {
				c.notify(fn, s.clone())
			}
		}
	}
}

func (c *Controller) notify(fn func(Snapshot), s Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("session listener panicked", zap.Any("panic", r))
		}
	}()
	fn(s)
}
