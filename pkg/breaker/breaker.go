package breaker

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/asaCurry/prescriber-point-sub001/pkg/errors"
)

// State is the position of a breaker in its state machine.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Settings configures a breaker.
type Settings struct {
	FailureThreshold int
	Cooldown         time.Duration
	MaxCooldown      time.Duration

	// IsFailure decides which errors count toward tripping. Defaults to apperrors.IsTransient.
	IsFailure func(error) bool

	// OnStateChange is invoked after every transition, outside the breaker lock.
	OnStateChange func(name string, from, to State)

	Now func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.MaxCooldown < s.Cooldown {
		s.MaxCooldown = s.Cooldown
	}
	if s.IsFailure == nil {
		s.IsFailure = apperrors.IsTransient
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name                string        `json:"name"`
	State               string        `json:"state"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	Cooldown            time.Duration `json:"cooldownNs"`
	OpenedAt            *time.Time    `json:"openedAt,omitempty"`
	RetryAfter          time.Duration `json:"retryAfterNs"`
}

// Breaker guards one named operation. While Open it rejects calls without
// invoking them; once the cooldown elapses a single trial call is admitted.
// A failed trial reopens the breaker with double the previous cooldown.
type Breaker struct {
	name     string
	settings Settings

	mu            sync.Mutex
	state         State
	failures      int
	cooldown      time.Duration
	openedAt      time.Time
	trialInFlight bool
}

// New creates a breaker in the Closed state.
func New(name string, settings Settings) *Breaker {
	settings = settings.withDefaults()
	return &Breaker{
		name:     name,
		settings: settings,
		cooldown: settings.Cooldown,
	}
}

// Name returns the operation name the breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := Execute(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Execute runs fn through b and returns its result. Rejected calls return a
// *apperrors.BreakerOpenError and fn is never invoked.
func Execute[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	trial, err := b.allow()
	if err != nil {
		return zero, err
	}

	res, err := fn(ctx)
	b.record(trial, err)
	return res, err
}

func (b *Breaker) allow() (bool, error) {
	b.mu.Lock()
	now := b.settings.Now()

	switch b.state {
	case StateOpen:
		elapsed := now.Sub(b.openedAt)
		if elapsed < b.cooldown {
			retryAfter := b.cooldown - elapsed
			b.mu.Unlock()
			return false, apperrors.NewBreakerOpenError(b.name, retryAfter)
		}
		from := b.transition(StateHalfOpen)
		b.trialInFlight = true
		b.mu.Unlock()
		b.notify(from, StateHalfOpen)
		return true, nil
	case StateHalfOpen:
		if b.trialInFlight {
			b.mu.Unlock()
			return false, apperrors.NewBreakerOpenError(b.name, 0)
		}
		b.trialInFlight = true
		b.mu.Unlock()
		return true, nil
	default:
		b.mu.Unlock()
		return false, nil
	}
}

func (b *Breaker) record(trial bool, err error) {
	b.mu.Lock()

	if err == nil {
		if trial && b.state == StateHalfOpen {
			from := b.transition(StateClosed)
			b.failures = 0
			b.cooldown = b.settings.Cooldown
			b.trialInFlight = false
			b.mu.Unlock()
			b.notify(from, StateClosed)
			return
		}
		if b.state == StateClosed {
			b.failures = 0
		}
		b.mu.Unlock()
		return
	}

	if !b.settings.IsFailure(err) {
		if trial && b.state == StateHalfOpen {
			b.trialInFlight = false
		}
		b.mu.Unlock()
		return
	}

	switch {
	case trial && b.state == StateHalfOpen:
		b.cooldown = min(b.cooldown*2, b.settings.MaxCooldown)
		b.trialInFlight = false
		b.openedAt = b.settings.Now()
		from := b.transition(StateOpen)
		b.mu.Unlock()
		b.notify(from, StateOpen)
	case b.state == StateClosed:
		b.failures++
		if b.failures < b.settings.FailureThreshold {
			b.mu.Unlock()
			return
		}
		b.openedAt = b.settings.Now()
		from := b.transition(StateOpen)
		b.mu.Unlock()
		b.notify(from, StateOpen)
	default:
		b.mu.Unlock()
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) State {
	from := b.state
	b.state = to
	return from
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

// Reset forces the breaker back to Closed with the base cooldown.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.transition(StateClosed)
	b.failures = 0
	b.cooldown = b.settings.Cooldown
	b.trialInFlight = false
	b.openedAt = time.Time{}
	b.mu.Unlock()
	b.notify(from, StateClosed)
}

// Snapshot returns the breaker's current state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Name:                b.name,
		State:               b.state.String(),
		ConsecutiveFailures: b.failures,
		Cooldown:            b.cooldown,
	}
	if b.state == StateOpen {
		openedAt := b.openedAt
		snap.OpenedAt = &openedAt
		if remaining := b.cooldown - b.settings.Now().Sub(b.openedAt); remaining > 0 {
			snap.RetryAfter = remaining
		}
	}
	return snap
}
