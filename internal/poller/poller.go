// Package poller drives a uRAD session: it powers the radar on, loads a
// configuration, polls for detections at a fixed interval and powers the
// radar off again when its context is cancelled.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/urad/internal/detectmux"
	"github.com/banshee-data/urad/internal/monitoring"
	"github.com/banshee-data/urad/internal/timeutil"
	"github.com/banshee-data/urad/internal/units"
	"github.com/banshee-data/urad/internal/urad"
)

// DefaultInterval is used when Options.Interval is not positive.
const DefaultInterval = 5 * time.Millisecond

// Options controls the polling loop.
type Options struct {
	// Interval is the pause between detections.
	Interval time.Duration
	// MaxConsecutiveFailures stops the loop after this many recoverable
	// detection errors in a row. Zero retries forever.
	MaxConsecutiveFailures int
	// StartRetries bounds the retries of turn on and configure. Zero makes
	// a single attempt at each.
	StartRetries uint64
	// Session options passed to urad.Open.
	Session []urad.Option
}

// Option customises a Poller.
type Option func(*Poller)

// WithClock sets the clock used for the poll interval, retry waits and the
// session's settle delays.
func WithClock(c timeutil.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithMux publishes every detection to m.
func WithMux(m *detectmux.Mux) Option {
	return func(p *Poller) { p.mux = m }
}

// WithOutput writes one line per detected target to w.
func WithOutput(w io.Writer) Option {
	return func(p *Poller) { p.out = w }
}

// WithSpeedUnit sets the unit of printed velocities. The default is metres
// per second.
func WithSpeedUnit(u units.Speed) Option {
	return func(p *Poller) { p.speed = u }
}

// WithBackOff replaces the retry policy used while starting the session.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(p *Poller) { p.newBackOff = newBackOff }
}

// Poller owns one radar session at a time. It is not safe for concurrent
// use; run it from a single goroutine.
type Poller struct {
	transport  urad.Transport
	radar      urad.RadarConfig
	opts       Options
	clock      timeutil.Clock
	mux        *detectmux.Mux
	out        io.Writer
	speed      units.Speed
	newBackOff func() backoff.BackOff

	session *urad.Session
}

// New returns a Poller that will load radar onto the module behind t.
func New(t urad.Transport, radar urad.RadarConfig, opts Options, options ...Option) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	p := &Poller{
		transport: t,
		radar:     radar,
		opts:      opts,
		clock:     timeutil.RealClock{},
		speed:     units.MPS,
	}
	for _, o := range options {
		o(p)
	}
	if p.newBackOff == nil {
		retries := opts.StartRetries
		p.newBackOff = func() backoff.BackOff {
			if retries == 0 {
				return &backoff.StopBackOff{}
			}
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.MaxElapsedTime = 0
			return backoff.WithMaxRetries(b, retries)
		}
	}
	return p
}

// Session returns the active session, or nil before Start and after Stop.
func (p *Poller) Session() *urad.Session { return p.session }

// Start turns the radar on and loads the configuration, retrying
// acknowledgement failures with backoff.
func (p *Poller) Start(ctx context.Context) error {
	sessionOpts := append([]urad.Option{urad.WithClock(p.clock)}, p.opts.Session...)

	var s *urad.Session
	err := p.retry(ctx, "turn on", func() error {
		var err error
		s, err = urad.Open(p.transport, sessionOpts...)
		return err
	})
	if err != nil {
		return err
	}

	err = p.retry(ctx, "configure", func() error {
		return s.Configure(p.radar)
	})
	if err != nil {
		if closeErr := s.Close(); closeErr != nil {
			monitoring.Logf("failed to turn radar off after configure error: %v", closeErr)
		}
		return err
	}

	p.session = s
	monitoring.Logf("📡 radar session %s started: %s", s.ID(), p.radar)
	return nil
}

func (p *Poller) retry(ctx context.Context, what string, op func() error) error {
	b := backoff.WithContext(p.newBackOff(), ctx)
	b.Reset()
	for {
		err := op()
		if err == nil {
			return nil
		}
		if !urad.Retryable(err) {
			return fmt.Errorf("%s: %w", what, err)
		}
		next := b.NextBackOff()
		if next == backoff.Stop {
			return fmt.Errorf("%s: giving up: %w", what, err)
		}
		monitoring.Logf("⚠️ %s failed: %v (retrying in %v)", what, err, next)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-p.clock.After(next):
		}
	}
}

// PollOnce runs one detection on the active session, prints the detected
// targets and publishes the result.
func (p *Poller) PollOnce() (detectmux.Event, error) {
	if p.session == nil {
		return detectmux.Event{}, urad.ErrNotConfigured
	}
	det, err := p.session.Detect()
	if err != nil {
		return detectmux.Event{}, err
	}

	e := detectmux.Event{
		Session: p.session.ID().String(),
		Time:    p.clock.Now(),
		Result:  det.Result,
		Targets: det.Result.Targets(),
	}
	if det.Raw != nil {
		e.I = summarise(det.Raw.InPhase)
		e.Q = summarise(det.Raw.Quadrature)
	}

	p.print(e)
	if p.mux != nil {
		e = p.mux.Publish(e)
	}
	return e, nil
}

func (p *Poller) print(e detectmux.Event) {
	if p.out == nil {
		return
	}
	for _, t := range e.Targets {
		fmt.Fprintf(p.out, "Target: %d, Distance: %1.2f m, Velocity: %1.1f %s, SNR: %1.1f dB\n",
			t.Index, t.Distance, p.speed.Convert(float64(t.Velocity)), p.speed.Symbol(), t.SNR)
	}
	if e.Result.Movement {
		fmt.Fprintln(p.out, "Movement detected")
	}
}

// summarise returns the mean and sample standard deviation of one raw
// channel, or nil when the channel was not requested.
func summarise(samples []uint16) *detectmux.ChannelStats {
	if len(samples) == 0 {
		return nil
	}
	x := make([]float64, len(samples))
	for i, v := range samples {
		x[i] = float64(v)
	}
	s := &detectmux.ChannelStats{Samples: len(x)}
	if len(x) == 1 {
		s.Mean = x[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(x, nil)
	return s
}

// Stop turns the radar off and forgets the session.
func (p *Poller) Stop() error {
	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	if err != nil && !errors.Is(err, urad.ErrSessionClosed) {
		return fmt.Errorf("turn off: %w", err)
	}
	monitoring.Logf("radar session %s stopped", p.session.ID())
	p.session = nil
	return nil
}

// Run starts the session unless Start already has, and polls until ctx is cancelled, a transport error
// occurs, or MaxConsecutiveFailures recoverable errors arrive in a row. The
// radar is turned off before Run returns. Cancellation is not an error.
func (p *Poller) Run(ctx context.Context) (err error) {
	if p.session == nil {
		if err := p.Start(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	defer func() {
		if stopErr := p.Stop(); stopErr != nil {
			monitoring.Logf("failed to turn radar off: %v", stopErr)
			if err == nil {
				err = stopErr
			}
		}
	}()

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		_, pollErr := p.PollOnce()
		switch {
		case pollErr == nil:
			failures = 0
		case urad.Retryable(pollErr):
			failures++
			monitoring.Logf("⚠️ detection failed (%d in a row): %v", failures, pollErr)
			if limit := p.opts.MaxConsecutiveFailures; limit > 0 && failures >= limit {
				return fmt.Errorf("giving up after %d consecutive failures: %w", failures, pollErr)
			}
		default:
			return fmt.Errorf("detection failed: %w", pollErr)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-p.clock.After(p.opts.Interval):
		}
	}
}
