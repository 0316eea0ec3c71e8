// Package pacer adapts the rate at which operations are retried against a
// remote service. It tracks consecutive failures and exponentially backs
// off the sleep time between calls, decaying back down on success.
package pacer

import (
	"context"
	"sync"
	"time"
)

// State is the internal state of the pacer, handed to a Calculator so it
// can decide the next sleep time.
type State struct {
	SleepTime          time.Duration // current time to sleep before a call
	ConsecutiveRetries int           // number of consecutive retries, reset on success
	LastError          error         // the error from the last call, if any
}

// Calculator calculates the pace of calls against the state.
type Calculator interface {
	Calculate(state State) time.Duration
}

// Default is the exponential-decay calculator used unless overridden.
type Default struct {
	minSleep       time.Duration
	maxSleep       time.Duration
	decayConstant  uint
	attackConstant uint
}

// DefaultOption configures a Default calculator.
type DefaultOption func(*Default)

// MinSleep sets the minimum sleep time.
func MinSleep(t time.Duration) DefaultOption { return func(d *Default) { d.minSleep = t } }

// MaxSleep sets the maximum sleep time.
func MaxSleep(t time.Duration) DefaultOption { return func(d *Default) { d.maxSleep = t } }

// DecayConstant sets the decay constant (bigger decays slower).
func DecayConstant(c uint) DefaultOption { return func(d *Default) { d.decayConstant = c } }

// AttackConstant sets the attack constant (bigger attacks slower).
func AttackConstant(c uint) DefaultOption { return func(d *Default) { d.attackConstant = c } }

// NewDefault creates a Default calculator with the webdav-friendly defaults
// the teacher backend uses (10ms/2s/decay 2), overridden by opts.
func NewDefault(opts ...DefaultOption) *Default {
	d := &Default{
		minSleep:       10 * time.Millisecond,
		maxSleep:       2 * time.Second,
		decayConstant:  2,
		attackConstant: 1,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Calculate the next sleep time given the state.
func (d *Default) Calculate(state State) time.Duration {
	if state.ConsecutiveRetries == 0 {
		// decay: shrink towards minSleep by 1/2^decayConstant each success
		sleepTime := state.SleepTime - (state.SleepTime >> d.decayConstant)
		if sleepTime < d.minSleep {
			sleepTime = d.minSleep
		}
		return sleepTime
	}
	// attack: grow by 1/(2^attackConstant - 1) each consecutive retry
	if d.attackConstant == 0 {
		return d.maxSleep
	}
	denom := time.Duration((uint64(1) << d.attackConstant) - 1)
	sleepTime := state.SleepTime + state.SleepTime/denom
	if sleepTime > d.maxSleep || sleepTime <= 0 {
		sleepTime = d.maxSleep
	}
	return sleepTime
}

// Pacer paces the calls a Session makes to the remote to avoid overloading
// it, and retries calls that fail in a retryable way.
type Pacer struct {
	mu             sync.Mutex
	pacer          chan struct{} // ensures only one call in flight at a time paces itself
	connTokens     chan struct{} // limits concurrent connections, nil if unlimited
	maxConnections int
	retries        int
	calculator     Calculator
	state          State
}

// Option configures a Pacer.
type Option func(*Pacer)

// RetriesOption sets the max number of retries for a call.
func RetriesOption(retries int) Option {
	return func(p *Pacer) { p.retries = retries }
}

// MaxConnectionsOption limits the number of concurrent connections in flight.
func MaxConnectionsOption(n int) Option {
	return func(p *Pacer) { p.SetMaxConnections(n) }
}

// CalculatorOption overrides the pacing Calculator.
func CalculatorOption(c Calculator) Option {
	return func(p *Pacer) { p.calculator = c }
}

// New creates a Pacer with sensible webdav-friendly defaults: 10ms min
// sleep, 2s max sleep, decay constant 2 (as used by the teacher backend).
func New(opts ...Option) *Pacer {
	d := NewDefault()
	p := &Pacer{
		pacer:      make(chan struct{}, 1),
		calculator: d,
		retries:    3,
		state:      State{SleepTime: d.minSleep},
	}
	p.pacer <- struct{}{}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SetMaxConnections limits concurrent connections; 0 means unlimited.
func (p *Pacer) SetMaxConnections(n int) *Pacer {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxConnections = n
	if n <= 0 {
		p.connTokens = nil
	} else {
		p.connTokens = make(chan struct{}, n)
		for i := 0; i < n; i++ {
			p.connTokens <- struct{}{}
		}
	}
	return p
}

// SetMinSleep sets the minimum sleep time for the default calculator.
func (p *Pacer) SetMinSleep(t time.Duration) *Pacer {
	if d, ok := p.calculator.(*Default); ok {
		d.minSleep = t
		p.state.SleepTime = t
	}
	return p
}

// SetMaxSleep sets the maximum sleep time for the default calculator.
func (p *Pacer) SetMaxSleep(t time.Duration) *Pacer {
	if d, ok := p.calculator.(*Default); ok {
		d.maxSleep = t
	}
	return p
}

// SetDecayConstant sets the decay constant for the default calculator.
func (p *Pacer) SetDecayConstant(c uint) *Pacer {
	if d, ok := p.calculator.(*Default); ok {
		d.decayConstant = c
	}
	return p
}

// SetRetries sets the max number of retries for a call.
func (p *Pacer) SetRetries(retries int) *Pacer {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retries = retries
	return p
}

// Paced is a function run with pacing; it returns whether the call should
// be retried and the error to return if not.
type Paced func() (bool, error)

func (p *Pacer) beginCall() {
	<-p.pacer
	if p.connTokens != nil {
		<-p.connTokens
	}
}

func (p *Pacer) endCall(retry bool, err error) {
	p.mu.Lock()
	p.state.LastError = err
	if retry {
		p.state.ConsecutiveRetries++
	} else {
		p.state.ConsecutiveRetries = 0
	}
	p.state.SleepTime = p.calculator.Calculate(p.state)
	sleep := p.state.SleepTime
	p.mu.Unlock()

	if p.connTokens != nil {
		p.connTokens <- struct{}{}
	}
	time.Sleep(sleep)
	p.pacer <- struct{}{}
}

// Call runs fn, retrying it (up to p.retries times) whenever fn reports the
// call should be retried.
func (p *Pacer) Call(fn Paced) error {
	return p.callContext(context.Background(), fn, true)
}

// CallNoRetry runs fn exactly once regardless of what it reports.
func (p *Pacer) CallNoRetry(fn Paced) error {
	return p.callContext(context.Background(), fn, false)
}

func (p *Pacer) callContext(ctx context.Context, fn Paced, allowRetry bool) error {
	var err error
	for try := 0; ; try++ {
		p.beginCall()
		var retry bool
		retry, err = fn()
		p.endCall(retry && allowRetry, err)
		if !retry || !allowRetry || try >= p.retries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}
