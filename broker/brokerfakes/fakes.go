// Package brokerfakes provides hand-written fakes for the broker's external
// collaborators, with call counting for interaction assertions.
package brokerfakes

import (
	"context"
	"sync"
	"time"

	"github.com/mailauth/broker/broker"
	"github.com/mailauth/broker/internal/emailaddr"
	"github.com/mailauth/broker/webfinger"
)

var _ broker.Discoverer = (*FakeDiscoverer)(nil)

// FakeDiscoverer serves configured links or an error, optionally after a
// delay so tests can exercise the discovery timeout.
type FakeDiscoverer struct {
	Links []webfinger.Link
	Err   error
	Delay time.Duration

	// Completed receives one value per finished Query call, letting tests
	// observe that a detached query still ran to completion.
	Completed chan struct{}

	mu        sync.Mutex
	callCount int
	lastEmail emailaddr.Address
}

// NewFakeDiscoverer creates a FakeDiscoverer with a buffered completion channel.
func NewFakeDiscoverer() *FakeDiscoverer {
	return &FakeDiscoverer{Completed: make(chan struct{}, 16)}
}

func (f *FakeDiscoverer) Query(_ context.Context, email emailaddr.Address) ([]webfinger.Link, error) {
	f.mu.Lock()
	f.callCount++
	f.lastEmail = email
	f.mu.Unlock()

	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	if f.Completed != nil {
		f.Completed <- struct{}{}
	}
	return f.Links, f.Err
}

func (f *FakeDiscoverer) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}

func (f *FakeDiscoverer) LastEmail() emailaddr.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastEmail
}

var _ broker.AddrLimiter = (*FakeAddrLimiter)(nil)

// FakeAddrLimiter reports a fixed decision. The zero value allows everything.
type FakeAddrLimiter struct {
	Blocked bool
	Err     error

	mu        sync.Mutex
	callCount int
	lastAddr  string
}

func (f *FakeAddrLimiter) Check(_ context.Context, addr string) (bool, error) {
	f.mu.Lock()
	f.callCount++
	f.lastAddr = addr
	f.mu.Unlock()

	if f.Err != nil {
		return false, f.Err
	}
	return !f.Blocked, nil
}

func (f *FakeAddrLimiter) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}

func (f *FakeAddrLimiter) LastAddr() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastAddr
}

var _ broker.OIDCBridge = (*FakeOIDCBridge)(nil)

// FakeOIDCBridge records its invocation and returns a fixed result.
type FakeOIDCBridge struct {
	Response *broker.Response
	Err      error

	mu        sync.Mutex
	callCount int
	lastEmail emailaddr.Address
	lastLink  webfinger.Link
}

func (f *FakeOIDCBridge) Auth(_ context.Context, _ *broker.RequestContext, email emailaddr.Address, link webfinger.Link) (*broker.Response, error) {
	f.mu.Lock()
	f.callCount++
	f.lastEmail = email
	f.lastLink = link
	f.mu.Unlock()

	return f.Response, f.Err
}

func (f *FakeOIDCBridge) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}

func (f *FakeOIDCBridge) LastLink() webfinger.Link {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastLink
}

func (f *FakeOIDCBridge) LastEmail() emailaddr.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastEmail
}

var _ broker.EmailBridge = (*FakeEmailBridge)(nil)

// FakeEmailBridge records its invocation and returns a fixed result.
type FakeEmailBridge struct {
	Response *broker.Response
	Err      error

	mu        sync.Mutex
	callCount int
	lastEmail emailaddr.Address
}

func (f *FakeEmailBridge) Auth(_ context.Context, _ *broker.RequestContext, email emailaddr.Address) (*broker.Response, error) {
	f.mu.Lock()
	f.callCount++
	f.lastEmail = email
	f.mu.Unlock()

	return f.Response, f.Err
}

func (f *FakeEmailBridge) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount
}

func (f *FakeEmailBridge) LastEmail() emailaddr.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastEmail
}
