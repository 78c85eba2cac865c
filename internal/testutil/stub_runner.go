package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// StubRunner fakes command execution for tests. Responses are keyed by
// the joined argument list, so stubs read like the command lines they
// replace. It satisfies both the docker and source Runner interfaces.
type StubRunner struct {
	mu     sync.Mutex
	script map[string]*stubQueue
	calls  []string
	stdins []string
}

type stubQueue struct {
	next     []stubResponse
	fallback *stubResponse
}

type stubResponse struct {
	out string
	err error
}

func NewStubRunner() *StubRunner {
	return &StubRunner{script: make(map[string]*stubQueue)}
}

func (s *StubRunner) queueFor(args string) *stubQueue {
	q := s.script[args]
	if q == nil {
		q = &stubQueue{}
		s.script[args] = q
	}
	return q
}

// Stub queues a one-shot response for the given argument list.
func (s *StubRunner) Stub(args string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queueFor(args)
	q.next = append(q.next, stubResponse{out: out, err: err})
}

// StubDefault registers a fallback response used when the one-shot
// queue for the given argument list is empty.
func (s *StubRunner) StubDefault(args string, out string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueFor(args).fallback = &stubResponse{out: out, err: err}
}

// take records the call and pops the next scripted response for it.
func (s *StubRunner) take(args []string) (string, error) {
	key := strings.Join(args, " ")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, key)

	q := s.script[key]
	switch {
	case q == nil:
		return "", fmt.Errorf("unexpected command: %s", key)
	case len(q.next) > 0:
		resp := q.next[0]
		q.next = q.next[1:]
		return resp.out, resp.err
	case q.fallback != nil:
		return q.fallback.out, q.fallback.err
	default:
		return "", fmt.Errorf("unexpected command: %s", key)
	}
}

func (s *StubRunner) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	return s.take(args)
}

func (s *StubRunner) ExecWithStdin(ctx context.Context, dir string, stdin string, args ...string) (string, error) {
	s.mu.Lock()
	s.stdins = append(s.stdins, stdin)
	s.mu.Unlock()
	return s.take(args)
}

// ExecCombined behaves like Exec; stubs don't distinguish output streams.
func (s *StubRunner) ExecCombined(ctx context.Context, dir string, args ...string) (string, error) {
	return s.take(args)
}

// CallsFor returns how many times the given argument list was executed.
func (s *StubRunner) CallsFor(args ...string) int {
	key := strings.Join(args, " ")
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, call := range s.calls {
		if call == key {
			count++
		}
	}
	return count
}

// Calls returns all executed argument lists in order.
func (s *StubRunner) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Stdins returns the stdin payloads passed to ExecWithStdin in order.
func (s *StubRunner) Stdins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.stdins...)
}
