// Package speech handles spoken output and input.
//
// Output goes through a Speaker: an unbounded FIFO drained by a single
// worker so callers never wait on synthesis. Input comes from a Listener
// that yields one transcript per call.
package speech

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/felixgeelhaar/commandecho/internal/observe"
)

// Speaker queues utterances for a Synthesizer.
type Speaker struct {
	synth Synthesizer
	obs   *observe.Observer

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []string
	busy   bool
	closed bool
	done   chan struct{}
}

// NewSpeaker starts the worker goroutine. Call Close to stop it.
func NewSpeaker(synth Synthesizer, obs *observe.Observer) *Speaker {
	if obs == nil {
		obs = observe.Discard()
	}
	s := &Speaker{synth: synth, obs: obs, done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Speak enqueues text without blocking. With priority set the pending
// backlog is dropped first; an utterance already playing is not interrupted.
// Blank text is ignored.
func (s *Speaker) Speak(text string, priority bool) {
	text = CleanForSpeech(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if priority {
		s.queue = s.queue[:0]
	}
	s.queue = append(s.queue, text)
	s.cond.Broadcast()
}

// Pending returns the number of queued utterances not yet started.
func (s *Speaker) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Flush blocks until the queue is empty and nothing is playing.
func (s *Speaker) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for (len(s.queue) > 0 || s.busy) && !s.closed {
		s.cond.Wait()
	}
}

// Close drops the backlog and waits for the current utterance to finish.
func (s *Speaker) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()
	<-s.done
}

func (s *Speaker) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		text := s.queue[0]
		s.queue = s.queue[1:]
		s.busy = true
		s.mu.Unlock()

		s.obs.Log().Debug().Str("text", text).Msg("speaking")
		if err := s.synth.Say(context.Background(), text); err != nil {
			s.obs.Log().Error().Err(err).Msg("speech synthesis failed")
		}

		s.mu.Lock()
		s.busy = false
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

var (
	boldPattern   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicPattern = regexp.MustCompile(`\*(.*?)\*`)
	codePattern   = regexp.MustCompile("`(.*?)`")
	urlPattern    = regexp.MustCompile(`https?://\S+`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// CleanForSpeech strips markdown emphasis, replaces URLs with "link" and
// collapses whitespace.
func CleanForSpeech(text string) string {
	text = boldPattern.ReplaceAllString(text, "$1")
	text = italicPattern.ReplaceAllString(text, "$1")
	text = codePattern.ReplaceAllString(text, "$1")
	text = urlPattern.ReplaceAllString(text, "link")
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
