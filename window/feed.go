package window

import (
	"sync"
	"time"
)

// UpdateKind classifies a change to the managed conversation.
type UpdateKind string

const (
	UpdateMessageAdded     UpdateKind = "message-added"
	UpdateMessageRemoved   UpdateKind = "message-removed"
	UpdateMessageTruncated UpdateKind = "message-truncated"
	UpdateCleared          UpdateKind = "cleared"
	UpdateReset            UpdateKind = "reset"
)

// Update is one notification of the manager's feed. MessageCount and
// EstimatedTokens describe the state right after the change.
type Update struct {
	Kind            UpdateKind
	MessageIDs      []string
	MessageCount    int
	EstimatedTokens int
	// Fallback is set on truncations performed by truncate-oldest in place
	// of a summarize eviction that could not run.
	Fallback bool
	// SummaryID is the id of the synopsis that replaced MessageIDs, if any.
	SummaryID string
	At        time.Time
}

// subscriber owns an unbounded queue drained into ch by its own goroutine,
// so publishing never waits for a slow reader.
type subscriber struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []Update
	ch    chan Update
	done  chan struct{}
	once  sync.Once
}

func newSubscriber() *subscriber {
	s := &subscriber{
		ch:   make(chan Update),
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

func (s *subscriber) push(u Update) {
	s.mu.Lock()
	s.queue = append(s.queue, u)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *subscriber) run() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped() {
			s.cond.Wait()
		}
		if s.stopped() {
			s.mu.Unlock()
			return
		}
		u := s.queue[0]
		s.queue[0] = Update{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- u:
		case <-s.done:
			return
		}
	}
}

func (s *subscriber) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *subscriber) stop() {
	s.once.Do(func() {
		s.mu.Lock()
		close(s.done)
		s.queue = nil
		s.mu.Unlock()
		s.cond.Broadcast()
	})
}

// feed fans updates out to subscribers in publish order.
type feed struct {
	mu   sync.Mutex
	subs map[int]*subscriber
	next int
}

func (f *feed) subscribe() (<-chan Update, func()) {
	s := newSubscriber()
	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[int]*subscriber)
	}
	id := f.next
	f.next++
	f.subs[id] = s
	f.mu.Unlock()

	return s.ch, func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
		s.stop()
	}
}

func (f *feed) publish(u Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		s.push(u)
	}
}

func (f *feed) close() {
	f.mu.Lock()
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()
	for _, s := range subs {
		s.stop()
	}
}
