package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
)

// Delivery is a webhook request received by a Subscriber.
type Delivery struct {
	EventID   string
	EventType string
	Body      map[string]any
}

// Subscriber is a webhook endpoint that records deliveries and answers
// with a configurable status code.
type Subscriber struct {
	*httptest.Server

	status atomic.Int32

	mu         sync.Mutex
	deliveries []Delivery
}

// NewSubscriber starts a subscriber answering with status. Call Close when done.
func NewSubscriber(status int) *Subscriber {
	s := &Subscriber{}
	s.status.Store(int32(status))
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Reset forgets recorded deliveries and answers 200 again.
func (s *Subscriber) Reset() {
	s.SetStatus(http.StatusOK)
	s.mu.Lock()
	s.deliveries = nil
	s.mu.Unlock()
}

// SetStatus changes the status returned to subsequent deliveries.
func (s *Subscriber) SetStatus(status int) {
	s.status.Store(int32(status))
}

// Deliveries returns a copy of the recorded deliveries.
func (s *Subscriber) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.deliveries...)
}

// Count returns the number of deliveries of the event.
func (s *Subscriber) Count(eventID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.deliveries {
		if d.EventID == eventID {
			n++
		}
	}
	return n
}

func (s *Subscriber) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)

	d := Delivery{
		EventID:   r.Header.Get("X-Sync-Event-Id"),
		EventType: r.Header.Get("X-Sync-Event-Type"),
	}
	_ = json.Unmarshal(raw, &d.Body)

	s.mu.Lock()
	s.deliveries = append(s.deliveries, d)
	s.mu.Unlock()

	w.WriteHeader(int(s.status.Load()))
}
