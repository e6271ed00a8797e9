// Package detectmux fans detections out from the single radar poller to any
// number of subscribers, and serves the latest detection on the debug mux.
package detectmux

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"tailscale.com/tsweb"

	"github.com/banshee-data/urad/internal/httputil"
	"github.com/banshee-data/urad/internal/urad"
)

// subscriberBuffer is the number of events a slow subscriber may lag behind
// before events are dropped for it.
const subscriberBuffer = 16

// ChannelStats summarises one raw sample channel.
type ChannelStats struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stddev"`
}

// Event is one published detection.
type Event struct {
	Seq     uint64               `json:"seq"`
	Session string               `json:"session"`
	Time    time.Time            `json:"time"`
	Result  urad.DetectionResult `json:"result"`
	Targets []urad.Target        `json:"targets"`
	I       *ChannelStats        `json:"i,omitempty"`
	Q       *ChannelStats        `json:"q,omitempty"`
}

// Mux distributes events to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Mux struct {
	subscriberMu sync.Mutex
	subscribers  map[string]chan Event
	closed       bool

	lastMu sync.RWMutex
	last   *Event
	seq    uint64
}

// New returns an empty Mux.
func New() *Mux {
	return &Mux{subscribers: make(map[string]chan Event)}
}

// Subscribe registers a new subscriber. The ID is used to Unsubscribe. The
// channel is closed by Unsubscribe or Close.
func (m *Mux) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if m.closed {
		close(ch)
		return id, ch
	}
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (m *Mux) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

// Subscribers returns the number of active subscribers.
func (m *Mux) Subscribers() int {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	return len(m.subscribers)
}

// Publish assigns e the next sequence number, records it as the latest event
// and offers it to every subscriber.
func (m *Mux) Publish(e Event) Event {
	m.lastMu.Lock()
	m.seq++
	e.Seq = m.seq
	m.last = &e
	m.lastMu.Unlock()

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- e:
		default:
			// skip full subscribers so the poller never blocks
		}
	}
	return e
}

// Last returns the most recently published event.
func (m *Mux) Last() (Event, bool) {
	m.lastMu.RLock()
	defer m.lastMu.RUnlock()
	if m.last == nil {
		return Event{}, false
	}
	return *m.last, true
}

// Close closes every subscriber channel. Later subscribers receive an
// already closed channel.
func (m *Mux) Close() {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.closed = true
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
}

// AttachAdminRoutes registers debug endpoints on mux under /debug/. They are
// reachable only from localhost or over Tailscale.
func (m *Mux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("urad", "latest uRAD detection", func(w http.ResponseWriter, r *http.Request) {
		e, ok := m.Last()
		if !ok {
			httputil.WriteJSONError(w, http.StatusNotFound, "no detections yet")
			return
		}
		httputil.WriteJSON(w, http.StatusOK, e)
	})

	// Server-Sent Events stream of every detection as JSON.
	debug.HandleSilentFunc("urad-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		stream, err := httputil.NewEventStream(w)
		if err != nil {
			httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}

		id, c := m.Subscribe()
		defer m.Unsubscribe(id)

		if err := stream.Comment("ping"); err != nil {
			return
		}
		for {
			select {
			case e, ok := <-c:
				if !ok {
					return
				}
				if err := stream.Data(e); err != nil {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	})
}
