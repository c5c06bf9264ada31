package assessment

import (
	"sync"
)

// eventStreamer fans state-change events out to streaming subscribers.
// There is no history and no replay: a subscriber sees the events that
// happen while its connection is open.
type eventStreamer struct {
	sync.Mutex
	listeners []chan *StreamEventsResponse
}

func (e *eventStreamer) notify(ev Event) {
	e.Lock()
	defer e.Unlock()

	for _, c := range e.listeners {
		c <- &StreamEventsResponse{Event: ev}
	}
}

func (e *eventStreamer) newListener() chan *StreamEventsResponse {
	e.Lock()
	defer e.Unlock()

	out := make(chan *StreamEventsResponse)
	e.listeners = append(e.listeners, out)
	return out
}

// stopListener closes and removes one listener. Unknown channels are
// ignored, so it is safe to call after stopAll already cleaned up.
func (e *eventStreamer) stopListener(out chan *StreamEventsResponse) {
	e.Lock()
	defer e.Unlock()

	for i, o := range e.listeners {
		if o == out {
			close(o)
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return
		}
	}
}

func (e *eventStreamer) stopAll() {
	e.Lock()
	defer e.Unlock()

	for _, c := range e.listeners {
		close(c)
	}
	e.listeners = nil
}

// StreamEvents subscribes the caller to the event feed. The stream stays
// open until the client closes the connection.
func (s *Service) StreamEvents(req *StreamEvents) (chan *StreamEventsResponse, chan bool, error) {
	stopChan := make(chan bool)
	outChan := s.events.newListener()

	go func() {
		// Either the client closes the connection or the service shuts
		// down and forces it; both end up here.
		<-stopChan
		s.events.stopListener(outChan)
	}()
	return outChan, stopChan, nil
}
