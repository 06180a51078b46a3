package sse

import (
	"context"
	"sync"

	"ms-seating/internal/models"
)

const clientBuffer = 16

// SeatEventEmitter fans seat status changes out to SSE clients watching a
// layout. Slow clients miss events instead of slowing down writers.
type SeatEventEmitter struct {
	// key: layoutID, value: client channels
	clients map[string][]chan models.SeatStatusChangeEvent
	mu      sync.RWMutex
}

func NewSeatEventEmitter() *SeatEventEmitter {
	return &SeatEventEmitter{
		clients: make(map[string][]chan models.SeatStatusChangeEvent),
	}
}

// Subscribe adds a client to the layout's events. The channel is closed once
// ctx is done.
func (e *SeatEventEmitter) Subscribe(ctx context.Context, layoutID string) <-chan models.SeatStatusChangeEvent {
	clientChan := make(chan models.SeatStatusChangeEvent, clientBuffer)

	e.mu.Lock()
	e.clients[layoutID] = append(e.clients[layoutID], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.removeClient(layoutID, clientChan)
	}()

	return clientChan
}

// PublishSeatStatus broadcasts event to every subscriber of its layout.
func (e *SeatEventEmitter) PublishSeatStatus(_ context.Context, event models.SeatStatusChangeEvent) error {
	// Sends happen under the read lock so removeClient cannot close a
	// channel mid-send.
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, clientChan := range e.clients[event.LayoutID] {
		select {
		case clientChan <- event:
		default:
			// buffer full, skip this client
		}
	}
	return nil
}

func (e *SeatEventEmitter) removeClient(layoutID string, clientChan chan models.SeatStatusChangeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[layoutID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[layoutID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(e.clients[layoutID]) == 0 {
		delete(e.clients, layoutID)
	}
}

// ClientCount returns the number of clients currently watching a layout
func (e *SeatEventEmitter) ClientCount(layoutID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[layoutID])
}
