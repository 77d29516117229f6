// Package memlink provides an in-process radio medium for tests and bench
// runs. Every endpoint hears every other endpoint's transmissions, like a
// single shared LoRa channel.
package memlink

import (
	"math/rand"
	"sync"

	"github.com/marcotidei/LAURACam/link"
)

const endpointQueueCap = 64

// Hub is a simulated shared medium. Endpoints attached to the same hub
// receive each other's frames. Loss and duplication rates model a bad
// channel without touching the code under test.
type Hub struct {
	mu        sync.Mutex
	endpoints []*Endpoint

	lossRate float64
	dupRate  float64
	rssi     int16
	snr      int8
}

func NewHub() *Hub {
	return &Hub{rssi: -90, snr: 7}
}

// SetLossRate drops the given fraction of deliveries (0 disables).
func (h *Hub) SetLossRate(rate float64) {
	h.mu.Lock()
	h.lossRate = rate
	h.mu.Unlock()
}

// SetDupRate delivers the given fraction of frames twice.
func (h *Hub) SetDupRate(rate float64) {
	h.mu.Lock()
	h.dupRate = rate
	h.mu.Unlock()
}

// SetSignal fixes the RSSI/SNR metadata reported with every delivery.
func (h *Hub) SetSignal(rssi int16, snr int8) {
	h.mu.Lock()
	h.rssi = rssi
	h.snr = snr
	h.mu.Unlock()
}

// Attach creates a new endpoint on the shared medium.
func (h *Hub) Attach() *Endpoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	ep := &Endpoint{hub: h}
	h.endpoints = append(h.endpoints, ep)
	return ep
}

func (h *Hub) broadcast(from *Endpoint, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ep := range h.endpoints {
		if ep == from || ep.closed {
			continue
		}
		if h.lossRate > 0 && rand.Float64() < h.lossRate {
			continue
		}
		ep.push(data, h.rssi, h.snr)
		if h.dupRate > 0 && rand.Float64() < h.dupRate {
			ep.push(data, h.rssi, h.snr)
		}
	}
}

// Endpoint is one radio attached to a Hub. It implements link.Transport.
type Endpoint struct {
	hub *Hub

	mu     sync.Mutex
	queue  []link.Received
	closed bool
}

func (e *Endpoint) Send(data []byte) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return link.ErrTransmit
	}
	e.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	e.hub.broadcast(e, cp)
	return nil
}

func (e *Endpoint) Poll() (link.Received, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return link.Received{}, false
	}
	rx := e.queue[0]
	e.queue = e.queue[1:]
	return rx, true
}

func (e *Endpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	e.queue = nil
	e.mu.Unlock()
	return nil
}

// push appends to the bounded inbound queue, dropping the oldest frame when
// full. Receive context never blocks the sender.
func (e *Endpoint) push(data []byte, rssi int16, snr int8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	if len(e.queue) >= endpointQueueCap {
		e.queue = e.queue[1:]
	}
	e.queue = append(e.queue, link.Received{Data: cp, RSSI: rssi, SNR: snr})
}
