package main

import (
	"context"
	"log"
	"time"

	"github.com/mahaj/chatstra/pkg/delivery"
	"github.com/mahaj/chatstra/pkg/presence"
	"github.com/mahaj/chatstra/pkg/session"
	"github.com/mahaj/chatstra/pkg/status"
	"github.com/mahaj/chatstra/pkg/store"
)

const mirrorTimeout = 5 * time.Second

type registration struct {
	userID string
	client *Client
}

// Hub serializes connection lifecycle events and hands them to the session
// registry, which in turn drives presence tracking and offline-queue drains
// through its transition watchers.
type Hub struct {
	registry *session.Registry
	tracker  *presence.Tracker
	router   *delivery.Router
	status   *status.Machine
	redis    *store.Redis

	register   chan registration
	unregister chan *Client
}

func NewHub(registry *session.Registry, tracker *presence.Tracker, router *delivery.Router, machine *status.Machine, rdb *store.Redis) *Hub {
	h := &Hub{
		registry:   registry,
		tracker:    tracker,
		router:     router,
		status:     machine,
		redis:      rdb,
		register:   make(chan registration),
		unregister: make(chan *Client),
	}

	// The drain must not run on the hub loop: it touches storage and other
	// users must keep flowing. The router's per-receiver lock keeps it
	// ordered against concurrent routes to the same user.
	registry.Watch(func(userID string, t session.Transition) {
		switch t {
		case session.Online:
			go router.DrainFor(context.Background(), userID)
		}
		go h.mirrorPresence(userID, t == session.Online)
	})

	return h
}

func (h *Hub) Run() {
	for {
		select {
		case reg := <-h.register:
			h.registry.Register(reg.userID, reg.client)
			log.Printf("client registered: %s (%s)", reg.userID, reg.client.Key())

		case client := <-h.unregister:
			if h.registry.Deregister(client) {
				client.closeSend()
				log.Printf("client unregistered: %s (%s)", client.userID, client.Key())
			}
		}
	}
}

func (h *Hub) mirrorPresence(userID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := h.redis.SetOnline(ctx, userID, online); err != nil {
		log.Printf("failed to mirror presence for %s: %v", userID, err)
	}
}
