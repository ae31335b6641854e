// Package group routes one inbound message to every online member of a
// group. Offline members deliberately get no offline-queue entry; they catch
// up through group history. One member-independent message record is
// persisted per broadcast.
package group

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mahaj/chatstra/pkg/model"
	"github.com/mahaj/chatstra/pkg/session"
	"github.com/mahaj/chatstra/pkg/snowflake"
	"github.com/mahaj/chatstra/pkg/status"
	"github.com/mahaj/chatstra/pkg/store"
)

// ErrUnknownGroup is returned when the directory has no member set for the
// group id.
var ErrUnknownGroup = errors.New("group: unknown group")

const activityTimeout = 5 * time.Second

type Coordinator struct {
	registry  *session.Registry
	directory store.Directory
	store     store.MessageStore
	status    *status.Machine
	activity  store.ActivityLog // optional
	ids       *snowflake.Node
}

func NewCoordinator(registry *session.Registry, directory store.Directory, st store.MessageStore, machine *status.Machine, activity store.ActivityLog, ids *snowflake.Node) *Coordinator {
	return &Coordinator{
		registry:  registry,
		directory: directory,
		store:     st,
		status:    machine,
		activity:  activity,
		ids:       ids,
	}
}

// Broadcast fans a message out to every online group member except the
// sender. Delivery is best-effort per member; the message is considered
// delivered for the sender's acknowledgement regardless of individual
// reachability.
func (c *Coordinator) Broadcast(ctx context.Context, groupID, senderID, content string) (*model.Message, error) {
	members, err := c.directory.MembersOf(ctx, groupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, groupID)
		}
		return nil, fmt.Errorf("group %s member lookup: %w", groupID, err)
	}

	msg := &model.Message{
		ID:        c.ids.Generate(),
		Sender:    senderID,
		GroupID:   groupID,
		Content:   content,
		Status:    model.StatusDelivered,
		CreatedAt: time.Now(),
	}

	if err := c.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("group %s persist message: %w", groupID, err)
	}
	c.status.Track(msg)

	delivered := 0
	for _, member := range members {
		if member == senderID {
			continue
		}
		for _, h := range c.registry.HandlesFor(member) {
			if err := h.Emit(model.EventReceiveGroupMessage, msg); err != nil {
				log.Printf("group: emit to %s: %v", member, err)
				continue
			}
			delivered++
		}
	}
	log.Printf("group: broadcast %d to %s reached %d sessions", msg.ID, groupID, delivered)

	if c.activity != nil {
		entry := store.ActivityEntry{
			Kind:      "group_message",
			Actor:     senderID,
			GroupID:   groupID,
			MessageID: msg.ID,
			At:        msg.CreatedAt,
		}
		go func() {
			actx, cancel := context.WithTimeout(context.Background(), activityTimeout)
			defer cancel()
			if err := c.activity.AppendActivity(actx, entry); err != nil {
				log.Printf("group: append activity for %s: %v", groupID, err)
			}
		}()
	}

	return msg, nil
}
