package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mahaj/chatstra/pkg/model"
)

const (
	onlineUsersKey = "online_users"
	userKeyPrefix  = "user:"
	groupKeyPrefix = "group:"
	queueKeyPrefix = "offline:"
)

// Redis backs the user directory, group membership sets, the online-user
// mirror read by the API service, and the offline-queue durability backstop.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(addr string) *Redis {
	return &Redis{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) FindUser(ctx context.Context, id string) (*model.User, error) {
	fields, err := r.rdb.HGetAll(ctx, userKeyPrefix+id).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return &model.User{ID: id, Name: fields["name"]}, nil
}

// PutUser registers a user in the directory. Called by the API login handler.
func (r *Redis) PutUser(ctx context.Context, u *model.User) error {
	return r.rdb.HSet(ctx, userKeyPrefix+u.ID, "name", u.Name).Err()
}

func (r *Redis) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	members, err := r.rdb.SMembers(ctx, groupKeyPrefix+groupID+":members").Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	return members, nil
}

func (r *Redis) AddGroupMember(ctx context.Context, groupID, userID string) error {
	return r.rdb.SAdd(ctx, groupKeyPrefix+groupID+":members", userID).Err()
}

// SetOnline mirrors a registry transition into the online_users set so the
// API service can answer presence queries without touching the gateway.
func (r *Redis) SetOnline(ctx context.Context, userID string, online bool) error {
	if online {
		return r.rdb.SAdd(ctx, onlineUsersKey, userID).Err()
	}
	return r.rdb.SRem(ctx, onlineUsersKey, userID).Err()
}

func (r *Redis) OnlineUsers(ctx context.Context) ([]string, error) {
	return r.rdb.SMembers(ctx, onlineUsersKey).Result()
}

// Append mirrors a queued message to a Redis list. Together with Clear this
// implements queue.Mirror; both are best-effort.
func (r *Redis) Append(ctx context.Context, receiverID string, m *model.Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.rdb.RPush(ctx, queueKeyPrefix+receiverID, b).Err()
}

func (r *Redis) Clear(ctx context.Context, receiverID string) error {
	return r.rdb.Del(ctx, queueKeyPrefix+receiverID).Err()
}
