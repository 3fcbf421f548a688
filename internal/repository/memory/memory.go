package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/raakeshmj/keygate/internal/db"
	"github.com/raakeshmj/keygate/internal/repository"
)

// MemoryRepository keeps users and keys in process. Used by tests and by
// STORE_DRIVER=memory for local runs.
type MemoryRepository struct {
	users     map[string]*db.User // username -> user
	keys      map[string]*db.Key  // key -> record
	nextUser  int64
	nextKeyID int64
	mu        sync.RWMutex
}

func New() *MemoryRepository {
	return &MemoryRepository{
		users: make(map[string]*db.User),
		keys:  make(map[string]*db.Key),
	}
}

// User Repo Implementation
func (r *MemoryRepository) CreateUser(ctx context.Context, user *db.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Username]; ok {
		return repository.ErrDuplicate
	}
	r.nextUser++
	u := *user
	u.ID = r.nextUser
	r.users[u.Username] = &u
	return nil
}

func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*db.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[username]; ok {
		c := *u
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (r *MemoryRepository) TouchLastLogin(ctx context.Context, username string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[username]; ok {
		u.LastLogin = db.At(at)
	}
	return nil
}

func (r *MemoryRepository) ListByPrefix(ctx context.Context, prefix string) ([]*db.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []*db.User
	for _, u := range r.users {
		if u.Prefix == prefix {
			c := *u
			c.Password = ""
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// Key Repo Implementation
func (r *MemoryRepository) ListKeys(ctx context.Context, prefix string, limit, offset int) ([]*db.Key, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var list []*db.Key
	for _, k := range r.keys {
		if k.Prefix == prefix {
			list = append(list, clone(k))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].IDKey < list[j].IDKey })

	if offset >= len(list) {
		return []*db.Key{}, nil
	}
	list = list[offset:]
	if limit < len(list) {
		list = list[:limit]
	}
	return list, nil
}

func (r *MemoryRepository) InsertKeys(ctx context.Context, keys []*db.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		if _, ok := r.keys[k.Key]; ok {
			return repository.ErrDuplicate
		}
	}
	for _, k := range keys {
		r.nextKeyID++
		c := clone(k)
		c.IDKey = r.nextKeyID
		r.keys[c.Key] = c
	}
	return nil
}

func (r *MemoryRepository) DeleteKey(ctx context.Context, prefix, key string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := r.keys[key]; ok && k.Prefix == prefix {
		delete(r.keys, key)
		return 1, nil
	}
	return 0, nil
}

func (r *MemoryRepository) ResetDevice(ctx context.Context, prefix, key string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := r.keys[key]; ok && k.Prefix == prefix {
		k.IDDevice = nil
		return 1, nil
	}
	return 0, nil
}

func (r *MemoryRepository) GetKey(ctx context.Context, key string) (*db.Key, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if k, ok := r.keys[key]; ok {
		return clone(k), nil
	}
	return nil, repository.ErrNotFound
}

func (r *MemoryRepository) Activate(ctx context.Context, key, device string, start, end time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[key]
	if !ok || k.TimeStart.Valid {
		return false, nil
	}
	k.TimeStart = db.At(start)
	k.TimeEnd = db.At(end)
	d := device
	k.IDDevice = &d
	return true, nil
}

func (r *MemoryRepository) BindDevice(ctx context.Context, key, device string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[key]
	if !ok || !k.TimeStart.Valid || k.Device() != "" {
		return false, nil
	}
	d := device
	k.IDDevice = &d
	return true, nil
}

// PutKey stores k as-is, replacing any record with the same key. Test helper
// for seeding activation states.
func (r *MemoryRepository) PutKey(k *db.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := clone(k)
	if c.IDKey == 0 {
		r.nextKeyID++
		c.IDKey = r.nextKeyID
	}
	r.keys[c.Key] = c
}

func clone(k *db.Key) *db.Key {
	c := *k
	if k.IDDevice != nil {
		d := *k.IDDevice
		c.IDDevice = &d
	}
	return &c
}

// Interface check
var _ repository.UserRepository = (*MemoryRepository)(nil)
var _ repository.KeyRepository = (*MemoryRepository)(nil)
