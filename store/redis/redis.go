// Package redis adapts a Redis deployment to store.Store. Nodes become
// hashes, children become sets, and transactions ride MULTI/EXEC through a
// TxPipeline.
//
// Semantics are slightly weaker than the zk backend because MULTI cannot
// express per-op checks: queued Create and Put ops apply unconditionally
// (upsert), and a queued Delete removes the node without an ErrNotEmpty
// check, leaving any descendant keys orphaned rather than failing. The
// coorddb layer above never queues deletes of its own and does not rely on
// the checks, but code sharing transactions with other writers should prefer
// the zk backend when it needs them.
package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/coorddb/store"
)

var ErrNilClient = errors.New("redis store: nil client")

type Store struct {
	rdb         goredis.UniversalClient
	ns          string
	lockTTL     time.Duration
	lockPoll    time.Duration
	closeClient bool
}

var _ store.Store = (*Store)(nil)

type Config struct {
	Client goredis.UniversalClient
	// Namespace isolates this tree from other keys in the deployment,
	// e.g. "prod:noderepo".
	Namespace string
	// CloseClient: set true only if this store exclusively owns the client.
	CloseClient bool
	// LockTTL bounds how long a crashed holder wedges a lock. 0 => 30s.
	LockTTL time.Duration
	// LockPoll is the acquire retry interval. 0 => 50ms.
	LockPoll time.Duration
}

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	s := &Store{
		rdb:         cfg.Client,
		ns:          cfg.Namespace,
		lockTTL:     cfg.LockTTL,
		lockPoll:    cfg.LockPoll,
		closeClient: cfg.CloseClient,
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 30 * time.Second
	}
	if s.lockPoll <= 0 {
		s.lockPoll = 50 * time.Millisecond
	}
	return s, nil
}

func (s *Store) nodeKey(p string) string { return "node:" + s.ns + ":" + p }
func (s *Store) kidsKey(p string) string { return "kids:" + s.ns + ":" + p }
func (s *Store) ctrKey(p string) string  { return "ctr:" + s.ns + ":" + p }
func (s *Store) lockKey(p string) string { return "lock:" + s.ns + ":" + p }

func (s *Store) Create(ctx context.Context, path string) error {
	pipe := s.rdb.TxPipeline()
	s.queueCreate(ctx, pipe, path)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) queueCreate(ctx context.Context, pipe goredis.Pipeliner, path string) {
	for _, p := range store.Ancestry(path) {
		pipe.HSetNX(ctx, s.nodeKey(p), "exists", 1)
		pipe.SAdd(ctx, s.kidsKey(store.ParentPath(p)), store.BaseName(p))
	}
}

func (s *Store) Children(ctx context.Context, path string) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, s.kidsKey(store.CleanPath(path))).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) Data(ctx context.Context, path string) ([]byte, bool, error) {
	b, err := s.rdb.HGet(ctx, s.nodeKey(store.CleanPath(path)), "data").Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (s *Store) NewTxn() store.Txn {
	return &txn{s: s}
}

func (s *Store) Counter(path string) store.Counter {
	return &counter{s: s, key: s.ctrKey(store.CleanPath(path))}
}

func (s *Store) NewLock(path string) store.Lock {
	return &lock{s: s, key: s.lockKey(store.CleanPath(path))}
}

// Close releases the underlying client only when this store owns it.
func (s *Store) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

type txnOp func(ctx context.Context, pipe goredis.Pipeliner)

type txn struct {
	s    *Store
	ops  []txnOp
	done bool
}

func (t *txn) Create(path string) {
	p := store.CleanPath(path)
	t.ops = append(t.ops, func(ctx context.Context, pipe goredis.Pipeliner) {
		t.s.queueCreate(ctx, pipe, p)
	})
}

func (t *txn) Put(path string, data []byte) {
	p := store.CleanPath(path)
	d := make([]byte, len(data))
	copy(d, data)
	t.ops = append(t.ops, func(ctx context.Context, pipe goredis.Pipeliner) {
		t.s.queueCreate(ctx, pipe, p)
		pipe.HSet(ctx, t.s.nodeKey(p), "data", d)
	})
}

func (t *txn) Delete(path string) {
	p := store.CleanPath(path)
	t.ops = append(t.ops, func(ctx context.Context, pipe goredis.Pipeliner) {
		pipe.Del(ctx, t.s.nodeKey(p), t.s.kidsKey(p))
		pipe.SRem(ctx, t.s.kidsKey(store.ParentPath(p)), store.BaseName(p))
	})
}

func (t *txn) Commit(ctx context.Context) error {
	if t.done {
		return store.ErrTxnDone
	}
	t.done = true
	if len(t.ops) == 0 {
		return nil
	}
	pipe := t.s.rdb.TxPipeline()
	for _, op := range t.ops {
		op(ctx, pipe)
	}
	_, err := pipe.Exec(ctx)
	return err
}

type counter struct {
	s   *Store
	key string
}

func (c *counter) Get(ctx context.Context) (uint64, error) {
	res, err := c.s.rdb.Get(ctx, c.key).Result()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(res, 10, 64)
}

func (c *counter) Increment(ctx context.Context) error {
	return c.s.rdb.Incr(ctx, c.key).Err()
}

// releaseScript deletes the lock key only when it still carries our token,
// so an expired-and-reacquired lock is never released by the old holder.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// lock is a SET NX polling lock with a TTL safety net. Fencing is this
// layer's per-path mutual exclusion, not a general distributed lock service;
// holders should finish well inside LockTTL.
type lock struct {
	s     *Store
	key   string
	token string
}

func (l *lock) Acquire(ctx context.Context) error {
	tok := make([]byte, 16)
	if _, err := rand.Read(tok); err != nil {
		return err
	}
	l.token = hex.EncodeToString(tok)

	for {
		ok, err := l.s.rdb.SetNX(ctx, l.key, l.token, l.s.lockTTL).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.s.lockPoll):
		}
	}
}

func (l *lock) Release() error {
	if l.token == "" {
		return store.ErrNotHeld
	}
	tok := l.token
	l.token = ""
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return releaseScript.Run(ctx, l.s.rdb, []string{l.key}, tok).Err()
}
