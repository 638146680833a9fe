package cart

import (
	"context"
	"sync"
)

// accountLocks はアカウント単位の排他制御。
// 待機中にコンテキストがキャンセルされた場合はロックを取得せずに戻る。
type accountLocks struct {
	mu    sync.Mutex
	locks map[int]*accountLock
}

type accountLock struct {
	ch   chan struct{}
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[int]*accountLock)}
}

// acquire はアカウントのロックを取得し、解放関数を返す。
func (l *accountLocks) acquire(ctx context.Context, accountID int) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[accountID]
	if !ok {
		lk = &accountLock{ch: make(chan struct{}, 1)}
		l.locks[accountID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
		return func() {
			<-lk.ch
			l.release(accountID, lk)
		}, nil
	case <-ctx.Done():
		l.release(accountID, lk)
		return nil, ctx.Err()
	}
}

func (l *accountLocks) release(accountID int, lk *accountLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, accountID)
	}
}
