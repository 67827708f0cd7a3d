package snap

import (
	"sync"
	"time"
)

// Timer 可停止的定时器；*time.Timer 满足该接口
type Timer interface {
	Stop() bool
}

// AfterFunc 定时器工厂，测试中替换为手动触发的假定时器
type AfterFunc func(d time.Duration, f func()) Timer

func realAfter(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// 文档注释：防抖器
// 背景：视口连续平移/缩放会产生一串事件，只在静止 d 之后执行最后一次。
// 约束：再次 Trigger 会停止并重建定时器，而不是叠加；已被取代的回调即使定时器来不及停止也不会执行。
type Debouncer struct {
	mu    sync.Mutex
	d     time.Duration
	after AfterFunc
	t     Timer
	gen   uint64
}

func NewDebouncer(d time.Duration, after AfterFunc) *Debouncer {
	if after == nil {
		after = realAfter
	}
	return &Debouncer{d: d, after: after}
}

// Trigger 安排 f 在静默期后执行
func (db *Debouncer) Trigger(f func()) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.t != nil {
		db.t.Stop()
	}
	db.gen++
	g := db.gen
	db.t = db.after(db.d, func() {
		db.mu.Lock()
		if g != db.gen {
			db.mu.Unlock()
			return
		}
		db.t = nil
		db.mu.Unlock()
		f()
	})
}

// Cancel 丢弃尚未执行的回调
func (db *Debouncer) Cancel() {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.t != nil {
		db.t.Stop()
		db.t = nil
	}
	db.gen++
}

func (db *Debouncer) Pending() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.t != nil
}
