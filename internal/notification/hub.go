package notification

import (
	"sync"

	notificationdb "github.com/WhoIsVera/real-time-notifications-system/internal/notification/db"
)

// Hub は通知のマルチキャスト配信を行うブロードキャストハブ。
// 公開された通知を現在の全購読者へそれぞれ独立に配信する。
// 公開はノンブロッキングで、遅い購読者がいても他の購読者や公開側を
// 停止させない。購読開始前に公開された通知は配信されない（リプレイなし）。
// プロセス起動時に1つだけ生成され、スキャナーとストリーミングエンドポイントに
// 注入されて共有される。
type Hub struct {
	// mu は購読者セットへの並行アクセスを保護するミューテックス。
	mu sync.Mutex
	// nextID は購読者に割り当てる連番。
	nextID int64
	// subscribers は現在アクティブな購読者のセット。
	subscribers map[int64]*Subscription
}

// NewHub は新しいブロードキャストハブを生成する。
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[int64]*Subscription),
	}
}

// Publish は通知を現在の全購読者へ配信する。
// 各購読者のバッファに追加するだけなので呼び出し側はブロックされない。
// 配信確認は行わない（fire-and-forget）。
func (h *Hub) Publish(n notificationdb.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subscribers {
		sub.enqueue(n)
	}
}

// Subscribe は新しい購読を開始する。
// 購読開始より前に公開された通知は受信されない。
// 使い終わったら必ずCloseを呼ぶこと。
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		hub:  h,
		out:  make(chan notificationdb.Notification),
		done: make(chan struct{}),
	}
	sub.cond = sync.NewCond(&sub.mu)

	h.mu.Lock()
	h.nextID++
	sub.id = h.nextID
	h.subscribers[sub.id] = sub
	h.mu.Unlock()

	go sub.pump()
	return sub
}

// Shutdown は全購読を終了する。プロセス停止時に呼び出す。
func (h *Hub) Shutdown() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// remove は購読者セットから指定IDの購読を取り除く。
func (h *Hub) remove(id int64) {
	h.mu.Lock()
	delete(h.subscribers, id)
	h.mu.Unlock()
}

// Subscription はハブへの1つの購読を表す。
// 公開された通知は購読ごとのバッファに蓄積され、Receiveのチャネルから
// 公開順に読み出せる。バッファに上限はないため、読み出しが長時間
// 停止したままだとメモリを消費し続ける。
type Subscription struct {
	// hub は購読元のハブ。
	hub *Hub
	// id はハブ内での購読者ID。
	id int64
	// mu はバッファとクローズ状態を保護するミューテックス。
	mu sync.Mutex
	// cond はバッファへの追加をポンプに通知する条件変数。
	cond *sync.Cond
	// queue は未読み出しの通知バッファ（公開順）。
	queue []notificationdb.Notification
	// closed は購読が終了済みかどうか。
	closed bool
	// out は読み出し側へ通知を渡すチャネル。
	out chan notificationdb.Notification
	// done はポンプの送信待ちを解除するためのチャネル。
	done chan struct{}
}

// Receive は公開された通知を公開順に受信するチャネルを返す。
// 購読が終了するとチャネルはクローズされる。
func (s *Subscription) Receive() <-chan notificationdb.Notification {
	return s.out
}

// Close は購読を終了し、ハブから登録を解除する。
// バッファに残っている未読み出しの通知は破棄される。複数回呼んでも安全。
func (s *Subscription) Close() {
	s.hub.remove(s.id)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.cond.Broadcast()
	s.mu.Unlock()
}

// enqueue は通知をバッファ末尾に追加してポンプを起こす。
func (s *Subscription) enqueue(n notificationdb.Notification) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, n)
	s.cond.Signal()
	s.mu.Unlock()
}

// pump はバッファから通知を取り出して読み出しチャネルへ送り続ける。
// 購読ごとに1つのゴルーチンとして動作する。
func (s *Subscription) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		n := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- n:
		case <-s.done:
			return
		}
	}
}
