// Пакет notify — упорядоченная доставка событий подписчикам.
//
// Dispatcher доставляет каждое опубликованное значение всем подписчикам
// в порядке публикации, без схлопывания. Доставка идёт в отдельной горутине,
// поэтому подписчик может обращаться к источнику событий без взаимоблокировки.
package notify

import "sync"

type entry[T any] struct {
	id uint64
	fn func(T)
}

// Dispatcher — очередь событий с фоновой доставкой.
type Dispatcher[T any] struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []T
	listeners []entry[T]
	nextID    uint64
	running   bool
	stopping  bool
	done      chan struct{}
}

// New создаёт Dispatcher. Доставка начинается после Start.
func New[T any]() *Dispatcher[T] {
	d := &Dispatcher[T]{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Subscribe добавляет подписчика и возвращает функцию отписки.
// Подписчики вызываются в порядке подписки.
func (d *Dispatcher[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, entry[T]{id: id, fn: fn})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, e := range d.listeners {
				if e.id == id {
					d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish ставит значение в очередь доставки.
// После Stop значения отбрасываются.
func (d *Dispatcher[T]) Publish(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopping {
		return
	}
	d.queue = append(d.queue, v)
	d.cond.Signal()
}

// Start запускает горутину доставки. Повторный вызов ничего не делает.
func (d *Dispatcher[T]) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running || d.stopping {
		return
	}
	d.running = true
	go d.loop()
}

// Stop доставляет уже опубликованные значения и останавливает горутину.
// Нельзя вызывать из подписчика.
func (d *Dispatcher[T]) Stop() {
	d.mu.Lock()
	if d.stopping {
		running := d.running
		d.mu.Unlock()
		if running {
			<-d.done
		}
		return
	}
	d.stopping = true
	running := d.running
	d.cond.Broadcast()
	d.mu.Unlock()

	if running {
		<-d.done
	}
}

func (d *Dispatcher[T]) loop() {
	defer close(d.done)

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.stopping {
			d.cond.Wait()
		}
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return
		}
		v := d.queue[0]
		var zero T
		d.queue[0] = zero
		d.queue = d.queue[1:]
		listeners := make([]entry[T], len(d.listeners))
		copy(listeners, d.listeners)
		d.mu.Unlock()

		for _, l := range listeners {
			l.fn(v)
		}
	}
}
