package counts

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Poller периодически вызывает Total. Исходы обрабатываются хранилищем как
// обычные вызовы команды, поэтому медленный ответ не перекрывает более
// свежий.
type Poller struct {
	store    *MessageCountsStore
	interval time.Duration
	logger   *slog.Logger

	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// StartPolling запускает фоновый опрос с интервалом interval. Если interval
// не положителен, используется интервал по умолчанию.
func (m *MessageCountsStore) StartPolling(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	p := &Poller{
		store:    m,
		interval: interval,
		logger:   m.logger,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
	}

	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Poller) run() {
	defer p.wg.Done()
	p.logger.Info("опрос счетчика сообщений запущен", slog.Duration("interval", p.interval))
	for {
		select {
		case <-p.ticker.C:
			p.store.Total(context.Background())
		case <-p.done:
			p.logger.Info("опрос счетчика сообщений остановлен")
			return
		}
	}
}

// Stop останавливает опрос и дожидается завершения фоновой горутины.
// Повторный вызов безопасен.
func (p *Poller) Stop() {
	p.once.Do(func() {
		p.ticker.Stop()
		close(p.done)
	})
	p.wg.Wait()
}
