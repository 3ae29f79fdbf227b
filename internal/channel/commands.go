package channel

import (
	"log/slog"

	"github.com/wrongjunior/storybridge/internal/domain"
)

// CommandChannel доставляет команды сюжетного слоя игровому слою.
// Производителей может быть несколько, потребитель один - игровой цикл.
type CommandChannel struct {
	q      *queue[domain.Command]
	opts   Options
	logger *slog.Logger
}

// NewCommandChannel создаёт канал команд.
func NewCommandChannel(opts Options, logger *slog.Logger) *CommandChannel {
	return &CommandChannel{
		q:      newQueue[domain.Command](opts, nil),
		opts:   opts,
		logger: logger,
	}
}

// Request ставит команду в очередь. Не блокирует; после закрытия - domain.ErrChannelClosed.
func (c *CommandChannel) Request(cmd domain.Command) error {
	dropped, err := c.q.push(cmd)
	if err != nil {
		return err
	}
	if dropped {
		c.logger.Warn("Command queue overflow", "command", cmd.String(), "policy", c.opts.Overflow)
	}
	c.logger.Debug("Command requested", "id", cmd.ID, "command", cmd.String())
	return nil
}

// Drain забирает все команды, накопившиеся с прошлого вызова, в порядке запроса.
// Пустой срез - команд нет. После закрытия и выдачи остатка - domain.ErrChannelClosed.
func (c *CommandChannel) Drain() ([]domain.Command, error) {
	return c.q.popAll()
}

// Wait возвращает канал готовности очереди команд.
func (c *CommandChannel) Wait() <-chan struct{} {
	return c.q.wait()
}

// Close закрывает канал. Повторный вызов безопасен.
func (c *CommandChannel) Close() {
	if c.q.close() {
		c.logger.Info("Command channel closed")
	}
}

// Closed сообщает, закрыт ли канал.
func (c *CommandChannel) Closed() bool {
	return c.q.isClosed()
}

// Stats возвращает счётчики очереди команд.
func (c *CommandChannel) Stats() Stats {
	return c.q.snapshotStats()
}
