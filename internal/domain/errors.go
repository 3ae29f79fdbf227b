package domain

import "errors"

// ErrChannelClosed возвращается при обращении к закрытому каналу: пир завершил работу.
// Не повторяемая ошибка, сигнал к штатному завершению сессии.
var ErrChannelClosed = errors.New("channel closed")

// ErrMalformed - сообщение на границе транспорта не удалось разобрать.
// До каналов такие сообщения не доходят.
var ErrMalformed = errors.New("malformed message")
