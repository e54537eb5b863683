package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/vpn-shop/internal/lib/sl"
)

// ConsumerMessage читает очередь queueName и передаёт тела сообщений handler.
// Успешно обработанные сообщения подтверждаются, остальные возвращаются в очередь.
// Возвращает управление сразу, чтение идёт до отмены ctx или закрытия канала.
func ConsumerMessage(ctx context.Context, ch *amqp.Channel, queueName string, log *slog.Logger, handler func([]byte) error) error {
	const op = "rabbitmq.ConsumerMessage"
	delivery, err := ch.Consume(
		queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	go Dispatch(ctx, delivery, log, handler)
	return nil
}

// Acknowledger — подтверждение доставки.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// Dispatch обрабатывает доставки не больше чем в 10 горутинах.
func Dispatch(ctx context.Context, delivery <-chan amqp.Delivery, log *slog.Logger, handler func([]byte) error) {
	sem := make(chan struct{}, 10)
	for {
		select {
		case d, ok := <-delivery:
			if !ok {
				return
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				handle(d.Body, d.Redelivered, d, log, handler)
			}(d)
		case <-ctx.Done():
			return
		}
	}
}

// handle повторно ставит сообщение в очередь только один раз,
// чтобы битое сообщение не крутилось бесконечно.
func handle(body []byte, redelivered bool, ack Acknowledger, log *slog.Logger, handler func([]byte) error) {
	if err := handler(body); err != nil {
		log.Error("failed to handle message", slog.Bool("redelivered", redelivered), sl.Err(err))
		if nackErr := ack.Nack(false, !redelivered); nackErr != nil {
			log.Error("failed to nack message", sl.Err(nackErr))
		}
		return
	}
	if ackErr := ack.Ack(false); ackErr != nil {
		log.Error("failed to ack message", sl.Err(ackErr))
	}
}
