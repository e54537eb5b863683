package rabbitmq

import "github.com/magabrotheeeer/vpn-shop/internal/models"

// NotificationQueue — очередь, из которой бот читает уведомления.
const NotificationQueue = "vpnshop_notifications"

type QueueConfig struct {
	QueueName   string
	RoutingKeys []string
}

// GetNotificationQueues возвращает очереди уведомлений: по ключу маршрутизации
// на каждый тип события.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{
			QueueName: NotificationQueue,
			RoutingKeys: []string{
				string(models.KindReviewRequested),
				string(models.KindApproved),
				string(models.KindRejected),
				string(models.KindExpired),
			},
		},
	}
}
