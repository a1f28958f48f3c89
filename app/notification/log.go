package notification

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier records notifications in the service log. Used when no broker is configured.
type LogNotifier struct {
	logger logrus.FieldLogger
}

func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, item *Notification) error {
	n.logger.WithFields(logrus.Fields{
		"type":      item.Type,
		"recipient": item.Recipient,
		"data":      item.Data,
	}).Info("notification_skipped_no_broker")
	return nil
}
