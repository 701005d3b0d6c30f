package notify

import (
	"facemark/internal/attend"
	"facemark/internal/config"
)

// NewNotifierFromConfig builds the notifier stack described by the alert
// configuration. The returned cleanup disconnects stateful channels and
// is never nil.
func NewNotifierFromConfig(cfg config.AlertsConfig) (attend.Notifier, func(), error) {
	var stack Multi
	cleanup := func() {}

	if cfg.WebhookURL != "" {
		stack = append(stack, NewWebhook(cfg.WebhookURL))
	}

	if cfg.MQTTBroker != "" {
		clientID := cfg.MQTTClientID
		if clientID == "" {
			clientID = "facemark"
		}
		topic := cfg.MQTTTopic
		if topic == "" {
			topic = "facemark/alerts"
		}
		m, err := NewMQTT(cfg.MQTTBroker, clientID, topic)
		if err != nil {
			return nil, cleanup, err
		}
		stack = append(stack, m)
		cleanup = m.Close
	}

	switch len(stack) {
	case 0:
		return attend.NopNotifier{}, cleanup, nil
	case 1:
		return stack[0], cleanup, nil
	default:
		return stack, cleanup, nil
	}
}
