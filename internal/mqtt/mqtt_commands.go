package mqtt

import (
	"context"
	"log/slog"
	"time"

	"github.com/eclipse/paho.mqtt.golang"

	"mesh-mac-simulation/internal/commands"
)

// ProcessSendFrame handles messages on the "<prefix>/send" topic. The
// payload is the same JSON the HTTP send endpoint takes.
func ProcessSendFrame(ctx context.Context, inj commands.Injector, log *slog.Logger) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := commands.SendFrame(ctx, inj, msg.Payload()); err != nil {
			log.Warn("mqtt send request rejected", "topic", msg.Topic(), "err", err)
			return
		}
		log.Debug("mqtt send request queued", "topic", msg.Topic())
	}
}
