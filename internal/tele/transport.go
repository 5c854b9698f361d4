package tele

import (
	"context"

	"github.com/aps-lab/actuator/log2"
	tele_api "github.com/aps-lab/actuator/tele"
	tele_config "github.com/aps-lab/actuator/tele/config"
)

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - Send* returns false when message should be retried later
// - application may start without network available
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willPayload []byte) error
	SendState(payload []byte) bool
	SendEvent(e *tele_api.Event, payload []byte) bool
	Close()
}
