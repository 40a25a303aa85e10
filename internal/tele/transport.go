package tele

import (
	"context"

	tele_config "github.com/temoto/portal/internal/tele/config"
	"github.com/temoto/portal/log2"
)

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - Send* deliver within timeout or fail; success includes ack from broker
// - hide "connection" concept from upstream API or errors; transport delivers messages at least once
// - application may start without network available
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willPayload []byte) error
	SendState(payload []byte) bool
	SendValues(payload []byte) bool
	SendError(payload []byte) bool
	Close()
}
