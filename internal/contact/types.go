package contact

import (
	"time"

	"github.com/comptoirhq/comptoir/internal/channel"
)

// Contact is one human sender within a tenant partition. At most one contact
// exists per (tenant, channel identifier); resolution is idempotent.
type Contact struct {
	ID             string
	TenantID       string
	DisplayName    string
	Phone          string
	MessengerID    string
	ChannelSourced bool
	CreatedAt      time.Time
}

// IdentifierField returns which contact column stores sender identifiers for
// the given channel kind.
func IdentifierField(kind channel.Kind) string {
	if kind == channel.KindMessenger {
		return "messenger_id"
	}
	return "phone"
}
