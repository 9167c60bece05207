package tenant

import (
	"errors"
	"time"

	"github.com/comptoirhq/comptoir/internal/channel"
)

// ErrNotFound is returned when no active channel account matches an inbound
// routing hint and no degraded default is configured.
var ErrNotFound = errors.New("no channel account matches routing hint")

// Tenant is an isolated business account owning one data partition. Tenants
// are created out-of-band and are read-only to this pipeline.
type Tenant struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// ChannelAccount is one configured external channel endpoint belonging to a
// tenant. The routing key is unique per channel kind across all tenants;
// inbound webhooks carry no tenant id and are resolved by routing key alone.
type ChannelAccount struct {
	ID             string
	TenantID       string
	Kind           channel.Kind
	RoutingKey     string
	DelegatedMode  bool
	AutoReply      bool
	Active         bool
	CredentialsRef string
}

// Resolution pairs a tenant with the channel account that matched.
type Resolution struct {
	Tenant  Tenant
	Account ChannelAccount
	// Degraded is true when the resolution fell back to the configured
	// default account because no routing key matched.
	Degraded bool
}
