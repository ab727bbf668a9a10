package transfer

import (
	"github.com/smallbiznis/partnerly/internal/config"
	"github.com/smallbiznis/partnerly/internal/transfer/adapters"
	"github.com/smallbiznis/partnerly/internal/transfer/adapters/stripe"
	"github.com/smallbiznis/partnerly/internal/transfer/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("transfer.client",
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactory(),
		)
	}),
	fx.Provide(func(cfg config.Config, registry *adapters.Registry) (domain.Client, error) {
		return registry.NewClient(cfg.TransferProvider, domain.ClientConfig{
			SecretKey:  cfg.StripeSecretKey,
			APIBaseURL: cfg.StripeAPIBaseURL,
		})
	}),
)
