package payment

import (
	"github.com/smallbiznis/partnerly/internal/payment/consumer"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.consumer",
	fx.Provide(consumer.NewService),
)
