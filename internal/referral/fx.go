package referral

import (
	"github.com/smallbiznis/partnerly/internal/referral/service"
	"go.uber.org/fx"
)

var Module = fx.Module("referral.service",
	fx.Provide(service.NewService),
)
