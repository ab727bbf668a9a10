package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/partnerly/internal/affiliate"
	"github.com/smallbiznis/partnerly/internal/audit"
	"github.com/smallbiznis/partnerly/internal/authorization"
	"github.com/smallbiznis/partnerly/internal/billing"
	"github.com/smallbiznis/partnerly/internal/clock"
	"github.com/smallbiznis/partnerly/internal/commission"
	"github.com/smallbiznis/partnerly/internal/config"
	"github.com/smallbiznis/partnerly/internal/dashboard"
	"github.com/smallbiznis/partnerly/internal/directory"
	"github.com/smallbiznis/partnerly/internal/migration"
	"github.com/smallbiznis/partnerly/internal/payment"
	"github.com/smallbiznis/partnerly/internal/payout"
	"github.com/smallbiznis/partnerly/internal/referral"
	"github.com/smallbiznis/partnerly/internal/scheduler"
	"github.com/smallbiznis/partnerly/internal/server"
	"github.com/smallbiznis/partnerly/internal/transfer"
	"github.com/smallbiznis/partnerly/pkg/db"
	"github.com/smallbiznis/partnerly/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		config.ProgramModule,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		authorization.Module,
		audit.Module,
		directory.Module,
		billing.Module,
		affiliate.Module,
		referral.Module,
		commission.Module,
		transfer.Module,
		payout.Module,
		payment.Module,
		dashboard.Module,

		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
