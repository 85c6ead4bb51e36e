package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shellbound/focuscircle/internal/clock"
	"github.com/shellbound/focuscircle/internal/config"
	"github.com/shellbound/focuscircle/internal/observability"
	"github.com/shellbound/focuscircle/internal/server"
	"github.com/shellbound/focuscircle/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		server.Module,
	)

	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}
	return node, nil
}
