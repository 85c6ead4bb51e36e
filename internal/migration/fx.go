package migration

import (
	circledomain "github.com/shellbound/focuscircle/internal/circle/domain"
	"github.com/shellbound/focuscircle/internal/config"
	memberdomain "github.com/shellbound/focuscircle/internal/member/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// Versioned SQL migrations for postgres; sqlite and mysql rely
		// on AutoMigrate, which also keeps in-memory test databases
		// schema-complete. AutoMigrate cannot express the partial
		// unique index on live invite codes, so on those dialects code
		// uniqueness rests on the pre-insert check in circle creation.
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}
		return conn.AutoMigrate(
			&circledomain.Circle{},
			&memberdomain.Member{},
		)
	}),
)
