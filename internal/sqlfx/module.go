package sqlfx

import (
	"go.uber.org/fx"
)

var Module = fx.Module(
	"sql",
	fx.Provide(SqliteConfigProvider),
	fx.Provide(OpenSqliteDatabase),
	fx.Provide(BackupsRepository),
	fx.Invoke(CloseSqliteDatabase),
)
