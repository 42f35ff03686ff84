// Package autoload initializes the global logger from LOG_* environment
// variables as a side effect of being imported.
package autoload

import (
	configx "github.com/prachya-t/tickerchat/pkg/config"
	logx "github.com/prachya-t/tickerchat/pkg/logger"
)

func init() {
	conf := configx.MustNew[logx.Config]("LOG")
	logx.Init(*conf)
}
