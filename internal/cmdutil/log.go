package cmdutil

import (
	"github.com/trustbloc/logutil-go/pkg/log"

	"lumen.dev/sdk/internal/logfields"
)

const (
	// LogLevelFlagName is the flag name used for setting the default log level.
	LogLevelFlagName = "log-level"
	// LogLevelEnvKey is the env var name used for setting the default log level.
	LogLevelEnvKey = "LOG_LEVEL"
	// LogLevelFlagShorthand is the shorthand flag name used for setting the default log level.
	LogLevelFlagShorthand = "l"
	// LogLevelFlagUsage is the usage text for the log level flag.
	LogLevelFlagUsage = "Sets logging levels for individual modules as well as the default level. " +
		"The format of the string is as follows: module1=level1:module2=level2:defaultLevel. " +
		"Supported levels are: ERROR, WARNING, INFO, DEBUG. " +
		"Example: lumen-relay=DEBUG:lumen-client=INFO:WARNING. " +
		"Alternatively, this can be set with the following environment variable: " + LogLevelEnvKey

	logSpecErrorMsg = `Invalid log spec. It needs to be in the following format: "ModuleName1=Level1` +
		`:ModuleName2=Level2:ModuleNameN=LevelN:AllOtherModuleDefaultLevel"
Valid log levels: critical,error,warn,info,debug
Error: %s`
)

var logger = log.New("lumen-cmd")

// SetLogLevels sets the log levels for individual modules as well as the
// default level. An invalid spec falls back to def.
func SetLogLevels(logSpec string, def log.Level) {
	if logSpec == "" {
		log.SetDefaultLevel(def)
		return
	}

	if err := log.SetSpec(logSpec); err != nil {
		logger.Warn(logSpecErrorMsg, log.WithError(err))

		log.SetDefaultLevel(def)
	} else {
		logger.Debug("Successfully set log levels", logfields.WithLogSpec(log.GetSpec()))
	}
}
