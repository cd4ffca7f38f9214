package logger

import "go.uber.org/zap"

// Init builds the process-wide zap logger and installs it as the
// global, so callers use zap.L() everywhere.
func Init(environment string) error {
	var logger *zap.Logger
	var err error

	if environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(logger)

	return nil
}
