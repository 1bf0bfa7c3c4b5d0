package logging

import (
	"go.uber.org/zap"
)

// Sugared is the logger type handed to every component
type Sugared = *zap.SugaredLogger

// New builds the process logger. Anything other than "prod" gets the
// human-readable development encoder.
func New(env string) Sugared {
	var z *zap.Logger
	if env == "prod" {
		z, _ = zap.NewProduction()
	} else {
		z, _ = zap.NewDevelopment()
	}
	return z.Sugar()
}
