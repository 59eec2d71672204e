package cli

import "go.uber.org/zap"

// newLogger builds the command logger: a JSON debug logger to stderr
// when verbose, a no-op logger otherwise.
func newLogger(g *Globals) *zap.Logger {
	if g == nil || !g.Verbose {
		return zap.NewNop()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
