// Package log provides keva's structured logging facade.
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context, rendered through a formatter/outputs
// pipeline.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("server"))
//	l.Info("server started", log.Str("http", ":8080"))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config (level and
// text/json format). RedirectStdLog routes stdlib log output through the
// same pipeline.
package log
