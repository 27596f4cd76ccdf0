// Package logger sets up subsystem-tagged logging, mirroring the shape of
// daglabs-btcd's logger/logger.go (a package-level backend, one Logger per
// subsystem tag, log-rotation to a file alongside stdout), built directly
// on github.com/decred/slog and github.com/jrick/logrotate the way
// daglabs-btcd's own stack does.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

var (
	backendLog *slog.Backend
	logRotator *rotator.Rotator

	subsystemLoggers = map[string]slog.Logger{}
	initiated        bool
)

// SubsystemTags names every subsystem this node logs under, parallel to
// daglabs-btcd's SubsystemTags enum.
var SubsystemTags = struct {
	NODE, CNFG, STOR, UTXO, TXMP, CNSN, PEER, SYNC, HTTP string
}{
	NODE: "NODE",
	CNFG: "CNFG",
	STOR: "STOR",
	UTXO: "UTXO",
	TXMP: "TXMP",
	CNSN: "CNSN",
	PEER: "PEER",
	SYNC: "SYNC",
	HTTP: "HTTP",
}

type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if initiated {
		return logRotator.Write(p)
	}
	return len(p), nil
}

// Init opens the log file rotator and creates every subsystem logger at
// the requested level. Must be called once during startup before any
// subsystem logger is used for file output.
func Init(logFile string, level string) {
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		os.Stderr.WriteString("failed to create log directory: " + err.Error() + "\n")
		os.Exit(1)
	}
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		os.Stderr.WriteString("failed to create log rotator: " + err.Error() + "\n")
		os.Exit(1)
	}
	logRotator = r
	initiated = true

	backendLog = slog.NewBackend(logWriter{})
	for _, tag := range []string{
		SubsystemTags.NODE, SubsystemTags.CNFG, SubsystemTags.STOR, SubsystemTags.UTXO,
		SubsystemTags.TXMP, SubsystemTags.CNSN, SubsystemTags.PEER, SubsystemTags.SYNC, SubsystemTags.HTTP,
	} {
		subsystemLoggers[tag] = backendLog.Logger(tag)
	}
	SetLogLevels(level)
}

// NewTestBackend wires subsystem loggers straight to w, for tests and for
// fallback operation before Init runs.
func NewTestBackend(w io.Writer) {
	backendLog = slog.NewBackend(w)
	for _, tag := range []string{
		SubsystemTags.NODE, SubsystemTags.CNFG, SubsystemTags.STOR, SubsystemTags.UTXO,
		SubsystemTags.TXMP, SubsystemTags.CNSN, SubsystemTags.PEER, SubsystemTags.SYNC, SubsystemTags.HTTP,
	} {
		subsystemLoggers[tag] = backendLog.Logger(tag)
	}
}

// Get returns the logger for tag, creating a discard logger lazily if Init
// was never called (keeps library code safe to use from tests).
func Get(tag string) slog.Logger {
	if l, ok := subsystemLoggers[tag]; ok {
		return l
	}
	NewTestBackend(os.Stdout)
	return subsystemLoggers[tag]
}

// SetLogLevels sets every subsystem logger to level, ignoring an invalid
// level string (defaults to info per decred/slog).
func SetLogLevels(level string) {
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		lvl = slog.LevelInfo
	}
	for _, l := range subsystemLoggers {
		l.SetLevel(lvl)
	}
}

// Close flushes and closes the rotator, if one was initialised.
func Close() error {
	if logRotator == nil {
		return nil
	}
	return logRotator.Close()
}
