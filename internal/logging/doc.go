// Package logging provides file-based logging with rotation. Records
// are written as JSON to ~/.repoinsight/logs/ for debugging and
// troubleshooting.
//
// The CLI always writes the log file. Without --debug the level is
// info and records are also copied to stderr only when stderr is a
// terminal; with --debug the level is debug and records are always
// copied to stderr.
package logging
