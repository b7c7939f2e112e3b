// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package debug configures logging and the profiling endpoint of wsrpc commands.
package debug

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sunyihoo/go-wsrpc/internal/flags"
	"github.com/sunyihoo/go-wsrpc/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	verbosityFlag = &cli.IntFlag{
		Name:     "verbosity",
		Usage:    "Logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace (frames on the wire)",
		Value:    3,
		Category: flags.LoggingCategory,
	}
	logVmoduleFlag = &cli.StringFlag{
		Name:     "log.vmodule",
		Usage:    "Per-file verbosity: comma-separated list of <pattern>=<level> (e.g. rpc/*=5,websocket.go=4)",
		Category: flags.LoggingCategory,
	}
	logFormatFlag = &cli.StringFlag{
		Name:     "log.format",
		Usage:    "Log format to use (json|logfmt|terminal)",
		Category: flags.LoggingCategory,
	}
	logFileFlag = &flags.PathFlag{
		Name:     "log.file",
		Usage:    "Also write logs to this file",
		Category: flags.LoggingCategory,
	}
	logRotateFlag = &cli.BoolFlag{
		Name:     "log.rotate",
		Usage:    "Rotate the log file",
		Category: flags.LoggingCategory,
	}
	logMaxSizeMBsFlag = &cli.IntFlag{
		Name:     "log.maxsize",
		Usage:    "Size in MB at which a rotated log file is cut",
		Value:    100,
		Category: flags.LoggingCategory,
	}
	logMaxBackupsFlag = &cli.IntFlag{
		Name:     "log.maxbackups",
		Usage:    "Number of rotated log files to keep",
		Value:    10,
		Category: flags.LoggingCategory,
	}
	logMaxAgeFlag = &cli.IntFlag{
		Name:     "log.maxage",
		Usage:    "Days to keep rotated log files",
		Value:    30,
		Category: flags.LoggingCategory,
	}
	logCompressFlag = &cli.BoolFlag{
		Name:     "log.compress",
		Usage:    "Gzip rotated log files",
		Category: flags.LoggingCategory,
	}
	pprofFlag = &cli.BoolFlag{
		Name:     "pprof",
		Usage:    "Serve pprof and transport metrics over HTTP",
		Category: flags.MetricsCategory,
	}
	pprofPortFlag = &cli.IntFlag{
		Name:     "pprof.port",
		Usage:    "Port of the pprof HTTP server",
		Value:    6060,
		Category: flags.MetricsCategory,
	}
	pprofAddrFlag = &cli.StringFlag{
		Name:     "pprof.addr",
		Usage:    "Listening interface of the pprof HTTP server",
		Value:    "127.0.0.1",
		Category: flags.MetricsCategory,
	}
)

// Flags holds all command-line flags required for debugging.
var Flags = []cli.Flag{
	verbosityFlag,
	logVmoduleFlag,
	logFormatFlag,
	logFileFlag,
	logRotateFlag,
	logMaxSizeMBsFlag,
	logMaxBackupsFlag,
	logMaxAgeFlag,
	logCompressFlag,
	pprofFlag,
	pprofAddrFlag,
	pprofPortFlag,
}

var (
	glogger       *log.GlogHandler
	logOutputFile io.WriteCloser
)

func init() {
	glogger = log.NewGlogHandler(log.NewTerminalHandler(os.Stderr, false))
}

// Setup initializes logging and profiling based on the CLI flags.
// It should be called as early as possible in the program.
func Setup(ctx *cli.Context) error {
	file, err := openLogFile(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize file logger: %v", err)
	}
	logOutputFile = file

	handler, err := newHandler(ctx.String(logFormatFlag.Name), file)
	if err != nil {
		return err
	}
	glogger = log.NewGlogHandler(handler)
	glogger.Verbosity(log.FromLegacyLevel(ctx.Int(verbosityFlag.Name)))
	if err := glogger.Vmodule(ctx.String(logVmoduleFlag.Name)); err != nil {
		return fmt.Errorf("invalid --%s: %w", logVmoduleFlag.Name, err)
	}
	log.SetDefault(log.NewLogger(glogger))

	if file != nil {
		log.Info("Logging configured", "format", ctx.String(logFormatFlag.Name),
			"location", ctx.String(logFileFlag.Name), "rotate", ctx.Bool(logRotateFlag.Name))
	}
	if ctx.Bool(pprofFlag.Name) {
		address := net.JoinHostPort(ctx.String(pprofAddrFlag.Name), strconv.Itoa(ctx.Int(pprofPortFlag.Name)))
		StartPProf(address, prometheus.DefaultGatherer)
	}
	return nil
}

// openLogFile opens the --log.file target, behind lumberjack when rotation is
// on. It returns nil when logs only go to the terminal.
func openLogFile(ctx *cli.Context) (io.WriteCloser, error) {
	path := ctx.String(logFileFlag.Name)
	if path != "" {
		if err := validateLogLocation(filepath.Dir(path)); err != nil {
			return nil, err
		}
	}
	if ctx.Bool(logRotateFlag.Name) {
		// An empty file name makes lumberjack log to <processname>-lumberjack.log
		// in os.TempDir().
		return &lumberjack.Logger{
			Filename:   path,
			MaxSize:    ctx.Int(logMaxSizeMBsFlag.Name),
			MaxBackups: ctx.Int(logMaxBackupsFlag.Name),
			MaxAge:     ctx.Int(logMaxAgeFlag.Name),
			Compress:   ctx.Bool(logCompressFlag.Name),
		}, nil
	}
	if path == "" {
		return nil, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

// newHandler creates the handler for the given format. Records go to stderr,
// and to file as well when it is set. Only the terminal format is colored, and
// only on a terminal.
func newHandler(format string, file io.Writer) (slog.Handler, error) {
	output := func(term io.Writer) io.Writer {
		if file == nil {
			return term
		}
		return io.MultiWriter(file, term)
	}
	switch format {
	case "json":
		return log.JSONHandler(output(os.Stderr)), nil
	case "logfmt":
		return log.LogfmtHandler(output(os.Stderr)), nil
	case "", "terminal":
		fd := os.Stderr.Fd()
		useColor := (isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)) && os.Getenv("TERM") != "dumb"
		if useColor {
			return log.NewTerminalHandler(output(colorable.NewColorableStderr()), true), nil
		}
		return log.NewTerminalHandler(output(os.Stderr), false), nil
	default:
		return nil, fmt.Errorf("unknown log format: %v", format)
	}
}

// StartPProf starts the pprof HTTP server. Metrics of the given gatherer are
// served under /debug/metrics/prometheus.
func StartPProf(address string, gatherer prometheus.Gatherer) {
	if gatherer != nil {
		http.Handle("/debug/metrics/prometheus", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	log.Info("Starting pprof server", "addr", fmt.Sprintf("http://%s/debug/pprof", address))
	go func() {
		if err := http.ListenAndServe(address, nil); err != nil {
			log.Error("Failure in running pprof server", "err", err)
		}
	}()
}

// Exit flushes and closes the log file.
func Exit() {
	if logOutputFile != nil {
		logOutputFile.Close()
		logOutputFile = nil
	}
}

// validateLogLocation checks that the log directory exists or can be created,
// and that it is writable.
func validateLogLocation(path string) error {
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return fmt.Errorf("error creating the directory: %w", err)
	}
	f, err := os.CreateTemp(path, ".wsrpc-log-check-*")
	if err != nil {
		return err
	}
	f.Close()
	return os.Remove(f.Name())
}
