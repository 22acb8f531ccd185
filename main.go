// main.go
//
// This source file is part of the FoundationDB open source project
//
// Copyright 2024 Apple Inc. and the FoundationDB project authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/apple/foundationdb/fdbprofviewer/internal/certloader"
	"github.com/apple/foundationdb/fdbprofviewer/internal/deferred"
	"github.com/apple/foundationdb/fdbprofviewer/internal/server"
	"github.com/apple/foundationdb/fdbprofviewer/internal/tracestore"
	"github.com/apple/foundationdb/fdbprofviewer/internal/tui"
	"github.com/apple/foundationdb/fdbprofviewer/internal/viewer"
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	executionModeString string
	tracePath           string
	storeDir            string
	sources             []string
	listenAddress       string
	metricsAddress      string
	configFile          string
	logPath             string
	verbosity           int
	tickInterval        time.Duration
	enablePprof         bool
	tlsCertFile         string
	tlsKeyFile          string
)

type executionMode string

const (
	executionModeIndex executionMode = "index"
	executionModeServe executionMode = "serve"
	executionModeView  executionMode = "view"
)

func main() {
	pflag.StringVar(&executionModeString, "mode", "view", "Execution mode. Valid options are index, serve, and view")
	pflag.StringVar(&tracePath, "trace", "", "Path to a YAML or JSON trace file, used in index mode")
	pflag.StringVar(&storeDir, "store", "trace.store", "Directory of the trace store that is written in index mode and served in serve mode")
	pflag.StringArrayVar(&sources, "source", nil, "A trace to open in view mode, either a trace store directory or the http(s) URL of a tile server. Each source gets its own window")
	pflag.StringVar(&listenAddress, "listen-address", ":8080", "Listen address for the tile server")
	pflag.StringVar(&metricsAddress, "metrics-address", "", "Listen address for the prometheus metrics. If this is blank, metrics are not exposed")
	pflag.StringVar(&configFile, "config", "", "Path to a viewer configuration file that is watched for changes in view mode")
	pflag.StringVar(&logPath, "log-path", "", "Name of a file to send logs to. Logs will be sent to stdout in addition the file you pass in this argument, except in view mode where the terminal is taken by the viewer")
	pflag.IntVar(&verbosity, "verbosity", 0, "Log verbosity, higher values log more details")
	pflag.DurationVar(&tickInterval, "tick-interval", tui.DefaultTickInterval, "Time between two frames of the viewer")
	pflag.BoolVar(&enablePprof, "enable-pprof", false, "Enables /debug/pprof endpoints on the metrics listener")
	pflag.StringVar(&tlsCertFile, "tls-cert-file", "", "Certificate for the tile server. If this and --tls-key-file are set, the tile server serves HTTPS and reloads the pair when the key file changes")
	pflag.StringVar(&tlsKeyFile, "tls-key-file", "", "Private key for the tile server certificate")
	pflag.Parse()

	mode := executionMode(executionModeString)
	zapLogger, err := newZapLogger(logPath, verbosity, mode != executionModeView)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = zapLogger.Sync()
	}()
	logger := zapr.NewLogger(zapLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch mode {
	case executionModeIndex:
		err = runIndex(ctx, logger)
	case executionModeServe:
		err = runServe(ctx, logger)
	case executionModeView:
		err = runView(ctx, logger)
	default:
		logger.Error(nil, "Unknown execution mode", "mode", mode)
		os.Exit(1)
	}

	if err != nil {
		logger.Error(err, "Error running", "mode", mode)
		_ = zapLogger.Sync()
		os.Exit(1)
	}
}

// newZapLogger builds the production logger. A non-empty logPath adds a
// rotating file sink, stdout controls whether logs go to stdout as well.
func newZapLogger(logPath string, verbosity int, stdout bool) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))

	if logPath == "" {
		if !stdout {
			return zap.NewNop(), nil
		}
		return zapConfig.Build()
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zapConfig.EncoderConfig),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    100,
			MaxBackups: 5,
			Compress:   true,
		}),
		zapConfig.Level,
	)
	if !stdout {
		return zap.New(fileCore, zap.AddCaller()), nil
	}

	return zapConfig.Build(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))
}

// newRegistry returns a registry with the default go metrics and a mux that
// exposes it.
func newRegistry() (*prometheus.Registry, *http.ServeMux) {
	mux := http.NewServeMux()
	if enablePprof {
		mux.Handle("/debug/pprof/heap", pprof.Handler("heap"))
		mux.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
		mux.Handle("/debug/pprof/block", pprof.Handler("block"))
		mux.Handle("/debug/pprof/mutex", pprof.Handler("mutex"))
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	reg := prometheus.NewRegistry()
	// Enable the default go metrics.
	reg.MustRegister(collectors.NewGoCollector())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return reg, mux
}

func runIndex(ctx context.Context, logger logr.Logger) error {
	if tracePath == "" {
		return errors.New("--trace is required in index mode")
	}

	trace, err := tracestore.LoadTrace(tracePath)
	if err != nil {
		return err
	}

	start := time.Now()
	store, err := tracestore.Create(ctx, logger, storeDir, nil, trace, tracePath)
	if err != nil {
		return err
	}
	info := store.Info()
	logger.Info("Indexed trace", "trace", tracePath, "store", storeDir, "interval", info.Interval.String(), "nodes", info.EntryInfo.Nodes(), "duration", time.Since(start))

	return store.Close()
}

func runServe(ctx context.Context, logger logr.Logger) error {
	store, err := tracestore.Open(logger, storeDir, nil)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := store.Close()
		if closeErr != nil {
			logger.Error(closeErr, "could not close trace store")
		}
	}()

	var tlsConfig *tls.Config
	if tlsCertFile != "" || tlsKeyFile != "" {
		tlsConfig, err = certloader.NewCertLoader(logger, tlsCertFile, tlsKeyFile).TLSConfig()
		if err != nil {
			return err
		}
	}

	reg, mux := newRegistry()
	tileServer := server.New(logger, store, reg)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.ListenAndServe(groupCtx, logger.WithValues("listener", "tiles"), listenAddress, tileServer, tlsConfig)
	})
	if metricsAddress != "" {
		group.Go(func() error {
			return server.ListenAndServe(groupCtx, logger.WithValues("listener", "metrics"), metricsAddress, mux, nil)
		})
	}

	return group.Wait()
}

func runView(ctx context.Context, logger logr.Logger) error {
	if len(sources) == 0 {
		return errors.New("at least one --source is required in view mode")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg, mux := newRegistry()
	viewerMetrics := registerMetrics(reg)
	traceViewer := viewer.New(logger, viewerMetrics)

	for _, source := range sources {
		if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
			logger.Info("Opening tile server", "source", source)
			traceViewer.AddDataSource(deferred.NewHTTPSource(ctx, logger, source, &http.Client{Timeout: 30 * time.Second}))
			continue
		}

		logger.Info("Opening trace store", "source", source)
		store, err := tracestore.Open(logger, source, nil)
		if err != nil {
			return err
		}
		defer func() {
			closeErr := store.Close()
			if closeErr != nil {
				logger.Error(closeErr, "could not close trace store", "source", source)
			}
		}()
		traceViewer.AddDataSource(deferred.NewWrapper(ctx, logger, store))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	if configFile != "" {
		watcher := NewConfigurationWatcher(logger, configFile, traceViewer, viewerMetrics)
		group.Go(func() error {
			return watcher.Watch(groupCtx)
		})
	}
	if metricsAddress != "" {
		group.Go(func() error {
			return server.ListenAndServe(groupCtx, logger.WithValues("listener", "metrics"), metricsAddress, mux, nil)
		})
	}
	group.Go(func() error {
		defer cancel()
		return tui.Run(groupCtx, traceViewer, logger, tickInterval)
	})

	err := group.Wait()
	traceViewer.Close()
	return err
}
