// watcher.go
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
	"sync"
	"time"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/api/equality"
)

// configurationApplier receives the configurations read from disk.
type configurationApplier interface {
	ApplyConfiguration(configuration *api.ViewerConfiguration)
}

// ConfigurationWatcher keeps a viewer in sync with a configuration file.
type ConfigurationWatcher struct {
	// ConfigFile defines the path to the viewer configuration file.
	ConfigFile string

	// ActiveConfiguration defines the active viewer configuration.
	ActiveConfiguration *api.ViewerConfiguration

	// LastConfigurationTime is the last time we successfully reloaded the
	// configuration file.
	LastConfigurationTime time.Time

	// Mutex defines a mutex around working with configuration.
	Mutex sync.Mutex

	// Logger is the logger instance for this watcher.
	Logger logr.Logger

	applier configurationApplier
	metrics *metrics
}

// NewConfigurationWatcher returns a watcher that hands every changed
// configuration in configFile to applier. The metrics may be nil.
func NewConfigurationWatcher(logger logr.Logger, configFile string, applier configurationApplier, metrics *metrics) *ConfigurationWatcher {
	return &ConfigurationWatcher{
		ConfigFile: configFile,
		Logger:     logger.WithValues("area", "watcher", "configFile", configFile),
		applier:    applier,
		metrics:    metrics,
	}
}

// LoadConfiguration loads the latest configuration from the config file.
// A file that cannot be read keeps the active configuration.
func (watcher *ConfigurationWatcher) LoadConfiguration() {
	configuration, err := api.LoadViewerConfiguration(watcher.ConfigFile)
	if err != nil {
		watcher.Logger.Error(err, "Error loading viewer configuration")
		return
	}

	watcher.acceptConfiguration(configuration)
}

// acceptConfiguration is called when the watcher has loaded a configuration
// from the config file.
func (watcher *ConfigurationWatcher) acceptConfiguration(configuration *api.ViewerConfiguration) {
	watcher.Mutex.Lock()
	defer watcher.Mutex.Unlock()

	// Editors often write a file more than once per save.
	if equality.Semantic.DeepEqual(watcher.ActiveConfiguration, configuration) {
		return
	}

	watcher.Logger.Info("Received new configuration file", "configuration", configuration)
	watcher.ActiveConfiguration = configuration
	watcher.LastConfigurationTime = time.Now()
	if watcher.metrics != nil {
		watcher.metrics.registerConfigurationChange()
	}

	watcher.applier.ApplyConfiguration(configuration)
}

// WatchConfiguration detects changes to the config file until ctx is done or
// the watcher is closed.
func (watcher *ConfigurationWatcher) WatchConfiguration(ctx context.Context, fileWatcher *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fileWatcher.Events:
			if !ok {
				return nil
			}

			watcher.Logger.V(1).Info("Detected event on viewer configuration file", "event", event)
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				watcher.LoadConfiguration()
			} else if event.Op&fsnotify.Remove == fsnotify.Remove {
				// Atomic saves replace the file, which drops the watch.
				err := fileWatcher.Add(event.Name)
				if err != nil {
					watcher.Logger.Error(err, "Error watching the replaced configuration file")
					continue
				}
				watcher.LoadConfiguration()
			}
		case err, ok := <-fileWatcher.Errors:
			if !ok {
				return nil
			}
			watcher.Logger.Error(err, "Error watching for file system events")
		}
	}
}

// Watch loads the config file once and then follows its changes until ctx
// is done.
func (watcher *ConfigurationWatcher) Watch(ctx context.Context) error {
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		closeErr := fileWatcher.Close()
		if closeErr != nil {
			watcher.Logger.Error(closeErr, "could not close file watcher")
		}
	}()

	watcher.Logger.Info("adding watch for file")
	err = fileWatcher.Add(watcher.ConfigFile)
	if err != nil {
		return err
	}

	watcher.LoadConfiguration()
	return watcher.WatchConfiguration(ctx, fileWatcher)
}
