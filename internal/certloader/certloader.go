// certloader.go
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

// Package certloader serves TLS certificates that are reloaded when the key
// file changes on disk.
package certloader

import (
	"crypto/tls"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// CertLoader loads a certificate key pair and caches it until the key file
// is modified.
type CertLoader struct {
	// CertFile is the path to the PEM encoded certificate.
	CertFile string
	// KeyFile is the path to the PEM encoded private key.
	KeyFile string

	lock sync.Mutex
	// cached is the last loaded key pair.
	cached *tls.Certificate
	// cachedModTime is the modification time of the key file when cached was loaded.
	cachedModTime time.Time
	logger        logr.Logger
}

// NewCertLoader creates a new CertLoader.
func NewCertLoader(logger logr.Logger, certFile string, keyFile string) *CertLoader {
	return &CertLoader{
		CertFile: certFile,
		KeyFile:  keyFile,
		logger:   logger.WithName("CertLoader").WithValues("certFile", certFile, "keyFile", keyFile),
	}
}

// GetCertificate implements tls.Config.GetCertificate. Handshakes run
// concurrently, so the cache is guarded by a lock.
func (certLoader *CertLoader) GetCertificate(_ *tls.ClientHelloInfo) (*tls.Certificate, error) {
	certLoader.lock.Lock()
	defer certLoader.lock.Unlock()

	stat, err := os.Stat(certLoader.KeyFile)
	if err != nil {
		err = fmt.Errorf("failed checking key file: %s modification time: %w", certLoader.KeyFile, err)
		certLoader.logger.Error(err, "could not load information from key file")
		// Keep the last loaded pair while the key file is missing.
		if certLoader.cached != nil {
			return certLoader.cached, nil
		}
		return nil, err
	}

	if certLoader.cached != nil && !stat.ModTime().After(certLoader.cachedModTime) {
		return certLoader.cached, nil
	}

	certLoader.logger.Info("loading new certificates", "cachedModificationTime", certLoader.cachedModTime.String(), "currentModificationTime", stat.ModTime().String())
	pair, err := tls.LoadX509KeyPair(certLoader.CertFile, certLoader.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed loading tls key pair: %w", err)
	}

	certLoader.cached = &pair
	certLoader.cachedModTime = stat.ModTime()
	return certLoader.cached, nil
}

// TLSConfig returns a server configuration that reads its certificate from
// the loader. The pair is loaded once to report bad files at startup.
func (certLoader *CertLoader) TLSConfig() (*tls.Config, error) {
	_, err := certLoader.GetCertificate(nil)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: certLoader.GetCertificate,
	}, nil
}
