// certloader_test.go
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

package certloader

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// writeKeyPair writes a self-signed certificate with the given serial number.
func writeKeyPair(certFile string, keyFile string, serial int64) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).NotTo(HaveOccurred())

	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "fdbprofviewer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	Expect(err).NotTo(HaveOccurred())
	keyDER, err := x509.MarshalECPrivateKey(key)
	Expect(err).NotTo(HaveOccurred())

	Expect(os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600)).To(Succeed())
	Expect(os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600)).To(Succeed())
}

func serialOf(certificate *tls.Certificate) int64 {
	parsed, err := x509.ParseCertificate(certificate.Certificate[0])
	Expect(err).NotTo(HaveOccurred())
	return parsed.SerialNumber.Int64()
}

var _ = Describe("Testing the certificate loader", func() {
	var certFile, keyFile string
	var loader *CertLoader

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		certFile = filepath.Join(dir, "tls.crt")
		keyFile = filepath.Join(dir, "tls.key")
		loader = NewCertLoader(GinkgoLogr, certFile, keyFile)
	})

	When("the files do not exist", func() {
		It("should return an error", func() {
			_, err := loader.GetCertificate(nil)
			Expect(err).To(HaveOccurred())

			_, err = loader.TLSConfig()
			Expect(err).To(HaveOccurred())
		})
	})

	When("the files are not a key pair", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(certFile, []byte("bogus"), 0o600)).To(Succeed())
			Expect(os.WriteFile(keyFile, []byte("bogus"), 0o600)).To(Succeed())
		})

		It("should return an error", func() {
			_, err := loader.GetCertificate(nil)
			Expect(err).To(MatchError(ContainSubstring("failed loading tls key pair")))
		})
	})

	When("a key pair exists", func() {
		var first *tls.Certificate

		BeforeEach(func() {
			writeKeyPair(certFile, keyFile, 1)
			var err error
			first, err = loader.GetCertificate(nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should load it", func() {
			Expect(serialOf(first)).To(BeNumerically("==", 1))
		})

		It("should return the cached pair while the key file is unchanged", func() {
			second, err := loader.GetCertificate(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(BeIdenticalTo(first))
		})

		It("should reload the pair when the key file is modified", func() {
			writeKeyPair(certFile, keyFile, 2)
			later := time.Now().Add(time.Minute)
			Expect(os.Chtimes(keyFile, later, later)).To(Succeed())

			reloaded, err := loader.GetCertificate(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(serialOf(reloaded)).To(BeNumerically("==", 2))
		})

		It("should keep the cached pair while the key file is missing", func() {
			Expect(os.Remove(keyFile)).To(Succeed())
			cached, err := loader.GetCertificate(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(cached).To(BeIdenticalTo(first))
		})

		It("should build a server configuration", func() {
			config, err := loader.TLSConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(config.MinVersion).To(BeNumerically("==", tls.VersionTLS12))
			Expect(config.GetCertificate).NotTo(BeNil())
		})
	})
})
