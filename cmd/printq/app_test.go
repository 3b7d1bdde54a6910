// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/z5labs/printq/broker/amqp"
	"github.com/z5labs/printq/broker/kafka"
	"github.com/z5labs/printq/health"
	"github.com/z5labs/printq/journal"

	"github.com/stretchr/testify/require"
)

func writeCA(t *testing.T) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "printq test ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ca.pem")
	err = os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600)
	require.NoError(t, err)
	return path
}

func TestNewDriver(t *testing.T) {
	t.Run("will build an amqp driver by default", func(t *testing.T) {
		cfg, err := Load(context.Background(), baseArgs(t.TempDir()))
		require.NoError(t, err)

		d, err := newDriver(cfg)
		require.NoError(t, err)
		require.IsType(t, &amqp.Driver{}, d)
	})

	t.Run("will build a kafka driver with tls", func(t *testing.T) {
		t.Setenv("PRINTQ_BROKER_DRIVER", "kafka")
		t.Setenv("PRINTQ_KAFKA_TLS_CA_FILE", writeCA(t))

		cfg, err := Load(context.Background(), baseArgs(t.TempDir()))
		require.NoError(t, err)

		d, err := newDriver(cfg)
		require.NoError(t, err)
		require.IsType(t, &kafka.Driver{}, d)
	})

	t.Run("will fail if the kafka ca file cannot be read", func(t *testing.T) {
		t.Setenv("PRINTQ_BROKER_DRIVER", "kafka")
		t.Setenv("PRINTQ_KAFKA_TLS_CA_FILE", filepath.Join(t.TempDir(), "missing.pem"))

		cfg, err := Load(context.Background(), baseArgs(t.TempDir()))
		require.NoError(t, err)

		_, err = newDriver(cfg)
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestKafkaTLS(t *testing.T) {
	t.Run("will use the system roots without a ca file", func(t *testing.T) {
		cfg, err := kafkaTLS(KafkaConfig{TLS: true})
		require.NoError(t, err)
		require.Nil(t, cfg.RootCAs)
		require.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	})

	t.Run("will trust the configured ca", func(t *testing.T) {
		cfg, err := kafkaTLS(KafkaConfig{TLS: true, TLSCAFile: writeCA(t)})
		require.NoError(t, err)
		require.NotNil(t, cfg.RootCAs)
	})

	t.Run("will reject a file without certificates", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ca.pem")
		err := os.WriteFile(path, []byte("not a certificate"), 0o600)
		require.NoError(t, err)

		_, err = kafkaTLS(KafkaConfig{TLS: true, TLSCAFile: path})
		require.ErrorContains(t, err, "no certificates found")
	})
}

type recentFunc func(ctx context.Context, limit int) ([]journal.Entry, error)

func (f recentFunc) Recent(ctx context.Context, limit int) ([]journal.Entry, error) {
	return f(ctx, limit)
}

func TestNewHandler(t *testing.T) {
	var live, ready health.Binary
	live.MarkHealthy()

	h := newHandler(
		slog.New(slog.DiscardHandler),
		&live,
		&ready,
		recentFunc(func(ctx context.Context, limit int) ([]journal.Entry, error) {
			return []journal.Entry{{FileName: "invoice.pdf", Outcome: journal.OutcomePrinted}}, nil
		}),
	)

	testCases := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "liveness", path: health.LivenessPath, wantStatus: http.StatusOK},
		{name: "readiness", path: health.ReadinessPath, wantStatus: http.StatusServiceUnavailable},
		{name: "journal", path: journal.RecentPath, wantStatus: http.StatusOK},
		{name: "unknown", path: "/metrics", wantStatus: http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.Equal(t, tc.wantStatus, w.Code)
		})
	}

	t.Run("will serve the journal entries", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, journal.RecentPath, nil))
		require.Contains(t, w.Body.String(), `"file_name":"invoice.pdf"`)
	})
}
