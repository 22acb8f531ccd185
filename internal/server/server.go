// server.go
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

// Package server answers the requests of deferred.HTTPSource from a
// synchronous data source.
//
// Every request kind is a POST endpoint taking a JSON body. Faults can be
// injected per endpoint through /faults to exercise the client error paths.
package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/apple/foundationdb/fdbprofviewer/api"
	"github.com/apple/foundationdb/fdbprofviewer/internal/deferred"
	"github.com/apple/foundationdb/fdbprofviewer/internal/tracestore"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
)

// FaultsEndpoint reads and updates the injected faults.
const FaultsEndpoint = "/faults"

// ErrInjectedFault is reported for requests failed by fault injection.
var ErrInjectedFault = errors.New("injected fault")

// ErrorDetail describes why a request failed.
type ErrorDetail struct {
	Detail string `json:"details"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Err ErrorDetail `json:"error"`
}

// Server is an http.Handler serving one data source.
type Server struct {
	dataSource deferred.DataSource
	logger     logr.Logger
	metrics    *metrics
	faults     *faults
	mux        *http.ServeMux
}

// handlerFunc answers one decoded request.
type handlerFunc func(ctx context.Context, body []byte) (interface{}, error)

// New returns a server for dataSource that registers its metrics with reg.
func New(logger logr.Logger, dataSource deferred.DataSource, reg prometheus.Registerer) *Server {
	server := &Server{
		dataSource: dataSource,
		logger:     logger.WithValues("area", "server"),
		metrics:    registerMetrics(reg),
		faults:     newFaults(),
		mux:        http.NewServeMux(),
	}

	server.handle(deferred.RequestKindDescription, func(ctx context.Context, _ []byte) (interface{}, error) {
		return server.dataSource.FetchDescription(ctx)
	})
	server.handle(deferred.RequestKindInfo, func(ctx context.Context, _ []byte) (interface{}, error) {
		return server.dataSource.FetchInfo(ctx)
	})
	server.handle(deferred.RequestKindSummaryTile, func(ctx context.Context, body []byte) (interface{}, error) {
		request, err := decodeTileRequest(body)
		if err != nil {
			return nil, err
		}
		return server.dataSource.FetchSummaryTile(ctx, request.EntryID, request.TileID, request.Full)
	})
	server.handle(deferred.RequestKindSlotTile, func(ctx context.Context, body []byte) (interface{}, error) {
		request, err := decodeTileRequest(body)
		if err != nil {
			return nil, err
		}
		return server.dataSource.FetchSlotTile(ctx, request.EntryID, request.TileID, request.Full)
	})
	server.handle(deferred.RequestKindSlotMetaTile, func(ctx context.Context, body []byte) (interface{}, error) {
		request, err := decodeTileRequest(body)
		if err != nil {
			return nil, err
		}
		return server.dataSource.FetchSlotMetaTile(ctx, request.EntryID, request.TileID, request.Full)
	})
	server.mux.HandleFunc(FaultsEndpoint, server.handleFaults)

	return server
}

// badRequestError marks errors caused by the request body.
type badRequestError struct {
	err error
}

func (e badRequestError) Error() string {
	return e.err.Error()
}

func (e badRequestError) Unwrap() error {
	return e.err
}

func decodeTileRequest(body []byte) (api.TileRequest, error) {
	var request api.TileRequest
	err := json.Unmarshal(body, &request)
	if err != nil {
		return request, badRequestError{fmt.Errorf("could not decode tile request: %w", err)}
	}
	if request.TileID.Stop < request.TileID.Start {
		return request, badRequestError{fmt.Errorf("tile %s stops before it starts", request.TileID)}
	}
	return request, nil
}

// statusCode maps an error to the status of the response.
func statusCode(err error) int {
	var badRequest badRequestError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &badRequest):
		return http.StatusBadRequest
	case errors.Is(err, tracestore.ErrUnknownEntry):
		return http.StatusNotFound
	case errors.Is(err, ErrInjectedFault):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (server *Server) handle(kind deferred.RequestKind, handler handlerFunc) {
	endpoint := deferred.Endpoint(kind)
	server.mux.HandleFunc(endpoint, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(deferred.RequestIDHeader)
		logger := server.logger.WithValues("endpoint", endpoint, "requestID", requestID)
		if requestID != "" {
			w.Header().Set(deferred.RequestIDHeader, requestID)
		}

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			server.respond(w, logger, endpoint, start, nil, badRequestError{fmt.Errorf("method %s not allowed", r.Method)}, http.StatusMethodNotAllowed)
			return
		}

		result, err := server.answer(r, kind, handler)
		server.respond(w, logger, endpoint, start, result, err, statusCode(err))
	})
}

// answer applies the fault of kind, then runs the handler.
func (server *Server) answer(r *http.Request, kind deferred.RequestKind, handler handlerFunc) (interface{}, error) {
	fault := server.faults.get(kind)
	if fault.DelayMilliseconds > 0 {
		select {
		case <-time.After(time.Duration(fault.DelayMilliseconds) * time.Millisecond):
		case <-r.Context().Done():
			return nil, r.Context().Err()
		}
	}
	if fault.Fail {
		server.metrics.registerFault(deferred.Endpoint(kind))
		return nil, ErrInjectedFault
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, badRequestError{fmt.Errorf("could not read request body: %w", err)}
	}
	return handler(r.Context(), body)
}

func (server *Server) respond(w http.ResponseWriter, logger logr.Logger, endpoint string, start time.Time, result interface{}, err error, code int) {
	defer func() {
		server.metrics.registerRequest(endpoint, code, time.Since(start))
	}()

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		logger.Error(err, "Error answering request", "code", code)
		writeError(w, err, code)
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		code = http.StatusInternalServerError
		logger.Error(err, "Error marshaling response")
		writeError(w, err, code)
		return
	}

	w.WriteHeader(code)
	_, err = w.Write(data)
	if err != nil {
		logger.Error(err, "Error writing response")
		return
	}
	logger.V(1).Info("Answered request", "bytes", len(data), "duration", time.Since(start).String())
}

func writeError(w http.ResponseWriter, err error, code int) {
	data, marshalErr := json.Marshal(ErrorResponse{Err: ErrorDetail{Detail: err.Error()}})
	if marshalErr != nil {
		panic(marshalErr)
	}
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

func (server *Server) handleFaults(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := server.logger.WithValues("endpoint", FaultsEndpoint)

	switch r.Method {
	case http.MethodGet:
		server.respond(w, logger, FaultsEndpoint, start, FaultInjectionResponse{Faults: server.faults.list()}, nil, http.StatusOK)
	case http.MethodPost:
		request := FaultInjectionRequest{}
		err := json.NewDecoder(r.Body).Decode(&request)
		if err != nil {
			server.respond(w, logger, FaultsEndpoint, start, nil, err, http.StatusBadRequest)
			return
		}

		updated, err := server.InjectFaults(request.Faults...)
		if err != nil {
			server.respond(w, logger, FaultsEndpoint, start, nil, err, http.StatusBadRequest)
			return
		}
		server.respond(w, logger, FaultsEndpoint, start, FaultInjectionResponse{Faults: updated}, nil, http.StatusOK)
	default:
		w.Header().Set("Allow", "GET, POST")
		server.respond(w, logger, FaultsEndpoint, start, nil, fmt.Errorf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
	}
}

// InjectFaults updates the faults of the given request kinds and returns
// every fault in effect. Either all updates are applied or none.
func (server *Server) InjectFaults(faults ...Fault) ([]Fault, error) {
	updated, err := server.faults.update(faults)
	if err != nil {
		return nil, err
	}
	for _, fault := range faults {
		server.logger.Info("Updated fault", "kind", fault.Kind, "fail", fault.Fail, "delayMilliseconds", fault.DelayMilliseconds)
	}
	return updated, nil
}

// ServeHTTP implements http.Handler.
func (server *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	server.mux.ServeHTTP(w, r)
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// the listener down. A non-nil tlsConfig serves HTTPS.
func ListenAndServe(ctx context.Context, logger logr.Logger, addr string, handler http.Handler, tlsConfig *tls.Config) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         tlsConfig,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", addr, "tls", tlsConfig != nil)
		if tlsConfig != nil {
			errs <- httpServer.ListenAndServeTLS("", "")
			return
		}
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		if err != nil {
			return err
		}
		logger.Info("Stopped listening", "addr", addr)
		return nil
	}
}
