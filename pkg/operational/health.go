/*
 * Copyright (C) 2022 IBM, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package operational

import (
	"net"
	"net/http"

	"github.com/heptiolabs/healthcheck"
	"github.com/sirupsen/logrus"

	"github.com/flatrie/flatrie/pkg/config"
)

var hlog = logrus.WithField("component", "operational.Health")

type HealthServer struct {
	handler healthcheck.Handler
	Address string
}

func (hs *HealthServer) Serve() {
	err := http.ListenAndServe(hs.Address, hs.handler)
	hlog.WithError(err).Error("health server stopped")
}

// NewHealthServer serves liveness and readiness probes; readiness reports
// healthy once a compiled table has been published.
func NewHealthServer(opts *config.Options, isAlive, isReady healthcheck.Check) *HealthServer {
	handler := healthcheck.NewHandler()
	handler.AddLivenessCheck("EngineCheck", isAlive)
	handler.AddReadinessCheck("EngineCheck", isReady)

	server := &HealthServer{
		handler: handler,
		Address: net.JoinHostPort(opts.Health.Address, opts.Health.Port),
	}
	go server.Serve()

	return server
}
