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

package utils

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
)

var (
	exitChannels []chan struct{}
	exitMutex    sync.Mutex
)

// ExitChannel returns a channel closed when the process receives SIGINT or
// SIGTERM, letting long running loops drain cleanly.
func ExitChannel() chan struct{} {
	exitMutex.Lock()
	defer exitMutex.Unlock()
	ch := make(chan struct{})
	exitChannels = append(exitChannels, ch)
	return ch
}

// SetupElegantExit installs the signal handler feeding the exit channels.
func SetupElegantExit() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Debugf("received exit signal = %v", sig)
		exitMutex.Lock()
		defer exitMutex.Unlock()
		for _, ch := range exitChannels {
			close(ch)
		}
		exitChannels = nil
	}()
}
