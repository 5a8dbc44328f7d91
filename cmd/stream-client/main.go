/*
 * Copyright 2025 Carver Automation Corporation.
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
 */

// Command stream-client tails the fleetwatch viewer stream and prints one
// block per update.
package main

import (
	"context"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	var (
		host   = flag.String("host", "localhost:8090", "API server host:port")
		secure = flag.Bool("secure", false, "Use WSS instead of WS")
		origin = flag.String("origin", "", "Origin header to send")
	)

	flag.Parse()

	scheme := "ws"
	if *secure {
		scheme = "wss"
	}

	u := url.URL{Scheme: scheme, Host: *host, Path: "/api/stream"}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Connecting to %s", u.String())

	if err := tail(ctx, u.String(), *origin, os.Stdout); err != nil {
		log.Fatalf("Stream failed: %v", err)
	}
}
