// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package connector adapts a NapCat (OneBot v11) chat gateway to MaiBot.
//
// NapCat connects to the adapter over a reverse WebSocket. Every inbound
// event is classified, supported chat messages are converted into a
// normalized segment tree, and the result is handed to a [Dispatcher] in
// MaiBot's MessageBase shape.
//
// # Core Types
//
// [NapcatConnector] owns the HTTP listener: the gateway WebSocket, /healthz
// and /metrics.
//
// [NapcatClient] serves one gateway connection. It reads frames, routes API
// responses to waiting callers by echo, records meta events as they arrive,
// and processes the remaining events sequentially in arrival order. It also implements [OneBotAPI], the metadata lookups the
// conversion pipeline depends on.
//
// [LivenessMonitor] watches the heartbeats a connection reports and declares
// it dead once they stop.
//
// # Forward Bundles
//
// Forwarded bundles are fetched with get_forward_msg and flattened into
// nested, indented segment lists. Nesting collapses into a placeholder line
// below three levels. Bundles with a handful of images get them fetched and
// inlined; larger bundles get placeholder text instead.
//
// # Sub-packages
//
//   - onebot holds the OneBot v11 wire types.
//   - segment holds the immutable segment tree and its wire encoding.
package connector
