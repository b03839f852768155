// RPMI platform-management messaging protocol
// https://github.com/riscv-mgmt/rpmi
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package rpmi provides the wire-level vocabulary shared by every other
// package in this module: status codes, message framing, queue/message
// type constants, privilege levels and the well-known service group
// ids.
//
// The protocol connects an application processor (AP, the client side,
// referred to as A2P for "AP to PuC") to a platform microcontroller or
// management firmware (PuC, the server side, referred to as P2A for "PuC
// to AP") over a shared-memory ring of fixed-size slots. See package
// transport for the queue discipline, package context for the request
// dispatcher, and the service/* packages for the built-in service
// groups.
package rpmi
