// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

// Dispatcher protocol. A worker connection opens with one purpose
// byte; the rest of the exchange depends on it. All integers are
// little-endian.
//
//	purpose 0x00 (request):
//	  server → worker: 0x10 then level:u32 maxDepth:u32 iReal:u32 iImag:u32
//	                or 0x11 (nothing available)
//	purpose 0x01 (response):
//	  worker → server: level:u32 maxDepth:u32 iReal:u32 iImag:u32
//	  server → worker: 0x20, then worker sends the raw payload bytes
//	                or 0x21 (rejected; connection ends)
//
// Any other purpose byte closes the connection.
const (
	PurposeRequest  byte = 0x00
	PurposeResponse byte = 0x01

	CodeWorkloadAvailable    byte = 0x10
	CodeWorkloadNotAvailable byte = 0x11

	CodeResponseAccept byte = 0x20
	CodeResponseReject byte = 0x21
)

// TileServer protocol. A client sends level:u32 iReal:u32 iImag:u32
// and receives one status byte:
//
//	0x00 accepted:      length:u32 then the encoded tile stream
//	0x01 rejected:      invalid parameters (iReal or iImag >= level)
//	0x02 not available: tile not in the index, or unreadable
const (
	CodeTileAccepted     byte = 0x00
	CodeTileRejected     byte = 0x01
	CodeTileNotAvailable byte = 0x02
)
