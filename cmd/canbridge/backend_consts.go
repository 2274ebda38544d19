package main

import "time"

const (
	txQueueSize       = 1024 // capacity of async TX ring
	serialReadBufSize = 4096 // per read() buffer for the slcan backend
	// largeBufferReclaimThreshold is the capacity above which the serial RX
	// accumulation buffer is dropped and reallocated once drained, so a
	// burst of line noise cannot pin a large backing array forever.
	largeBufferReclaimThreshold = 16 * 1024
	rxBackoffMin                = 20 * time.Millisecond
	rxBackoffMax                = 500 * time.Millisecond

	// Virtual pad numbers for the simulated peripheral. Arbitrary but
	// distinct, mirroring a typical CAN TX/RX pad pair.
	simTxPin = 22
	simRxPin = 23
)
