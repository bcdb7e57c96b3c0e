// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package eventprocessor

import "context"

// Delivery is one broker message at a known position.
type Delivery struct {
	Partition int32
	Offset    int64
	Data      []byte

	commit func() error
}

// NewDelivery creates a delivery whose Commit calls commit.
func NewDelivery(partition int32, offset int64, data []byte, commit func() error) Delivery {
	return Delivery{Partition: partition, Offset: offset, Data: data, commit: commit}
}

// Commit acknowledges the delivery so it is not redelivered.
func (d Delivery) Commit() error {
	if d.commit == nil {
		return nil
	}
	return d.commit()
}

// DeliveryFunc processes one delivery. Returning an error stops the partition
// without committing; the delivery is redelivered later.
type DeliveryFunc func(ctx context.Context, d Delivery) error

// Source is a restartable stream of deliveries. Run calls fn sequentially per
// partition and blocks until ctx is cancelled or the source fails.
type Source interface {
	Name() string
	Run(ctx context.Context, fn DeliveryFunc) error
}
