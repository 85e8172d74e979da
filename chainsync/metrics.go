// Copyright 2026 Blink Labs Software
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

package chainsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type syncMetrics struct {
	tipSlot             prometheus.Gauge
	tipBlockNumber      prometheus.Gauge
	bufferSize          prometheus.Gauge
	blocksConfirmed     prometheus.Counter
	rollbacks           prometheus.Counter
	rollbacksOutOfScope prometheus.Counter
}

func newSyncMetrics(registry prometheus.Registerer) *syncMetrics {
	promautoFactory := promauto.With(registry)
	m := &syncMetrics{}
	m.tipSlot = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "taipan_chainsync_tip_slot",
		Help: "slot number of the upstream node's current chain tip",
	})
	m.tipBlockNumber = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "taipan_chainsync_tip_block_number",
		Help: "block number of the upstream node's current chain tip",
	})
	m.bufferSize = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "taipan_chainsync_buffer_size",
		Help: "number of unconfirmed points in the rollback buffer",
	})
	m.blocksConfirmed = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "taipan_chainsync_blocks_confirmed_total",
			Help: "number of blocks confirmed and emitted downstream",
		},
	)
	m.rollbacks = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "taipan_chainsync_rollbacks_total",
			Help: "number of rollback messages processed",
		},
	)
	m.rollbacksOutOfScope = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "taipan_chainsync_rollbacks_out_of_scope_total",
			Help: "number of rollbacks that reached beyond the rollback buffer",
		},
	)
	return m
}
