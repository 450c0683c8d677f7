// Copyright 2026 The Voltrans Authors
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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestNewRegistersAllCollectorsExactlyOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)
	assert.NotNil(t, r.CacheHits)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestCacheHitsIncrements(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.CacheHits.Inc()
	r.CacheHits.Inc()
	assert.Equal(t, float64(2), counterValue(t, r.CacheHits))
}

func TestUpcallBroadcastsLabelsByKind(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.UpcallBroadcasts.WithLabelValues("content").Inc()
	r.UpcallBroadcasts.WithLabelValues("xattr").Inc()
	r.UpcallBroadcasts.WithLabelValues("content").Inc()

	assert.Equal(t, float64(2), counterValue(t, r.UpcallBroadcasts.WithLabelValues("content")))
	assert.Equal(t, float64(1), counterValue(t, r.UpcallBroadcasts.WithLabelValues("xattr")))
}

func TestAIOQueueDepthGauge(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.AIOQueueDepth.Set(3)
	assert.Equal(t, float64(3), gaugeValue(t, r.AIOQueueDepth))
}
