// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package metrics

import (
	"github.com/ffutop/sp-gateway/internal/tags"
	"github.com/prometheus/client_golang/prometheus"
)

// tagCollector reads tag values at scrape time.
type tagCollector struct {
	store *tags.Store
	value *prometheus.Desc
	count *prometheus.Desc
}

func newTagCollector(store *tags.Store) *tagCollector {
	return &tagCollector{
		store: store,
		value: prometheus.NewDesc("spgw_tag_value", "Last value extracted for a tag", []string{"tag"}, nil),
		count: prometheus.NewDesc("spgw_tags", "Number of tags in the store", nil, nil),
	}
}

func (c *tagCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.value
	ch <- c.count
}

func (c *tagCollector) Collect(ch chan<- prometheus.Metric) {
	all := c.store.Tags()
	ch <- prometheus.MustNewConstMetric(c.count, prometheus.GaugeValue, float64(len(all)))
	for _, t := range all {
		s := t.Snapshot()
		if s.Updates == 0 {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.value, prometheus.GaugeValue, s.Value, s.Name)
	}
}
