// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteMetricsFile writes every metric gathered by g to path in the Prometheus
// text format, for node_exporter's textfile collector.
//
// Description:
//
//	The file is written atomically. The Prometheus reader is pull-based, so
//	call this before the meter provider shuts down; afterwards the exporter
//	has nothing left to collect. A nil g uses prometheus.DefaultGatherer.
//
// Inputs:
//
//	path - Destination file, conventionally ending in ".prom".
//	g - Source of metric families.
//
// Outputs:
//
//	error - Non-nil if gathering or writing fails.
func WriteMetricsFile(path string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics file %s: %w", path, err)
	}
	return nil
}
