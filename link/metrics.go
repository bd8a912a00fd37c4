package link

import (
	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Metrics
// --------------------------------------------------------------------------

// Counters written by the conn and mux packages. Exposed through the default
// metrics set; serve them with metrics.WritePrometheus.
var (
	MetricFramesIn  = metrics.NewCounter(`framelink_frames_in_total`)
	MetricFramesOut = metrics.NewCounter(`framelink_frames_out_total`)
	MetricBytesIn   = metrics.NewCounter(`framelink_bytes_in_total`)
	MetricBytesOut  = metrics.NewCounter(`framelink_bytes_out_total`)

	MetricConnsOpened = metrics.NewCounter(`framelink_connections_opened_total`)
	MetricConnsClosed = metrics.NewCounter(`framelink_connections_closed_total`)

	MetricMalformedFrames = metrics.NewCounter(`framelink_malformed_frames_total`)
	MetricBackpressure    = metrics.NewCounter(`framelink_backpressure_rejections_total`)
)
