package demo

import "time"

// Telemetry reports decoder performance counters. Throughput is derived
// lazily from the raw counters rather than tracked per read.
type Telemetry struct {
	BytesProcessed int64
	FramesEmitted  int64
	ParseTime      time.Duration
}

// ThroughputMBps returns decode throughput in megabytes per second
func (t Telemetry) ThroughputMBps() float64 {
	secs := t.ParseTime.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(t.BytesProcessed) / (1024 * 1024) / secs
}

// Telemetry returns a snapshot of the decoder's counters
func (d *Decoder) Telemetry() Telemetry {
	return Telemetry{
		BytesProcessed: d.bytesProcessed,
		FramesEmitted:  d.framesEmitted,
		ParseTime:      d.parseTime,
	}
}
