package feedback

import (
	"time"
)

const ntpEpoch = 2208988800

func timeToNtp(ns int64) uint64 {
	seconds := uint64(ns/1e9 + ntpEpoch)
	fraction := uint64(((ns % 1e9) << 32) / 1e9)
	return seconds<<32 | fraction
}

// compactNtp returns the middle 32 bits of the NTP time of t, the format of
// the LSR and DLSR fields of receiver reports.
func compactNtp(t time.Time) uint32 {
	return uint32(timeToNtp(t.UnixNano()) >> 16)
}

// roundTripTime computes the RTT from a report block received at now. It
// reports false when the block holds no usable sender report reference.
func roundTripTime(now time.Time, lastSenderReport, delay uint32) (time.Duration, bool) {
	if lastSenderReport == 0 {
		return 0, false
	}
	elapsed := compactNtp(now) - lastSenderReport
	if delay > elapsed {
		return 0, false
	}
	rtt := elapsed - delay
	return time.Duration(uint64(rtt) * uint64(time.Second) >> 16), true
}
