// Package models holds the JSON response shapes for adminapi's REST
// endpoints.
package models

// StatusResponse is the /health response body.
type StatusResponse struct {
	Status string `json:"status"`
}

// ReactorStats reports one core's reactor counters.
type ReactorStats struct {
	QueueIndex int    `json:"queue_index"`
	CoreID     int    `json:"core_id"`
	Ticks      uint64 `json:"ticks"`
	Orphans    int    `json:"orphans"`
}

// EchoStats mirrors cmd/echoserver's stats.EchoStats counters.
type EchoStats struct {
	Connections   uint64 `json:"connections"`
	BytesReceived uint64 `json:"bytes_received"`
	BytesSent     uint64 `json:"bytes_sent"`
}

// StatsResponse is the /api/v1/stats response body.
type StatsResponse struct {
	UptimeSeconds int64          `json:"uptime_seconds"`
	Reactors      []ReactorStats `json:"reactors"`
	Echo          EchoStats      `json:"echo"`
}

// ArpEntry is one row of the /api/v1/arp response body.
type ArpEntry struct {
	IP  string `json:"ip"`
	MAC string `json:"mac"`
}

// ArpResponse is the /api/v1/arp response body.
type ArpResponse struct {
	Version uint64     `json:"version"`
	Entries []ArpEntry `json:"entries"`
}
