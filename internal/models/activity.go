package models

import "time"

// Activity types shown in the dashboard feed.
const (
	ActivitySwapCompleted = "Swap Completed"
	ActivityNewAddress    = "New Address Generated"
	ActivityFundsReceived = "Funds Received"
	ActivityFundsSent     = "Funds Sent"
	ActivityMakerStarted  = "Maker Started"
	ActivityMakerStopped  = "Maker Stopped"
	ActivityMakerRemoved  = "Maker Removed"
	ActivityMakerError    = "Maker Error"
	ActivityConfigSaved   = "Config Saved"
	ActivityWalletSynced  = "Wallet Synced"
)

type Activity struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	MakerID   string    `json:"makerId"`
	Maker     string    `json:"maker"`
	Details   string    `json:"details"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Time      string    `json:"time"`
}

// DashboardSummary backs the home page.
type DashboardSummary struct {
	TotalBalance  string         `json:"totalBalance"`
	TotalSwaps    int            `json:"totalSwaps"`
	TotalEarnings string         `json:"totalEarnings"`
	OnlineMakers  int            `json:"onlineMakers"`
	TotalMakers   int            `json:"totalMakers"`
	Makers        []MakerSummary `json:"makers"`
	Activity      []Activity     `json:"activity"`
}

type SystemInfo struct {
	HostID        string   `json:"hostId,omitempty"`
	Hostname      string   `json:"hostname,omitempty"`
	UptimeSeconds uint64   `json:"uptimeSeconds"`
	MemoryUsedPct float64  `json:"memoryUsedPercent"`
	DiskFreeBytes uint64   `json:"diskFreeBytes"`
	DiskUsedPct   float64  `json:"diskUsedPercent"`
	RunningMakers int      `json:"runningMakers"`
	Errors        []string `json:"errors,omitempty"`
}
