package models

// Settings is the dashboard-wide Bitcoin Core and Tor configuration.
type Settings struct {
	RPCHost     string `json:"rpcHost"`
	RPCPort     int    `json:"rpcPort"`
	RPCUser     string `json:"rpcUser"`
	RPCPassword string `json:"rpcPassword"`
	ZMQEndpoint string `json:"zmqEndpoint"`
	Network     string `json:"network"`
	SocksPort   int    `json:"socksPort"`
	ControlPort int    `json:"controlPort"`
	TorAuth     string `json:"torAuth"`
}

func DefaultSettings() Settings {
	return Settings{
		RPCHost:     "127.0.0.1",
		RPCPort:     38332,
		RPCUser:     "user",
		ZMQEndpoint: "tcp://127.0.0.1:28332",
		Network:     "signet",
		SocksPort:   9052,
		ControlPort: 9051,
	}
}

// SettingsView is what the API returns: Settings with secrets blanked.
type SettingsView struct {
	Settings
	RPCPasswordSet bool `json:"rpcPassword_set"`
	TorAuthSet     bool `json:"torAuth_set"`
}

func (s Settings) View() SettingsView {
	v := SettingsView{
		Settings:       s,
		RPCPasswordSet: s.RPCPassword != "",
		TorAuthSet:     s.TorAuth != "",
	}
	v.RPCPassword = ""
	v.TorAuth = ""
	return v
}

// Merge returns next with blank secrets filled from s, so a form that echoes
// a masked read does not wipe stored passwords.
func (s Settings) Merge(next Settings) Settings {
	if next.RPCPassword == "" {
		next.RPCPassword = s.RPCPassword
	}
	if next.TorAuth == "" {
		next.TorAuth = s.TorAuth
	}
	return next
}

// BitcoinStatus is the result of a Bitcoin Core connection test.
type BitcoinStatus struct {
	Connected    bool   `json:"connected"`
	Version      string `json:"version"`
	Network      string `json:"network"`
	BlockHeight  string `json:"blockHeight"`
	SyncProgress string `json:"syncProgress"`
	Error        string `json:"error,omitempty"`
}

func DisconnectedStatus(err error) BitcoinStatus {
	s := BitcoinStatus{
		Version:      "--",
		Network:      "--",
		BlockHeight:  "--",
		SyncProgress: "--",
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}
