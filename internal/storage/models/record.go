package models

// Record represents one device row supplied by an import source
type Record struct {
	Address     string `json:"address"`
	DisplayName string `json:"displayName,omitempty"`
	DeviceType  string `json:"deviceType,omitempty"`
	Model       string `json:"model,omitempty"`
	MACAddress  string `json:"macAddress,omitempty"`
	Location    string `json:"location,omitempty"`
	Unit        string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
}
