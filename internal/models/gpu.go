package models

// GPUStatus is the body of GET /gpu.
type GPUStatus struct {
	Available   bool      `json:"available"`
	DeviceCount int       `json:"device_count"`
	Info        []GPUInfo `json:"info"`
}

// GPUInfo holds preformatted figures for one device, e.g. "8192 MB" or "41.5%".
type GPUInfo struct {
	Name            string `json:"name"`
	Utilization     string `json:"utilization"`
	TotalMemory     string `json:"total_memory"`
	ReservedMemory  string `json:"reserved_memory"`
	AllocatedMemory string `json:"allocated_memory"`
}
