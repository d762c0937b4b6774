package model

// Device is an attached device as reported by the driver.
type Device struct {
	Serial string `yaml:"serial"          json:"serial"`
	State  string `yaml:"state"           json:"state"`
	Model  string `yaml:"model,omitempty" json:"model,omitempty"`
}

// Online reports whether the device accepts commands.
func (d Device) Online() bool {
	return d.State == "device"
}
