package cloud

import "fmt"

type Identity struct {
	ProjectID  string
	Region     string
	RegistryID string
	DeviceID   string
}

func (i Identity) ClientID() string {
	return fmt.Sprintf("projects/%s/locations/%s/registries/%s/devices/%s",
		i.ProjectID, i.Region, i.RegistryID, i.DeviceID)
}

// Audience is token aud claim, the project id.
func (i Identity) Audience() string { return i.ProjectID }

func (i Identity) EventsTopic() string   { return fmt.Sprintf("devices/%s/events", i.DeviceID) }
func (i Identity) ConfigTopic() string   { return fmt.Sprintf("devices/%s/config", i.DeviceID) }
func (i Identity) CommandsTopic() string { return fmt.Sprintf("devices/%s/commands/#", i.DeviceID) }

func (i Identity) Valid() error {
	if i.ProjectID == "" || i.Region == "" || i.RegistryID == "" || i.DeviceID == "" {
		return fmt.Errorf("cloud identity incomplete %#v", i)
	}
	return nil
}
