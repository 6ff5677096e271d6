package cloud

// Topics builds the broker topics of one device: every topic is prefixed by
// the API key and suffixed by the mainboard id.
type Topics struct {
	APIKey   string
	DeviceID string
}

func (t Topics) Command() string {
	return t.APIKey + "/command/send/" + t.DeviceID
}

func (t Topics) Response() string {
	return t.APIKey + "/response/" + t.DeviceID
}

func (t Topics) Stream() string {
	return t.APIKey + "/data/stream/" + t.DeviceID
}

func (t Topics) Periodic() string {
	return t.APIKey + "/data/periodic/" + t.DeviceID
}

// Kind names a topic for metrics and logs without leaking the API key.
func (t Topics) Kind(topic string) string {
	switch topic {
	case t.Command():
		return "command"
	case t.Response():
		return "response"
	case t.Stream():
		return "stream"
	case t.Periodic():
		return "periodic"
	default:
		return "other"
	}
}
