package tele_config

const (
	TransportMqtt   = "mqtt"
	TransportInflux = "influx"
)

type Config struct {
	Enabled      bool   `hcl:"enable" yaml:"enable"`
	Transport    string `hcl:"transport" yaml:"transport"`
	ClientId     string `hcl:"client_id" yaml:"client_id"`
	KeepaliveSec int    `hcl:"keepalive_sec" yaml:"keepalive_sec"`
	LogDebug     bool   `hcl:"log_debug" yaml:"log_debug"`

	MqttBroker   string `hcl:"mqtt_broker" yaml:"mqtt_broker"`
	MqttPassword string `hcl:"mqtt_password" yaml:"mqtt_password"` // secret
	MqttLogDebug bool   `hcl:"mqtt_log_debug" yaml:"mqtt_log_debug"`

	InfluxServer string `hcl:"influx_server" yaml:"influx_server"`
	InfluxToken  string `hcl:"influx_token" yaml:"influx_token"` // secret
	InfluxOrg    string `hcl:"influx_org" yaml:"influx_org"`
	InfluxBucket string `hcl:"influx_bucket" yaml:"influx_bucket"`

	// set by state from persist.root
	PersistPath string `hcl:"-" yaml:"-"`
}

func (self *Config) TransportName() string {
	if self.Transport == "" {
		return TransportMqtt
	}
	return self.Transport
}
