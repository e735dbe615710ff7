package fieldbus

import (
	"fmt"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration contains the configuration parameters for the gateway:
// the buses to open, the devices to poll on them and the addresses of
// the outward surfaces.
type Configuration struct {
	API     apiConf               `yaml:"api"`
	Stream  streamConf            `yaml:"stream"`
	MQTT    mqttConf              `yaml:"mqtt"`
	Buses   map[string]busConf    `yaml:"buses"`
	Devices map[string]deviceConf `yaml:"devices"`
	CAN     map[string]canConf    `yaml:"can_buses"`
}

type apiConf struct {
	Listen string `yaml:"listen"`
}

type streamConf struct {
	Listen string `yaml:"listen"`
}

type mqttConf struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type busConf struct {
	// Transport selects the framing: "rtu" over a serial device or
	// "tcp" to a remote unit.
	Transport string `yaml:"transport"`

	// serial line settings (rtu)
	Device      string `yaml:"device"`
	Baud        int    `yaml:"baud"`
	Parity      string `yaml:"parity"`
	TwoStopBits bool   `yaml:"two_stop_bits"`

	// remote address (tcp)
	Address string `yaml:"address"`

	ResponseTimeoutMS int `yaml:"response_timeout_ms"`
}

type deviceConf struct {
	Bus    string      `yaml:"bus"`
	Unit   byte        `yaml:"unit"`
	PollMS int         `yaml:"poll_ms"`
	Blocks []blockConf `yaml:"blocks"`
}

type blockConf struct {
	Function byte   `yaml:"function"`
	Address  uint16 `yaml:"address"`
	Quantity uint16 `yaml:"quantity"`
}

type canConf struct {
	Interface string   `yaml:"interface"`
	IDs       []uint32 `yaml:"ids"`
}

// default poll period for devices that do not set poll_ms
const _defaultPollPeriod = time.Second

// LoadConfig loads the configuration file at path.
func LoadConfig(path string) (Configuration, error) {
	contents, err := ioutil.ReadFile(path)
	if err != nil {
		return Configuration{}, fmt.Errorf("read configuration file %s: %v", path, err)
	}

	var conf Configuration

	if err = yaml.Unmarshal(contents, &conf); err != nil {
		return Configuration{}, fmt.Errorf("unmarshal configuration contents: %v", err)
	}

	if err = conf.validate(); err != nil {
		return Configuration{}, fmt.Errorf("validate configuration: %v", err)
	}

	return conf, nil
}

func (c Configuration) validate() error {
	for name, bus := range c.Buses {
		switch bus.Transport {
		case "rtu":
			if bus.Device == "" {
				return fmt.Errorf("bus %s: rtu transport needs a serial device", name)
			}
		case "tcp":
			if bus.Address == "" {
				return fmt.Errorf("bus %s: tcp transport needs an address", name)
			}
		default:
			return fmt.Errorf("bus %s: unknown transport %q", name, bus.Transport)
		}
	}

	for name, dev := range c.Devices {
		if _, ok := c.Buses[dev.Bus]; !ok {
			return fmt.Errorf("device %s: unknown bus %q", name, dev.Bus)
		}

		if len(dev.Blocks) == 0 {
			return fmt.Errorf("device %s: no poll blocks", name)
		}
	}

	return nil
}

func (d deviceConf) pollPeriod() time.Duration {
	if d.PollMS <= 0 {
		return _defaultPollPeriod
	}

	return time.Duration(d.PollMS) * time.Millisecond
}

// ResponseTimeout returns the configured per-exchange timeout with a 1s
// fallback.
func (b busConf) ResponseTimeout() time.Duration {
	if b.ResponseTimeoutMS <= 0 {
		return time.Second
	}

	return time.Duration(b.ResponseTimeoutMS) * time.Millisecond
}
