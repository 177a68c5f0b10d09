package conditions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
)

// SensorClient reads ambient temperature and irradiance from a Modbus TCP
// weather station (a pyranometer head with a temperature probe). Registers
// hold raw integers; the scales map them to C and W/m2.
type SensorClient struct {
	mu     sync.Mutex
	client *modbus.ModbusClient

	ip      string
	port    int
	slaveID uint8
	timeout time.Duration

	temperatureRegister uint16
	temperatureScale    float64
	irradianceRegister  uint16
	irradianceScale     float64
}

type SensorConfig struct {
	IP      string
	Port    int
	SlaveID uint8
	Timeout time.Duration

	TemperatureRegister uint16
	TemperatureScale    float64
	IrradianceRegister  uint16
	IrradianceScale     float64
}

func NewSensorClient(cfg SensorConfig) *SensorClient {
	if cfg.TemperatureScale == 0 {
		cfg.TemperatureScale = 0.1
	}
	if cfg.IrradianceScale == 0 {
		cfg.IrradianceScale = 1.0
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SensorClient{
		ip:                  cfg.IP,
		port:                cfg.Port,
		slaveID:             cfg.SlaveID,
		timeout:             cfg.Timeout,
		temperatureRegister: cfg.TemperatureRegister,
		temperatureScale:    cfg.TemperatureScale,
		irradianceRegister:  cfg.IrradianceRegister,
		irradianceScale:     cfg.IrradianceScale,
	}
}

func (c *SensorClient) connect() error {
	if c.client != nil {
		return nil
	}

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", c.ip, c.port),
		Timeout: c.timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create modbus client: %w", err)
	}

	if err := client.Open(); err != nil {
		return fmt.Errorf("failed to connect to sensor: %w", err)
	}

	client.SetUnitId(c.slaveID)
	c.client = client
	return nil
}

func (c *SensorClient) Get(ctx context.Context) (*Data, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(); err != nil {
		return nil, err
	}

	temperatureRaw, err := c.client.ReadRegister(c.temperatureRegister, modbus.INPUT_REGISTER)
	if err != nil {
		c.drop()
		return nil, fmt.Errorf("failed to read temperature register %d: %w", c.temperatureRegister, err)
	}

	irradianceRaw, err := c.client.ReadRegister(c.irradianceRegister, modbus.INPUT_REGISTER)
	if err != nil {
		c.drop()
		return nil, fmt.Errorf("failed to read irradiance register %d: %w", c.irradianceRegister, err)
	}

	return &Data{
		// Temperature registers are signed, probes go below zero
		Temperature: float64(int16(temperatureRaw)) * c.temperatureScale,
		Irradiance:  float64(irradianceRaw) * c.irradianceScale,
		Source:      "sensor",
		ObservedAt:  time.Now(),
	}, nil
}

// drop closes a failed connection so the next Get reconnects.
func (c *SensorClient) drop() {
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

func (c *SensorClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
