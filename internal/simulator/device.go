package simulator

import (
	"encoding/json"
	"sync"

	"github.com/muurk/tuyalocal/internal/config"
	"github.com/muurk/tuyalocal/internal/signer"
)

const defaultVersion = "3.1"

// device is the in-memory state of one simulated plug
type device struct {
	id      string
	key     string
	name    string
	version string
	cipher  *signer.Cipher

	mu  sync.Mutex
	dps map[string]any
}

func newDevice(cfg config.Device) (*device, error) {
	c, err := signer.NewCipher(cfg.Key)
	if err != nil {
		return nil, err
	}

	version := cfg.Version
	if version == "" {
		version = defaultVersion
	}

	dps := make(map[string]any, len(cfg.DPS))
	for k, v := range cfg.DPS {
		dps[k] = v
	}
	if _, ok := dps["1"]; !ok {
		dps["1"] = false
	}

	return &device{
		id:      cfg.ID,
		key:     cfg.Key,
		name:    cfg.Name,
		version: version,
		cipher:  c,
		dps:     dps,
	}, nil
}

// apply merges data points from a set command
func (d *device) apply(dps map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range dps {
		d.dps[k] = v
	}
}

// snapshot returns a copy of the data points
func (d *device) snapshot() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]any, len(d.dps))
	for k, v := range d.dps {
		out[k] = v
	}
	return out
}

// statusJSON is the body devices send back
func (d *device) statusJSON() ([]byte, error) {
	return json.Marshal(struct {
		DevID string         `json:"devId"`
		DPS   map[string]any `json:"dps"`
	}{
		DevID: d.id,
		DPS:   d.snapshot(),
	})
}

// open verifies and decrypts a set payload addressed to this device
func (d *device) open(payload []byte) (map[string]any, error) {
	plain, err := signer.Verify(d.cipher, d.key, payload, d.version)
	if err != nil {
		return nil, err
	}
	var cmd map[string]any
	if err := json.Unmarshal(plain, &cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}
