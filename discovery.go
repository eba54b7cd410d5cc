package tuyalocal

import (
	"context"

	"go.uber.org/zap"
)

// Discoverer finds the IP addresses of devices on the local network.
// No implementation ships with this package.
type Discoverer interface {
	// Discover returns an id → IP map for whichever of ids it could find
	Discover(ctx context.Context, ids []string) (map[string]string, error)
}

// ResolveIDs looks up the addresses of devices registered without an IP.
//
// Without a Discoverer it does nothing and reports success, so callers must
// supply IPs themselves; Capabilities().Discovery tells the two cases apart.
// With one, it returns true only when every device has an address afterwards.
func (c *Client) ResolveIDs(ctx context.Context) (bool, error) {
	if c.discoverer == nil {
		c.logger.Debug("No discoverer wired, skipping address resolution")
		return true, nil
	}

	var need []string
	for _, d := range c.registry.Descriptors() {
		if d.IP == "" {
			need = append(need, d.ID)
		}
	}
	if len(need) == 0 {
		return true, nil
	}

	c.logger.Debug("Resolving device addresses", zap.Strings("device_ids", need))

	found, err := c.discoverer.Discover(ctx, need)
	if err != nil {
		return false, err
	}

	missing := 0
	for _, id := range need {
		ip, ok := found[id]
		if !ok || ip == "" {
			missing++
			c.logger.Warn("Device address not found", zap.String("device_id", id))
			continue
		}
		if err := c.registry.SetIP(id, ip); err != nil {
			return false, err
		}
		c.logger.Info("Device address resolved",
			zap.String("device_id", id),
			zap.String("ip", ip),
		)
	}

	return missing == 0, nil
}
