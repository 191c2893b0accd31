package robot

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zhiquanyeo/ftl-robot-host/types"
)

// BuildInput is provided to a device builder to construct a device instance.
type BuildInput struct {
	Ctx    context.Context
	ID     string
	Bus    types.Transport
	Params map[string]any
	Log    zerolog.Logger
}

// DeviceBuilder constructs a device from config and its resolved bus handle.
type DeviceBuilder interface {
	Build(in BuildInput) (types.Device, error)
}

// TransportBuilder constructs a bus handle from an interface declaration.
type TransportBuilder interface {
	Build(cfg types.InterfaceCfg) (types.Transport, error)
}

var (
	muBuilders  sync.RWMutex
	devBuilders = map[string]DeviceBuilder{}
	busBuilders = map[string]TransportBuilder{}
)

// RegisterDevice installs a builder for a given device type string.
// It panics on duplicate registration to catch mistakes at start-up.
func RegisterDevice(deviceType string, b DeviceBuilder) {
	muBuilders.Lock()
	defer muBuilders.Unlock()
	if deviceType == "" {
		panic("robot: empty device type for builder")
	}
	if _, exists := devBuilders[deviceType]; exists {
		panic(fmt.Sprintf("robot: builder already registered for device type %q", deviceType))
	}
	devBuilders[deviceType] = b
}

// RegisterTransport installs a builder for a given interface type string.
func RegisterTransport(ifaceType string, b TransportBuilder) {
	muBuilders.Lock()
	defer muBuilders.Unlock()
	if ifaceType == "" {
		panic("robot: empty interface type for builder")
	}
	if _, exists := busBuilders[ifaceType]; exists {
		panic(fmt.Sprintf("robot: builder already registered for interface type %q", ifaceType))
	}
	busBuilders[ifaceType] = b
}

func findDeviceBuilder(deviceType string) (DeviceBuilder, bool) {
	muBuilders.RLock()
	defer muBuilders.RUnlock()
	b, ok := devBuilders[deviceType]
	return b, ok
}

func findTransportBuilder(ifaceType string) (TransportBuilder, bool) {
	muBuilders.RLock()
	defer muBuilders.RUnlock()
	b, ok := busBuilders[ifaceType]
	return b, ok
}
