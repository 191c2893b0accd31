package romi

import (
	"github.com/zhiquanyeo/ftl-robot-host/robot"
	"github.com/zhiquanyeo/ftl-robot-host/types"
)

func init() { robot.RegisterDevice("romi", builder{}) }

type builder struct{}

func (builder) Build(in robot.BuildInput) (types.Device, error) {
	addr := uint8(robot.IntParam(in.Params, "addr", Address))
	d := New(in.ID, in.Bus, addr, in.Log)
	d.Start(in.Ctx)
	return d, nil
}
