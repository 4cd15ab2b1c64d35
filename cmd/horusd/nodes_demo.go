package main

import (
	"fmt"

	"github.com/horus-robotics/horus/internal/node"
)

// Twist mirrors the FFI's built-in Twist message kind: linear and angular
// velocity components, as a fixed-layout POD struct.
type Twist struct {
	LinearX, LinearY, LinearZ    float64
	AngularX, AngularY, AngularZ float64
}

// VelocityProducer publishes an increasing forward velocity on cmd_vel
// every tick, standing in for a planner node in a real robot.
type VelocityProducer struct {
	pub   *node.Publisher[Twist]
	speed float64
}

func (p *VelocityProducer) Init(ctx *node.Context) error {
	pub, err := node.CreatePublisher[Twist](ctx, "cmd_vel")
	if err != nil {
		return err
	}
	p.pub = pub
	ctx.LogInfo("velocity producer ready")
	return nil
}

func (p *VelocityProducer) Tick(ctx *node.Context) error {
	p.speed += 0.01
	if p.speed > 1.0 {
		p.speed = 0
	}
	msg := Twist{LinearX: p.speed}
	_, err := p.pub.Send(&msg)
	return err
}

func (p *VelocityProducer) Shutdown(ctx *node.Context) error {
	ctx.LogInfo("velocity producer shutting down")
	return nil
}

// VelocityConsumer reads cmd_vel every tick, standing in for a motor
// controller node.
type VelocityConsumer struct {
	sub      *node.Subscriber[Twist]
	received uint64
}

func (c *VelocityConsumer) Init(ctx *node.Context) error {
	sub, err := node.CreateSubscriber[Twist](ctx, "cmd_vel")
	if err != nil {
		return err
	}
	c.sub = sub
	return nil
}

func (c *VelocityConsumer) Tick(ctx *node.Context) error {
	var msg Twist
	ok, overrun, err := c.sub.TryRecv(&msg)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	c.received++
	if overrun > 0 {
		ctx.LogWarn(fmt.Sprintf("cmd_vel overrun(%d)", overrun))
	}
	return nil
}

func (c *VelocityConsumer) Shutdown(ctx *node.Context) error {
	ctx.LogInfo(fmt.Sprintf("velocity consumer processed %d messages", c.received))
	return nil
}

// Watchdog is a Background-priority node that logs a heartbeat every
// second's worth of ticks, demonstrating a low-priority node that never
// touches the bus.
type Watchdog struct {
	ticksPerHeartbeat uint64
}

func (w *Watchdog) Init(ctx *node.Context) error {
	w.ticksPerHeartbeat = 60
	return nil
}

func (w *Watchdog) Tick(ctx *node.Context) error {
	if ctx.TickCount()%w.ticksPerHeartbeat == 0 {
		ctx.LogDebug("heartbeat")
	}
	return nil
}

func (w *Watchdog) Shutdown(ctx *node.Context) error { return nil }
