// Package ffi implements the stable C ABI boundary: opaque 32-bit handles
// for node/publisher/subscriber/scheduler, three function-pointer lifecycle
// callbacks plus a user_data pointer, and a NodeContext opaque pointer
// passed into each callback. See bridge.go for the //export surface and the
// handle table instances, handles.go for the handle table type; this file
// holds the ABI's constant surface.
//
// System:           init(name), shutdown(), ok(), sleep_ms(ms), time_now_ns()
// Bus:               publisher(topic, kind), publisher_sized(topic, bytes),
//                    subscriber(topic, kind), subscriber_sized(topic, bytes),
//                    send(pub, data_ptr), recv(sub, out_ptr), try_recv(sub, out_ptr)
// Context-aware:     node_send(ctx, pub, data), node_recv(ctx, sub, out),
//                    node_try_recv(ctx, sub, out), node_create_publisher(ctx, topic, kind),
//                    node_create_subscriber(ctx, topic, kind)
// Scheduler:         scheduler_create(name), scheduler_add(sched, node, priority, logging) -> bool,
//                    scheduler_run(sched), scheduler_stop(sched), scheduler_destroy(sched)
// Node:              node_create(name, init_fn, tick_fn, shutdown_fn, user_data) -> node_handle,
//                    node_destroy(node)
// Telemetry-adjacent: log_info/warn/error/debug(msg), node_log_info/warn/error(ctx, msg)
//
// Priorities cross the boundary as small integer ordinals matching
// node.Priority: 0 = Critical, 1 = High, 2 = Normal, 3 = Low, 4 = Background.
package ffi

import "github.com/horus-robotics/horus/internal/node"

// MessageKind is the stable, versioned enum of well-known message shapes a
// foreign node may declare when creating a publisher/subscriber without
// specifying a raw byte size. Custom plus an explicit byte count is the
// extension hatch for anything not in this list.
type MessageKind int32

const (
	KindTwist MessageKind = iota
	KindPose
	KindLaserScan
	KindImage
	KindImu
	KindJointState
	KindPointCloud
	KindCustom
)

// messageKindSizes gives the fixed wire size, in bytes, of every built-in
// message kind. These mirror plain POD structs of float64/int32 fields;
// Custom has no fixed size and must go through the *_sized variants.
var messageKindSizes = map[MessageKind]int{
	KindTwist:      48, // linear{x,y,z} + angular{x,y,z}, float64
	KindPose:       56, // position{x,y,z} + orientation{x,y,z,w}, float64
	KindLaserScan:  40, // angle_min, angle_max, angle_increment, range_min/max float64 header; ranges carried via *_sized
	KindImage:      16, // width, height uint32 + encoding tag; pixel data carried via *_sized
	KindImu:        80, // orientation(4) + angular_velocity(3) + linear_acceleration(3), float64
	KindJointState: 24, // position, velocity, effort float64, per joint slot; multi-joint via *_sized
	KindPointCloud: 8,  // point_count uint64 header; point data carried via *_sized
}

// SizeOf returns the fixed wire size for a built-in MessageKind, or false
// for KindCustom and any kind without a fixed shape.
func SizeOf(kind MessageKind) (int, bool) {
	size, ok := messageKindSizes[kind]
	return size, ok
}

// priorityOrdinal converts the FFI's small integer ordinal into a
// node.Priority, failing closed (Background) on an out-of-range value so a
// malformed foreign call degrades rather than panics.
func priorityOrdinal(ordinal int32) node.Priority {
	switch ordinal {
	case 0:
		return node.Critical
	case 1:
		return node.High
	case 2:
		return node.Normal
	case 3:
		return node.Low
	default:
		return node.Background
	}
}
