package ffi

/*
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

// Three function-pointer lifecycle callbacks plus the user_data the core
// passes back verbatim, matching spec.md §4.4's FFI node shape. Each
// takes the NodeContext as an opaque 32-bit token, not a raw pointer: its
// validity is scoped to the single callback invocation it was minted for.
typedef uint8_t (*horus_init_fn)(void* user_data, uint32_t ctx);
typedef uint8_t (*horus_tick_fn)(void* user_data, uint32_t ctx);
typedef void (*horus_shutdown_fn)(void* user_data, uint32_t ctx);

// cgo cannot call a C function pointer directly from Go; these tiny shims
// are the call site.
static inline uint8_t horus_call_init(horus_init_fn fn, void* user_data, uint32_t ctx) {
    return fn(user_data, ctx);
}
static inline uint8_t horus_call_tick(horus_tick_fn fn, void* user_data, uint32_t ctx) {
    return fn(user_data, ctx);
}
static inline void horus_call_shutdown(horus_shutdown_fn fn, void* user_data, uint32_t ctx) {
    fn(user_data, ctx);
}
*/
import "C"

import (
	"errors"
	"time"
	"unsafe"

	"github.com/horus-robotics/horus/internal/bus"
	"github.com/horus-robotics/horus/internal/node"
	"github.com/horus-robotics/horus/internal/scheduler"
	"github.com/horus-robotics/horus/internal/telemetry"
)

// Process-wide handle tables. These are the FFI boundary's only state;
// everything else lives behind the handles they resolve to.
var (
	schedulerTable  = newSlotTable[*scheduler.Scheduler]()
	nodeTable       = newSlotTable[*foreignNode]()
	publisherTable  = newSlotTable[*bus.PublisherHandle]()
	subscriberTable = newSlotTable[*bus.SubscriberHandle]()
	contextTable    = newSlotTable[*node.Context]()
)

var processRing = telemetry.NewRing(telemetry.DefaultRingSize)

// foreignNode adapts the three C function pointers plus user_data into the
// native node.Capability interface, so a foreign-language node is
// registered with a Scheduler exactly like a Go one: the scheduler cannot
// tell the two apart.
type foreignNode struct {
	name       string
	initFn     C.horus_init_fn
	tickFn     C.horus_tick_fn
	shutdownFn C.horus_shutdown_fn
	userData   unsafe.Pointer
}

// withContextToken mints a transient handle for ctx, runs fn with it, and
// always retires the handle afterward: a NodeContext token is only ever
// valid for the duration of the callback it was issued to.
func withContextToken(ctx *node.Context, fn func(token C.uint32_t)) {
	h := contextTable.Insert(ctx)
	defer contextTable.Remove(h)
	fn(C.uint32_t(h))
}

func (n *foreignNode) Init(ctx *node.Context) (err error) {
	var ok C.uint8_t
	withContextToken(ctx, func(token C.uint32_t) {
		ok = C.horus_call_init(n.initFn, n.userData, token)
	})
	if ok == 0 {
		return errors.New("horus: foreign node init returned false")
	}
	return nil
}

func (n *foreignNode) Tick(ctx *node.Context) (err error) {
	var ok C.uint8_t
	withContextToken(ctx, func(token C.uint32_t) {
		ok = C.horus_call_tick(n.tickFn, n.userData, token)
	})
	if ok == 0 {
		return errors.New("horus: foreign node tick returned false")
	}
	return nil
}

func (n *foreignNode) Shutdown(ctx *node.Context) error {
	withContextToken(ctx, func(token C.uint32_t) {
		C.horus_call_shutdown(n.shutdownFn, n.userData, token)
	})
	return nil
}

func resolveContext(token C.uint32_t) (*node.Context, error) {
	return contextTable.Get(Handle(token))
}

// --- System ---

//export horus_init
func horus_init(name *C.char) C.uint8_t {
	return 1
}

//export horus_shutdown
func horus_shutdown() {}

//export horus_ok
func horus_ok() C.uint8_t { return 1 }

//export horus_sleep_ms
func horus_sleep_ms(ms C.uint32_t) {
	time.Sleep(time.Duration(ms) * time.Millisecond)
}

//export horus_time_now_ns
func horus_time_now_ns() C.int64_t {
	return C.int64_t(time.Now().UnixNano())
}

// --- Bus (raw byte handles, no node context) ---

//export horus_publisher_sized
func horus_publisher_sized(topicName *C.char, elementSize C.int32_t) C.uint32_t {
	name := C.GoString(topicName)
	topic, err := bus.Default().CreateTopic(name, int(elementSize), bus.DefaultCapacity)
	if err != nil {
		return 0
	}
	h := topic.AttachPublisher("ffi")
	return C.uint32_t(publisherTable.Insert(h))
}

//export horus_publisher
func horus_publisher(topicName *C.char, kind C.int32_t) C.uint32_t {
	size, ok := SizeOf(MessageKind(kind))
	if !ok {
		return 0
	}
	return horus_publisher_sized(topicName, C.int32_t(size))
}

//export horus_subscriber_sized
func horus_subscriber_sized(topicName *C.char, elementSize C.int32_t) C.uint32_t {
	name := C.GoString(topicName)
	topic, err := bus.Default().CreateTopic(name, int(elementSize), bus.DefaultCapacity)
	if err != nil {
		return 0
	}
	h := topic.AttachSubscriber("ffi")
	return C.uint32_t(subscriberTable.Insert(h))
}

//export horus_subscriber
func horus_subscriber(topicName *C.char, kind C.int32_t) C.uint32_t {
	size, ok := SizeOf(MessageKind(kind))
	if !ok {
		return 0
	}
	return horus_subscriber_sized(topicName, C.int32_t(size))
}

//export horus_send
func horus_send(pub C.uint32_t, dataPtr unsafe.Pointer) C.uint8_t {
	handle, err := publisherTable.Get(Handle(pub))
	if err != nil {
		return 0
	}
	topic := handle.Topic()
	payload := C.GoBytes(dataPtr, C.int(topic.ElementSize()))
	if _, err := topic.Publish(handle, payload); err != nil {
		return 0
	}
	return 1
}

//export horus_try_recv
func horus_try_recv(sub C.uint32_t, outPtr unsafe.Pointer) C.uint8_t {
	handle, err := subscriberTable.Get(Handle(sub))
	if err != nil {
		return 0
	}
	topic := handle.Topic()
	out := make([]byte, topic.ElementSize())
	status, _, _, _, err := topic.TryRecv(handle, out)
	if err != nil || status != bus.Delivered {
		return 0
	}
	C.memcpy(outPtr, unsafe.Pointer(&out[0]), C.size_t(len(out)))
	return 1
}

//export horus_recv
func horus_recv(sub C.uint32_t, outPtr unsafe.Pointer) C.uint8_t {
	// The bus has no blocking receive (spec.md §5: "no blocking recv on
	// the hot path"); recv is try_recv spun until delivered, bounded so a
	// foreign caller blocked here cannot wedge the process forever.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if horus_try_recv(sub, outPtr) == 1 {
			return 1
		}
		time.Sleep(time.Millisecond)
	}
	return 0
}

// --- Context-aware variants (emit telemetry through the owning node) ---

//export horus_node_send
func horus_node_send(ctxToken C.uint32_t, pub C.uint32_t, dataPtr unsafe.Pointer) C.uint8_t {
	ctx, err := resolveContext(ctxToken)
	if err != nil {
		return 0
	}
	handle, err := publisherTable.Get(Handle(pub))
	if err != nil {
		return 0
	}
	topic := handle.Topic()
	payload := C.GoBytes(dataPtr, C.int(topic.ElementSize()))
	_, err = topic.Publish(handle, payload)
	ctx.LogDebug("publish") // ring append is a no-op unless the node has logging enabled
	return boolToC(err == nil)
}

//export horus_node_try_recv
func horus_node_try_recv(ctxToken C.uint32_t, sub C.uint32_t, outPtr unsafe.Pointer) C.uint8_t {
	ctx, err := resolveContext(ctxToken)
	if err != nil {
		return 0
	}
	ok := horus_try_recv(sub, outPtr)
	if ok == 1 {
		ctx.LogDebug("receive")
	}
	return ok
}

//export horus_node_recv
func horus_node_recv(ctxToken C.uint32_t, sub C.uint32_t, outPtr unsafe.Pointer) C.uint8_t {
	return horus_node_try_recv(ctxToken, sub, outPtr)
}

//export horus_node_create_publisher
func horus_node_create_publisher(ctxToken C.uint32_t, topicName *C.char, kind C.int32_t) C.uint32_t {
	return horus_publisher(topicName, kind)
}

//export horus_node_create_subscriber
func horus_node_create_subscriber(ctxToken C.uint32_t, topicName *C.char, kind C.int32_t) C.uint32_t {
	return horus_subscriber(topicName, kind)
}

// --- Node ---

//export horus_node_create
func horus_node_create(name *C.char, initFn C.horus_init_fn, tickFn C.horus_tick_fn, shutdownFn C.horus_shutdown_fn, userData unsafe.Pointer) C.uint32_t {
	fn := &foreignNode{
		name:       C.GoString(name),
		initFn:     initFn,
		tickFn:     tickFn,
		shutdownFn: shutdownFn,
		userData:   userData,
	}
	return C.uint32_t(nodeTable.Insert(fn))
}

//export horus_node_destroy
func horus_node_destroy(h C.uint32_t) {
	nodeTable.Remove(Handle(h))
}

// --- Scheduler ---

//export horus_scheduler_create
func horus_scheduler_create(name *C.char) C.uint32_t {
	s := scheduler.New(C.GoString(name), scheduler.WithRing(processRing))
	return C.uint32_t(schedulerTable.Insert(s))
}

//export horus_scheduler_add
func horus_scheduler_add(schedHandle C.uint32_t, nodeHandle C.uint32_t, priority C.int32_t, enableLogging C.uint8_t) C.uint8_t {
	s, err := schedulerTable.Get(Handle(schedHandle))
	if err != nil {
		return 0
	}
	fn, err := nodeTable.Get(Handle(nodeHandle))
	if err != nil {
		return 0
	}
	_, err = s.Add(fn.name, priorityOrdinal(int32(priority)), enableLogging != 0, fn)
	return boolToC(err == nil)
}

//export horus_scheduler_run
func horus_scheduler_run(h C.uint32_t) C.uint8_t {
	s, err := schedulerTable.Get(Handle(h))
	if err != nil {
		return 0
	}
	return boolToC(s.Run() == nil)
}

//export horus_scheduler_stop
func horus_scheduler_stop(h C.uint32_t) {
	if s, err := schedulerTable.Get(Handle(h)); err == nil {
		s.Stop()
	}
}

//export horus_scheduler_destroy
func horus_scheduler_destroy(h C.uint32_t) {
	schedulerTable.Remove(Handle(h))
}

// --- Telemetry-adjacent ---

func processLevelEvent(severity telemetry.Severity, text string) {
	processRing.Append(telemetry.Event{
		TimestampNs: time.Now().UnixNano(),
		NodeName:    "ffi",
		Severity:    severity,
		Kind:        telemetry.KindMessage,
		Text:        text,
	})
}

//export horus_log_info
func horus_log_info(msg *C.char) { processLevelEvent(telemetry.SeverityInfo, C.GoString(msg)) }

//export horus_log_warn
func horus_log_warn(msg *C.char) { processLevelEvent(telemetry.SeverityWarn, C.GoString(msg)) }

//export horus_log_error
func horus_log_error(msg *C.char) { processLevelEvent(telemetry.SeverityError, C.GoString(msg)) }

//export horus_log_debug
func horus_log_debug(msg *C.char) { processLevelEvent(telemetry.SeverityDebug, C.GoString(msg)) }

//export horus_node_log_info
func horus_node_log_info(ctxToken C.uint32_t, msg *C.char) {
	if ctx, err := resolveContext(ctxToken); err == nil {
		ctx.LogInfo(C.GoString(msg))
	}
}

//export horus_node_log_warn
func horus_node_log_warn(ctxToken C.uint32_t, msg *C.char) {
	if ctx, err := resolveContext(ctxToken); err == nil {
		ctx.LogWarn(C.GoString(msg))
	}
}

//export horus_node_log_error
func horus_node_log_error(ctxToken C.uint32_t, msg *C.char) {
	if ctx, err := resolveContext(ctxToken); err == nil {
		ctx.LogError(C.GoString(msg))
	}
}

func boolToC(b bool) C.uint8_t {
	if b {
		return 1
	}
	return 0
}
