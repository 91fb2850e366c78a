package client

import (
	"context"
	"fmt"
	"testing"
	"time"

	. "github.com/TheSlimvReal/posture-client/internal"
	"github.com/TheSlimvReal/posture-client/pkg/frame"
	"github.com/TheSlimvReal/posture-client/pkg/models"
	"github.com/TheSlimvReal/posture-client/pkg/util"
	"github.com/pkg/errors"
	"gotest.tools/assert"
)

var (
	testSensor = models.PeripheralHandle{ID: "11:22:33:44:55:66", Name: "PostureSensor", RSSI: -60}
	testOther  = models.PeripheralHandle{ID: "22:22:33:44:55:66", Name: "PostureSensor", RSSI: -70}
	testFrame  = frame.Encode(models.SensorSample{Left: 1200, Middle: 1300, Right: 1400})
)

type harness struct {
	client    *Client
	transport *DummyTransport
	listener  *TestListener
	sink      *DummyFrameSink
}

func newHarness(opts ...Option) *harness {
	h := &harness{transport: &DummyTransport{}, listener: &TestListener{}, sink: &DummyFrameSink{}}
	opts = append([]Option{WithStepTimeout(0), WithListener(h.listener), WithSink(h.sink)}, opts...)
	h.client = New(h.transport, opts...)
	return h
}

// respond makes the dummy transport answer like a healthy sensor
func (h *harness) respond() {
	h.transport.OnCall = func(call TransportCall) {
		p := call.Peripheral
		switch call.Method {
		case "Connect":
			h.client.Dispatch(models.Event{Kind: models.EventConnected, Peripheral: p})
		case "DiscoverServices":
			h.client.Dispatch(models.Event{Kind: models.EventServicesFound, Peripheral: p, Services: []string{util.DataServiceUUID}})
		case "DiscoverCharacteristics":
			h.client.Dispatch(models.Event{Kind: models.EventCharacteristicFound, Peripheral: p, Characteristic: util.ResistanceCharUUID})
			h.client.Dispatch(models.Event{Kind: models.EventCharacteristicsDone, Peripheral: p})
		case "Subscribe":
			h.client.Dispatch(models.Event{Kind: models.EventSubscribed, Peripheral: p})
		case "Read":
			h.client.Dispatch(models.Event{Kind: models.EventValueUpdate, Peripheral: p, Data: testFrame})
		case "Cancel":
			h.client.Dispatch(models.Event{Kind: models.EventDisconnected, Peripheral: p})
		}
	}
}

func (h *harness) subscribe(t *testing.T, p models.PeripheralHandle) {
	h.client.StartScan()
	h.client.Dispatch(models.Event{Kind: models.EventPeripheralFound, Peripheral: p})
	h.client.Connect(p)
	assert.Equal(t, h.client.State(), models.Subscribed)
}

func connectionError(t *testing.T, l *TestListener) *models.ConnectionError {
	errs := l.ConnectionErrors()
	assert.Equal(t, len(errs), 1)
	var cerr *models.ConnectionError
	assert.Assert(t, errors.As(errs[0], &cerr))
	return cerr
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscribePath(t *testing.T) {
	h := newHarness()
	h.respond()
	h.subscribe(t, testSensor)

	assert.DeepEqual(t, h.listener.States(), []models.ConnectionState{
		models.Scanning, models.Connecting, models.ServiceDiscovery, models.CharacteristicDiscovery, models.Subscribed,
	})
	assert.DeepEqual(t, h.transport.Methods(), []string{
		"StartScan", "StopScan", "Connect", "DiscoverServices", "DiscoverCharacteristics", "Subscribe", "Read",
	})
	calls := h.transport.Calls()
	assert.DeepEqual(t, calls[0].Args, []string{util.DataServiceUUID})
	assert.DeepEqual(t, calls[3].Args, []string{util.DataServiceUUID})
	assert.DeepEqual(t, calls[5].Args, []string{util.ResistanceCharUUID})

	frames, clears, resets := h.sink.Snapshot()
	assert.Equal(t, clears, 1)
	assert.Equal(t, resets, 0)
	assert.DeepEqual(t, frames, [][]byte{testFrame})

	p, ok := h.client.Peripheral()
	assert.Assert(t, ok)
	assert.Equal(t, p, testSensor)
	assert.Equal(t, len(h.listener.ConnectionErrors()), 0)
}

func TestDisconnect(t *testing.T) {
	h := newHarness()
	h.respond()
	h.subscribe(t, testSensor)
	h.client.Disconnect()

	assert.Equal(t, h.client.State(), models.Idle)
	states := h.listener.States()
	assert.DeepEqual(t, states[len(states)-2:], []models.ConnectionState{models.Disconnecting, models.Idle})
	assert.Equal(t, h.transport.Count("Cancel"), 1)
	_, _, resets := h.sink.Snapshot()
	assert.Equal(t, resets, 1)
	_, ok := h.client.Peripheral()
	assert.Assert(t, !ok)
	assert.Equal(t, len(h.listener.ConnectionErrors()), 0)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	h := newHarness()
	h.client.Disconnect()
	assert.Equal(t, len(h.listener.States()), 0)

	h.respond()
	h.subscribe(t, testSensor)
	h.transport.OnCall = nil
	h.client.Disconnect()
	h.client.Disconnect()
	assert.Equal(t, h.client.State(), models.Disconnecting)
	assert.Equal(t, h.transport.Count("Cancel"), 1)

	h.client.Dispatch(models.Event{Kind: models.EventDisconnected, Peripheral: testSensor})
	assert.Equal(t, h.client.State(), models.Idle)
}

func TestDisconnectWhileScanning(t *testing.T) {
	h := newHarness()
	h.client.StartScan()
	h.client.Disconnect()
	assert.DeepEqual(t, h.listener.States(), []models.ConnectionState{models.Scanning, models.Disconnecting, models.Idle})
	assert.DeepEqual(t, h.transport.Methods(), []string{"StartScan", "StopScan"})
	_, _, resets := h.sink.Snapshot()
	assert.Equal(t, resets, 1)
}

func TestStopScan(t *testing.T) {
	h := newHarness()
	h.client.StopScan()
	assert.Equal(t, len(h.transport.Calls()), 0)
	h.client.StartScan()
	h.client.StartScan()
	h.client.StopScan()
	assert.DeepEqual(t, h.transport.Methods(), []string{"StartScan", "StopScan"})
	assert.Equal(t, h.client.State(), models.Idle)
}

func TestPeripheralDeduplication(t *testing.T) {
	h := newHarness()
	h.client.StartScan()
	for i := 0; i < 3; i++ {
		h.client.Dispatch(models.Event{Kind: models.EventPeripheralFound, Peripheral: testSensor})
	}
	h.client.Dispatch(models.Event{Kind: models.EventPeripheralFound, Peripheral: models.PeripheralHandle{ID: "aa:bb:cc:dd:ee:ff", Name: "Alpha"}})
	h.client.Dispatch(models.Event{Kind: models.EventPeripheralFound, Peripheral: models.PeripheralHandle{ID: "AA:BB:CC:DD:EE:FF", Name: "Alpha", RSSI: -40}})

	assert.Equal(t, len(h.listener.Found()), 2)
	peripherals := h.client.Peripherals()
	assert.Equal(t, len(peripherals), 2)
	assert.Equal(t, peripherals[0].Name, "Alpha")
	assert.Equal(t, peripherals[0].RSSI, -40)
	assert.Equal(t, peripherals[1], testSensor)
}

func TestStartScanResetsDiscovered(t *testing.T) {
	h := newHarness()
	h.client.StartScan()
	h.client.Dispatch(models.Event{Kind: models.EventPeripheralFound, Peripheral: testSensor})
	h.client.StopScan()
	h.client.StartScan()
	assert.Equal(t, len(h.client.Peripherals()), 0)
	h.client.Dispatch(models.Event{Kind: models.EventPeripheralFound, Peripheral: testSensor})
	assert.Equal(t, len(h.listener.Found()), 2)
}

func TestPeripheralFoundOutsideScan(t *testing.T) {
	h := newHarness()
	h.client.Dispatch(models.Event{Kind: models.EventPeripheralFound, Peripheral: testSensor})
	assert.Equal(t, len(h.client.Peripherals()), 0)
	assert.Equal(t, len(h.listener.Found()), 0)
}

func TestConnectRequiresScan(t *testing.T) {
	h := newHarness()
	h.client.Connect(testSensor)
	assert.Equal(t, h.client.State(), models.Idle)
	assert.Equal(t, h.transport.Count("Connect"), 0)
}

func TestForcedReconnect(t *testing.T) {
	h := newHarness()
	h.respond()
	h.subscribe(t, testSensor)
	h.client.Connect(testOther)

	assert.Equal(t, h.client.State(), models.Subscribed)
	p, _ := h.client.Peripheral()
	assert.Equal(t, p, testOther)

	var connects, cancels []models.PeripheralHandle
	for _, c := range h.transport.Calls() {
		switch c.Method {
		case "Connect":
			connects = append(connects, c.Peripheral)
		case "Cancel":
			cancels = append(cancels, c.Peripheral)
		}
	}
	assert.DeepEqual(t, connects, []models.PeripheralHandle{testSensor, testOther})
	assert.DeepEqual(t, cancels, []models.PeripheralHandle{testSensor})

	states := h.listener.States()
	assert.DeepEqual(t, states[5:], []models.ConnectionState{
		models.Disconnecting, models.Idle, models.Connecting, models.ServiceDiscovery, models.CharacteristicDiscovery, models.Subscribed,
	})
	_, clears, resets := h.sink.Snapshot()
	assert.Equal(t, clears, 2)
	assert.Equal(t, resets, 1)
}

func TestConnectSamePeripheralIsIgnored(t *testing.T) {
	h := newHarness()
	h.respond()
	h.subscribe(t, testSensor)
	h.client.Connect(testSensor)
	assert.Equal(t, h.transport.Count("Cancel"), 0)
	assert.Equal(t, h.client.State(), models.Subscribed)
}

func TestExplicitDisconnectDropsPendingConnect(t *testing.T) {
	h := newHarness()
	h.respond()
	h.subscribe(t, testSensor)
	h.transport.OnCall = nil
	h.client.Connect(testOther)
	assert.Equal(t, h.client.State(), models.Disconnecting)
	h.client.Disconnect()
	h.client.Dispatch(models.Event{Kind: models.EventDisconnected, Peripheral: testSensor})
	assert.Equal(t, h.client.State(), models.Idle)
	assert.Equal(t, h.transport.Count("Connect"), 1)
}

func TestNoServices(t *testing.T) {
	h := newHarness()
	h.respond()
	h.transport.OnCall = func(call TransportCall) {
		switch call.Method {
		case "Connect":
			h.client.Dispatch(models.Event{Kind: models.EventConnected, Peripheral: call.Peripheral})
		case "DiscoverServices":
			h.client.Dispatch(models.Event{Kind: models.EventServicesFound, Peripheral: call.Peripheral})
		}
	}
	h.client.StartScan()
	h.client.Connect(testSensor)

	assert.Equal(t, h.client.State(), models.Idle)
	cerr := connectionError(t, h.listener)
	assert.Assert(t, errors.Is(cerr, models.ErrNoServices))
	assert.Equal(t, cerr.State, models.ServiceDiscovery)
	assert.Equal(t, cerr.Peripheral, testSensor)
	assert.Equal(t, h.transport.Count("Cancel"), 1)
	assert.Equal(t, h.transport.Count("DiscoverCharacteristics"), 0)
}

func TestCharacteristicMissing(t *testing.T) {
	h := newHarness()
	h.transport.OnCall = func(call TransportCall) {
		p := call.Peripheral
		switch call.Method {
		case "Connect":
			h.client.Dispatch(models.Event{Kind: models.EventConnected, Peripheral: p})
		case "DiscoverServices":
			h.client.Dispatch(models.Event{Kind: models.EventServicesFound, Peripheral: p, Services: []string{util.DataServiceUUID}})
		case "DiscoverCharacteristics":
			h.client.Dispatch(models.Event{Kind: models.EventCharacteristicFound, Peripheral: p, Characteristic: "2A19"})
			h.client.Dispatch(models.Event{Kind: models.EventCharacteristicsDone, Peripheral: p})
		}
	}
	h.client.StartScan()
	h.client.Connect(testSensor)

	assert.Equal(t, h.client.State(), models.Idle)
	cerr := connectionError(t, h.listener)
	assert.Assert(t, errors.Is(cerr, models.ErrCharacteristicMissing))
	assert.Equal(t, h.transport.Count("Subscribe"), 0)
}

func TestSubscribeIssuedOnce(t *testing.T) {
	h := newHarness()
	h.client.StartScan()
	h.client.Connect(testSensor)
	h.client.Dispatch(models.Event{Kind: models.EventConnected, Peripheral: testSensor})
	h.client.Dispatch(models.Event{Kind: models.EventServicesFound, Peripheral: testSensor, Services: []string{"180a"}})
	for i := 0; i < 3; i++ {
		h.client.Dispatch(models.Event{Kind: models.EventCharacteristicFound, Peripheral: testSensor, Characteristic: "00002a58-0000-1000-8000-00805f9b34fb"})
	}
	assert.Equal(t, h.transport.Count("Subscribe"), 1)
	assert.Equal(t, h.transport.Count("Read"), 1)
	h.client.Dispatch(models.Event{Kind: models.EventCharacteristicsDone, Peripheral: testSensor})
	assert.Equal(t, h.client.State(), models.CharacteristicDiscovery)
	h.client.Dispatch(models.Event{Kind: models.EventSubscribed, Peripheral: testSensor})
	assert.Equal(t, h.client.State(), models.Subscribed)
}

func TestLinkLost(t *testing.T) {
	h := newHarness()
	h.respond()
	h.subscribe(t, testSensor)
	h.transport.OnCall = nil
	h.client.Dispatch(models.Event{Kind: models.EventDisconnected, Peripheral: testSensor})

	assert.Equal(t, h.client.State(), models.Idle)
	cerr := connectionError(t, h.listener)
	assert.Assert(t, errors.Is(cerr, models.ErrLinkLost))
	assert.Equal(t, cerr.State, models.Subscribed)
	_, _, resets := h.sink.Snapshot()
	assert.Equal(t, resets, 1)
}

func TestTransportRequestError(t *testing.T) {
	h := newHarness()
	h.transport.Fail = map[string]error{"Connect": errors.New("hci busy")}
	h.client.StartScan()
	h.client.Connect(testSensor)

	assert.Equal(t, h.client.State(), models.Idle)
	cerr := connectionError(t, h.listener)
	assert.ErrorContains(t, cerr, "Connect issue: hci busy")
	assert.Equal(t, cerr.State, models.Connecting)
}

func TestFailureEvent(t *testing.T) {
	h := newHarness()
	h.client.StartScan()
	h.client.Connect(testSensor)
	cause := errors.New("connection refused")
	h.client.Dispatch(models.Event{Kind: models.EventFailure, Peripheral: testOther, Err: cause})
	assert.Equal(t, h.client.State(), models.Connecting)

	h.client.Dispatch(models.Event{Kind: models.EventFailure, Peripheral: testSensor, Err: cause})
	assert.Equal(t, h.client.State(), models.Idle)
	cerr := connectionError(t, h.listener)
	assert.Assert(t, errors.Is(cerr, cause))
}

func TestStaleEventsAreDropped(t *testing.T) {
	h := newHarness()
	h.respond()
	h.client.Dispatch(models.Event{Kind: models.EventValueUpdate, Peripheral: testSensor, Data: testFrame})
	h.client.Dispatch(models.Event{Kind: models.EventConnected, Peripheral: testSensor})
	assert.Equal(t, h.client.State(), models.Idle)

	h.subscribe(t, testSensor)
	h.client.Dispatch(models.Event{Kind: models.EventValueUpdate, Peripheral: testOther, Data: testFrame})
	h.client.Dispatch(models.Event{Kind: models.EventServicesFound, Peripheral: testSensor, Services: []string{"180A"}})
	h.client.Dispatch(models.Event{Kind: models.EventDisconnected, Peripheral: testOther})
	assert.Equal(t, h.client.State(), models.Subscribed)

	frames, _, _ := h.sink.Snapshot()
	assert.Equal(t, len(frames), 1)
	h.client.Dispatch(models.Event{Kind: models.EventValueUpdate, Peripheral: testSensor, Data: testFrame})
	frames, _, _ = h.sink.Snapshot()
	assert.Equal(t, len(frames), 2)
	assert.Equal(t, len(h.listener.ConnectionErrors()), 0)
}

func links(calls []TransportCall, method string) []uint64 {
	var out []uint64
	for _, c := range calls {
		if c.Method == method {
			out = append(out, c.Link)
		}
	}
	return out
}

func TestOldLinkEventsSpareNewConnection(t *testing.T) {
	h := newHarness()
	h.respond()
	h.subscribe(t, testSensor)
	h.client.Dispatch(models.Event{Kind: models.EventDisconnected, Peripheral: testSensor, Link: 1})
	assert.Equal(t, h.client.State(), models.Idle)
	assert.Equal(t, len(h.listener.ConnectionErrors()), 1)

	h.subscribe(t, testSensor)
	frames, _, _ := h.sink.Snapshot()
	before := len(frames)
	h.client.Dispatch(models.Event{Kind: models.EventDisconnected, Peripheral: testSensor, Link: 1})
	h.client.Dispatch(models.Event{Kind: models.EventFailure, Peripheral: testSensor, Link: 1, Err: errors.New("late teardown")})
	h.client.Dispatch(models.Event{Kind: models.EventValueUpdate, Peripheral: testSensor, Link: 1, Data: testFrame})
	assert.Equal(t, h.client.State(), models.Subscribed)
	assert.Equal(t, len(h.listener.ConnectionErrors()), 1)

	h.client.Dispatch(models.Event{Kind: models.EventValueUpdate, Peripheral: testSensor, Link: 2, Data: testFrame})
	frames, _, _ = h.sink.Snapshot()
	assert.Equal(t, len(frames), before+1)

	calls := h.transport.Calls()
	assert.DeepEqual(t, links(calls, "Connect"), []uint64{1, 2})
	assert.DeepEqual(t, links(calls, "Cancel"), []uint64{1})
}

func TestTeardownWaitsForOwnLink(t *testing.T) {
	h := newHarness()
	h.respond()
	h.subscribe(t, testSensor)
	h.transport.OnCall = nil
	h.client.Connect(testOther)
	assert.Equal(t, h.client.State(), models.Disconnecting)

	h.client.Dispatch(models.Event{Kind: models.EventDisconnected, Peripheral: testSensor, Link: 2})
	h.client.Dispatch(models.Event{Kind: models.EventDisconnected, Peripheral: testOther})
	h.client.Dispatch(models.Event{Kind: models.EventFailure, Peripheral: testOther, Err: errors.New("busy")})
	assert.Equal(t, h.client.State(), models.Disconnecting)

	h.client.Dispatch(models.Event{Kind: models.EventDisconnected, Peripheral: testSensor, Link: 1})
	assert.Equal(t, h.client.State(), models.Connecting)
	calls := h.transport.Calls()
	assert.DeepEqual(t, links(calls, "Connect"), []uint64{1, 2})
	assert.Equal(t, calls[len(calls)-1].Peripheral, testOther)
}

func TestStepTimeout(t *testing.T) {
	h := newHarness(WithStepTimeout(time.Hour))
	h.client.StartScan()
	h.client.Connect(testSensor)
	assert.Equal(t, h.client.State(), models.Connecting)

	h.client.Dispatch(models.Event{Kind: models.EventTimeout, Step: h.client.step - 1})
	assert.Equal(t, h.client.State(), models.Connecting)

	h.client.Dispatch(models.Event{Kind: models.EventTimeout, Step: h.client.step})
	assert.Equal(t, h.client.State(), models.Idle)
	cerr := connectionError(t, h.listener)
	assert.Assert(t, errors.Is(cerr, models.ErrTimeout))
	assert.Equal(t, cerr.State, models.Connecting)
	assert.Equal(t, h.transport.Count("Cancel"), 1)
}

func TestStepTimeoutFires(t *testing.T) {
	h := newHarness(WithStepTimeout(10 * time.Millisecond))
	h.client.StartScan()
	h.client.Connect(testSensor)
	waitFor(t, func() bool { return len(h.listener.ConnectionErrors()) == 1 })
	assert.Equal(t, h.client.State(), models.Idle)
	cerr := connectionError(t, h.listener)
	assert.Assert(t, errors.Is(cerr, models.ErrTimeout))
}

func TestTeardownTimeoutForcesIdle(t *testing.T) {
	h := newHarness(WithStepTimeout(10 * time.Millisecond))
	h.respond()
	h.subscribe(t, testSensor)
	h.transport.OnCall = nil
	h.client.Disconnect()
	waitFor(t, func() bool { return h.client.State() == models.Idle })
	assert.Equal(t, len(h.listener.ConnectionErrors()), 0)
	_, _, resets := h.sink.Snapshot()
	assert.Equal(t, resets, 1)
}

func TestAutoConnect(t *testing.T) {
	h := newHarness(WithAutoConnect(func(p models.PeripheralHandle) bool { return p.ID == testOther.ID }))
	h.respond()
	h.client.StartScan()
	h.client.Dispatch(models.Event{Kind: models.EventPeripheralFound, Peripheral: testSensor})
	assert.Equal(t, h.client.State(), models.Scanning)
	h.client.Dispatch(models.Event{Kind: models.EventPeripheralFound, Peripheral: testOther})
	assert.Equal(t, h.client.State(), models.Subscribed)
	p, _ := h.client.Peripheral()
	assert.Equal(t, p, testOther)
}

func TestStatus(t *testing.T) {
	h := newHarness()
	h.respond()
	assert.Assert(t, h.client.Status().Peripheral == nil)
	h.subscribe(t, testSensor)
	s := h.client.Status()
	assert.Equal(t, s.State, models.Subscribed)
	assert.Equal(t, *s.Peripheral, testSensor)
	assert.Equal(t, len(s.Peripherals), 1)
}

func TestRun(t *testing.T) {
	h := newHarness(WithStepTimeout(time.Second))
	h.respond()
	onCall := h.transport.OnCall
	h.transport.OnCall = func(call TransportCall) {
		if call.Method == "StartScan" {
			h.client.Dispatch(models.Event{Kind: models.EventPeripheralFound, Peripheral: testSensor})
			return
		}
		onCall(call)
	}
	sink := &DummyFrameSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.client.Run(ctx, sink) }()

	waitFor(t, func() bool { return h.client.State() == models.Subscribed })
	cancel()
	assert.NilError(t, <-done)
	assert.Equal(t, h.client.State(), models.Idle)
	frames, clears, resets := sink.Snapshot()
	assert.Equal(t, clears, 1)
	assert.Equal(t, resets, 1)
	assert.Equal(t, len(frames), 0)
	_, harnessClears, _ := h.sink.Snapshot()
	assert.Equal(t, harnessClears, 0)
}

func TestRunRescansAfterError(t *testing.T) {
	h := newHarness(WithRetryInterval(5 * time.Millisecond))
	h.respond()
	onCall := h.transport.OnCall
	connects := 0
	h.transport.OnCall = func(call TransportCall) {
		switch call.Method {
		case "StartScan":
			h.client.Dispatch(models.Event{Kind: models.EventPeripheralFound, Peripheral: testSensor})
		case "Connect":
			connects++
			if connects == 1 {
				h.client.Dispatch(models.Event{Kind: models.EventFailure, Peripheral: call.Peripheral, Err: errors.New("refused")})
				return
			}
			onCall(call)
		default:
			onCall(call)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.client.Run(ctx, h.sink) }()

	waitFor(t, func() bool { return h.client.State() == models.Subscribed })
	cancel()
	assert.NilError(t, <-done)
	assert.Equal(t, h.transport.Count("StartScan"), 2)
	assert.Equal(t, len(h.listener.ConnectionErrors()), 1)
}

func TestRunWhileEventsArrive(t *testing.T) {
	h := newHarness(WithStepTimeout(time.Second))
	h.respond()
	h.client.StartScan()

	stop := make(chan struct{})
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			p := models.PeripheralHandle{ID: fmt.Sprintf("AA:BB:CC:DD:%02X:%02X", i/256%256, i%256), Name: "PostureSensor"}
			h.client.Dispatch(models.Event{Kind: models.EventPeripheralFound, Peripheral: p})
			time.Sleep(time.Millisecond)
		}
	}()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.client.Run(ctx, h.sink) }()

	waitFor(t, func() bool { return h.client.State() == models.Subscribed })
	close(stop)
	<-fed
	cancel()
	assert.NilError(t, <-done)
	assert.Equal(t, h.client.State(), models.Idle)
}
