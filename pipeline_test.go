package nettle

import (
	"errors"
	"testing"
)

// recordingHandler records every inbound event it observes, by name, and
// propagates each further down the pipeline (the default adapter behavior),
// letting a test assert both "did this handler see the event" and "did the
// event keep travelling toward Tail".
type recordingHandler struct {
	InboundHandlerAdapter
	name   string
	events *[]string
}

func (h recordingHandler) ChannelActive(ctx *HandlerContext) error {
	*h.events = append(*h.events, h.name+":active")
	ctx.FireChannelActive()
	return nil
}

func (h recordingHandler) ChannelRead(ctx *HandlerContext, msg any) error {
	*h.events = append(*h.events, h.name+":read")
	ctx.FireChannelRead(msg)
	return nil
}

func (h recordingHandler) ExceptionCaught(ctx *HandlerContext, cause error) error {
	*h.events = append(*h.events, h.name+":exception:"+cause.Error())
	ctx.FireExceptionCaught(cause)
	return nil
}

func TestPipelineInboundPropagationOrderIsAddOrder(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	var events []string
	_, _ = ch.pipeline.AddLast("a", recordingHandler{name: "a", events: &events})
	_, _ = ch.pipeline.AddLast("b", recordingHandler{name: "b", events: &events})
	_, _ = ch.pipeline.AddLast("c", recordingHandler{name: "c", events: &events})

	ch.pipeline.FireChannelActive()

	want := []string{"a:active", "b:active", "c:active"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

// TestPipelineErrorFromHandlerRoutesToExceptionCaught verifies §4.5's
// exception-routing rule: a handler's returned error fires exceptionCaught
// on the *next* inbound context rather than continuing to propagate the
// triggering event.
func TestPipelineErrorFromHandlerRoutesToExceptionCaught(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	var events []string
	failing := struct{ InboundHandlerAdapter }{}
	failErr := errors.New("boom")

	_, _ = ch.pipeline.AddLast("failing", failingHandler{fail: failErr, events: &events})
	_, _ = ch.pipeline.AddLast("catcher", recordingHandler{name: "catcher", events: &events})
	_ = failing

	ch.pipeline.FireChannelRead("payload")

	want := []string{"failing:read", "catcher:exception:boom"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

type failingHandler struct {
	InboundHandlerAdapter
	fail   error
	events *[]string
}

func (h failingHandler) ChannelRead(ctx *HandlerContext, msg any) error {
	*h.events = append(*h.events, "failing:read")
	return h.fail
}

func TestPipelinePanicFromHandlerBecomesPanicError(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	var caught error
	_, _ = ch.pipeline.AddLast("panics", panickingHandler{})
	_, _ = ch.pipeline.AddLast("catcher", catchingHandler{out: &caught})

	ch.pipeline.FireChannelRead("x")

	var pe PanicError
	if !errors.As(caught, &pe) {
		t.Fatalf("caught = %v (%T), want a PanicError", caught, caught)
	}
}

type panickingHandler struct{ InboundHandlerAdapter }

func (panickingHandler) ChannelRead(ctx *HandlerContext, msg any) error {
	panic("handler exploded")
}

type catchingHandler struct {
	InboundHandlerAdapter
	out *error
}

func (h catchingHandler) ExceptionCaught(ctx *HandlerContext, cause error) error {
	*h.out = cause
	return nil
}

func TestPipelineAddLastDerivesNameFromType(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	ctx, err := ch.pipeline.AddLast("", recordingHandler{name: "x", events: &[]string{}})
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Name() == "" {
		t.Fatal("an empty requested name should be replaced with one derived from the handler's type")
	}
}

func TestPipelineAddLastDuplicateNameIsRejected(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	events := []string{}
	if _, err := ch.pipeline.AddLast("dup", recordingHandler{name: "a", events: &events}); err != nil {
		t.Fatal(err)
	}
	if _, err := ch.pipeline.AddLast("dup", recordingHandler{name: "b", events: &events}); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("second AddLast with the same name err = %v, want ErrProtocolViolation", err)
	}
}

func TestPipelineRemoveStopsFurtherEvents(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	var events []string
	_, _ = ch.pipeline.AddLast("tracked", recordingHandler{name: "tracked", events: &events})

	if err := ch.pipeline.Remove("tracked"); err != nil {
		t.Fatal(err)
	}
	ch.pipeline.FireChannelActive()
	if len(events) != 0 {
		t.Fatalf("events = %v, want none: handler was removed before the fire", events)
	}
}

func TestPipelineRemoveHandlerByReference(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	h := &catchingHandler{out: new(error)}
	_, _ = ch.pipeline.AddLast("byref", h)

	if err := ch.pipeline.RemoveHandler(h); err != nil {
		t.Fatal(err)
	}
	if _, ok := ch.pipeline.Get("byref"); ok {
		t.Fatal("context should be gone after RemoveHandler")
	}
	if err := ch.pipeline.RemoveHandler(h); err == nil {
		t.Fatal("removing an absent handler should fail")
	}
}

func TestPipelineRemoveUnknownNameFails(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	if err := ch.pipeline.Remove("nope"); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("Remove(unknown) err = %v, want ErrProtocolViolation", err)
	}
}

func TestPipelineRemoveHeadOrTailFails(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	if err := ch.pipeline.Remove("<head>"); err == nil {
		t.Fatal("removing <head> should fail")
	}
	if err := ch.pipeline.Remove("<tail>"); err == nil {
		t.Fatal("removing <tail> should fail")
	}
}

func TestPipelineReplaceSwapsHandlerAtSamePosition(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	var events []string
	_, _ = ch.pipeline.AddLast("slot", recordingHandler{name: "old", events: &events})

	if _, err := ch.pipeline.Replace("slot", "slot", recordingHandler{name: "new", events: &events}); err != nil {
		t.Fatal(err)
	}
	ch.pipeline.FireChannelActive()
	if len(events) != 1 || events[0] != "new:active" {
		t.Fatalf("events = %v, want [new:active]", events)
	}
}

func TestPipelineGet(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	_, _ = ch.pipeline.AddLast("named", recordingHandler{name: "n", events: &[]string{}})
	if _, ok := ch.pipeline.Get("named"); !ok {
		t.Fatal("Get should find a handler added via AddLast")
	}
	if _, ok := ch.pipeline.Get("missing"); ok {
		t.Fatal("Get should not find a handler that was never added")
	}
}

func TestPipelineTailReleasesUnconsumedReferenceCountedMessage(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	alloc := ch.config.allocator
	buf, err := alloc.Heap(8, 8)
	if err != nil {
		t.Fatal(err)
	}
	ch.pipeline.FireChannelRead(buf)
	if buf.Refs() != 0 {
		t.Fatalf("buf.Refs() = %d, want 0: an unconsumed message reaching Tail must be released", buf.Refs())
	}
}

func TestPipelineAddFirstInsertsClosestToHead(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	var events []string
	_, _ = ch.pipeline.AddLast("b", recordingHandler{name: "b", events: &events})
	_, _ = ch.pipeline.AddFirst("a", recordingHandler{name: "a", events: &events})

	ch.pipeline.FireChannelActive()
	want := []string{"a:active", "b:active"}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}

func TestPipelineAddBeforeAndAfter(t *testing.T) {
	ch, _ := newTestChannel(t, nil)
	var events []string
	_, _ = ch.pipeline.AddLast("mid", recordingHandler{name: "mid", events: &events})
	_, _ = ch.pipeline.AddBefore("mid", "pre", recordingHandler{name: "pre", events: &events})
	_, _ = ch.pipeline.AddAfter("mid", "post", recordingHandler{name: "post", events: &events})

	ch.pipeline.FireChannelActive()
	want := []string{"pre:active", "mid:active", "post:active"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
}
