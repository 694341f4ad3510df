package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	streadway "github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/eventstore/internal/enginetest"
)

// fakeAcknowledger records Ack/Nack/Reject calls so handle()'s
// always-ack behavior can be asserted without a real broker connection.
type fakeAcknowledger struct {
	acked    []uint64
	nacked   []uint64
	rejected []uint64
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = append(f.nacked, tag)
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.rejected = append(f.rejected, tag)
	return nil
}

type fakeManager struct {
	stopped            []string
	reset              []string
	deleted            []string
	deletedInclEmitted []bool
	stopErr            error
	resetErr           error
	delErr             error
}

func (f *fakeManager) StopProjection(ctx context.Context, name string) error {
	f.stopped = append(f.stopped, name)
	return f.stopErr
}

func (f *fakeManager) ResetProjection(ctx context.Context, name string) error {
	f.reset = append(f.reset, name)
	return f.resetErr
}

func (f *fakeManager) DeleteProjection(ctx context.Context, name string, inclEmitted bool) error {
	f.deleted = append(f.deleted, name)
	f.deletedInclEmitted = append(f.deletedInclEmitted, inclEmitted)
	return f.delErr
}

func newDelivery(t *testing.T, ack *fakeAcknowledger, cmd Command) streadway.Delivery {
	t.Helper()
	body, err := json.Marshal(cmd)
	require.NoError(t, err)
	return streadway.Delivery{Acknowledger: ack, Body: body, DeliveryTag: 1}
}

func TestHandleStopDispatchesToManager(t *testing.T) {
	mgr := &fakeManager{}
	ack := &fakeAcknowledger{}
	c := &Consumer{manager: mgr, logger: enginetest.NewRecordingLogger()}

	c.handle(context.Background(), newDelivery(t, ack, Command{Name: "balances", Command: CommandStop}))

	assert.Equal(t, []string{"balances"}, mgr.stopped)
	assert.Equal(t, []uint64{1}, ack.acked)
}

func TestHandleResetDispatchesToManager(t *testing.T) {
	mgr := &fakeManager{}
	ack := &fakeAcknowledger{}
	c := &Consumer{manager: mgr, logger: enginetest.NewRecordingLogger()}

	c.handle(context.Background(), newDelivery(t, ack, Command{Name: "balances", Command: CommandReset}))

	assert.Equal(t, []string{"balances"}, mgr.reset)
}

func TestHandleDeleteInclEmittedSetsFlag(t *testing.T) {
	mgr := &fakeManager{}
	ack := &fakeAcknowledger{}
	c := &Consumer{manager: mgr, logger: enginetest.NewRecordingLogger()}

	c.handle(context.Background(), newDelivery(t, ack, Command{Name: "balances", Command: CommandDeleteInclEmitted}))

	require.Len(t, mgr.deletedInclEmitted, 1)
	assert.True(t, mgr.deletedInclEmitted[0])
}

func TestHandleMalformedBodyIsAckedAndDropped(t *testing.T) {
	mgr := &fakeManager{}
	ack := &fakeAcknowledger{}
	c := &Consumer{manager: mgr, logger: enginetest.NewRecordingLogger()}

	c.handle(context.Background(), streadway.Delivery{Acknowledger: ack, Body: []byte("not json"), DeliveryTag: 7})

	assert.Empty(t, mgr.stopped)
	assert.Equal(t, []uint64{7}, ack.acked, "malformed payloads must be acked, not requeued")
}

func TestHandleUnrecognizedCommandIsAckedAndDropped(t *testing.T) {
	mgr := &fakeManager{}
	ack := &fakeAcknowledger{}
	c := &Consumer{manager: mgr, logger: enginetest.NewRecordingLogger()}

	c.handle(context.Background(), newDelivery(t, ack, Command{Name: "balances", Command: "pause"}))

	assert.Empty(t, mgr.stopped)
	assert.Equal(t, []uint64{1}, ack.acked)
}

func TestHandleManagerErrorStillAcks(t *testing.T) {
	mgr := &fakeManager{stopErr: errors.New("boom")}
	ack := &fakeAcknowledger{}
	c := &Consumer{manager: mgr, logger: enginetest.NewRecordingLogger()}

	c.handle(context.Background(), newDelivery(t, ack, Command{Name: "balances", Command: CommandStop}))

	assert.Equal(t, []uint64{1}, ack.acked, "an apply failure must still ack the delivery; retries happen via the next poll")
}
