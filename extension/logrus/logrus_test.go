package logrus

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerflow/eventstore"
)

func newObservedWrapper() (*Wrapper, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return Wrap(logger), hook
}

func TestWrapperLogsAtEachLevel(t *testing.T) {
	w, hook := newObservedWrapper()

	w.Debug("debug msg")
	w.Info("info msg")
	w.Warn("warn msg")
	w.Error("error msg")

	require.Len(t, hook.Entries, 4)
	assert.Equal(t, logrus.DebugLevel, hook.Entries[0].Level)
	assert.Equal(t, logrus.InfoLevel, hook.Entries[1].Level)
	assert.Equal(t, logrus.WarnLevel, hook.Entries[2].Level)
	assert.Equal(t, logrus.ErrorLevel, hook.Entries[3].Level)
}

func TestWrapperWithFieldAttachesField(t *testing.T) {
	w, hook := newObservedWrapper()

	var l eventstore.Logger = w
	l = l.WithField("stream", "account-1")
	l.Info("appended")

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "account-1", hook.LastEntry().Data["stream"])
}

func TestWrapperWithFieldsAttachesAll(t *testing.T) {
	w, hook := newObservedWrapper()

	var l eventstore.Logger = w
	l = l.WithFields(eventstore.Fields{"a": 1, "b": "x"})
	l.Info("multi")

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, 1, hook.LastEntry().Data["a"])
	assert.Equal(t, "x", hook.LastEntry().Data["b"])
}

func TestWrapperWithErrorAttachesErrorField(t *testing.T) {
	w, hook := newObservedWrapper()

	var l eventstore.Logger = w
	l = l.WithError(errors.New("boom"))
	l.Error("failed")

	require.Len(t, hook.Entries, 1)
	assert.EqualError(t, hook.LastEntry().Data[logrus.ErrorKey].(error), "boom")
}

func TestWrapEntryPreservesExistingFields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	entry := logger.WithField("request_id", "r1")

	w := WrapEntry(entry)
	w.Info("hi")

	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "r1", hook.LastEntry().Data["request_id"])
}
