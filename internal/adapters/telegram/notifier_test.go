package telegram

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "pairwatch/internal/domain/correlation"
	"pairwatch/internal/services/correlation"
	"pairwatch/pkg/errors"
)

type fakeSender struct {
	mu       sync.Mutex
	err      error
	chatIDs  []int64
	messages []string
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.chatIDs = append(f.chatIDs, chatID)
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func divergedTransition(symbol1, symbol2 string) correlation.StatusTransition {
	coefficient := 0.42
	return correlation.StatusTransition{
		Pair:        domain.NewPair(symbol1, symbol2),
		From:        domain.StatusCorrelated,
		To:          domain.StatusDiverged,
		Coefficient: &coefficient,
		At:          time.Now().UTC(),
	}
}

func TestAlertSendsFormattedMessage(t *testing.T) {
	sender := &fakeSender{}
	notifier := NewNotifier(sender, 1234, 0)

	notifier.alert(divergedTransition("EURUSD", "GBPUSD"))

	messages := sender.sent()
	require.Len(t, messages, 1)
	assert.Equal(t, []int64{1234}, sender.chatIDs)
	assert.Contains(t, messages[0], "EURUSD / GBPUSD")
	assert.Contains(t, messages[0], "diverged")
	assert.Contains(t, messages[0], "Was: CORRELATED")
	assert.Contains(t, messages[0], "0.4200")
}

func TestAlertCooldownSuppressesRepeats(t *testing.T) {
	sender := &fakeSender{}
	notifier := NewNotifier(sender, 1234, time.Hour)

	notifier.alert(divergedTransition("EURUSD", "GBPUSD"))
	notifier.alert(divergedTransition("EURUSD", "GBPUSD"))
	notifier.alert(divergedTransition("EURUSD", "USDJPY"))

	messages := sender.sent()
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0], "EURUSD / GBPUSD")
	assert.Contains(t, messages[1], "EURUSD / USDJPY")
}

func TestAlertMentionsPreviousAlert(t *testing.T) {
	sender := &fakeSender{}
	notifier := NewNotifier(sender, 1234, 0)

	notifier.alert(divergedTransition("EURUSD", "GBPUSD"))
	notifier.alert(divergedTransition("EURUSD", "GBPUSD"))

	messages := sender.sent()
	require.Len(t, messages, 2)
	assert.NotContains(t, messages[0], "Previous alert")
	assert.Contains(t, messages[1], "Previous alert")
}

func TestAlertRecordsTimeEvenWhenSendFails(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram down")}
	notifier := NewNotifier(sender, 1234, time.Hour)

	notifier.alert(divergedTransition("EURUSD", "GBPUSD"))

	_, suppressed := notifier.shouldAlert(domain.NewPair("EURUSD", "GBPUSD").Key())
	assert.True(t, suppressed)
}

func TestAlertableStatuses(t *testing.T) {
	assert.True(t, alertable(domain.StatusDiverged))
	assert.True(t, alertable(domain.StatusDiverging))
	assert.False(t, alertable(domain.StatusConverging))
	assert.False(t, alertable(domain.StatusCorrelated))
	assert.False(t, alertable(domain.StatusInconsistent))
	assert.False(t, alertable(domain.StatusNotCalculated))
}
