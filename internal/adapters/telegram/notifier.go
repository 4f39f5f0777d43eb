package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	domain "pairwatch/internal/domain/correlation"
	"pairwatch/internal/metrics"
	"pairwatch/internal/services/correlation"
	"pairwatch/pkg/logger"
)

const sendTimeout = 15 * time.Second

// Sender abstracts the bot so the notifier can be tested without the API
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Notifier turns status transitions into Telegram alerts. Only transitions
// into Diverged or Diverging fire; Converging means the pair is recovering
// and is not worth waking anyone for. Repeat alerts for the same pair are
// suppressed for the cooldown period.
type Notifier struct {
	sender   Sender
	chatID   int64
	cooldown time.Duration
	log      *logger.Logger

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// NewNotifier creates a divergence alert notifier. A zero cooldown disables
// suppression.
func NewNotifier(sender Sender, chatID int64, cooldown time.Duration) *Notifier {
	return &Notifier{
		sender:    sender,
		chatID:    chatID,
		cooldown:  cooldown,
		log:       logger.Get().With("component", "telegram_notifier"),
		lastAlert: make(map[string]time.Time),
	}
}

// Attach subscribes the notifier to the engine's status transitions
func (n *Notifier) Attach(svc *correlation.Service) {
	svc.OnStatusChange(func(t correlation.StatusTransition) {
		if !alertable(t.To) {
			return
		}
		go n.alert(t)
	})
}

func (n *Notifier) alert(t correlation.StatusTransition) {
	previous, suppressed := n.shouldAlert(t.Pair.Key())
	if suppressed {
		n.log.Debugf("Suppressing repeat alert for %s (last sent %s)", t.Pair, humanize.Time(previous))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	err := n.sender.SendMessage(ctx, n.chatID, formatAlert(t, previous))
	metrics.RecordAlert("telegram", err)
	if err != nil {
		n.log.Errorf("Failed to send divergence alert for %s: %v", t.Pair, err)
	}
}

// shouldAlert records the alert time and reports whether the pair is still
// inside its cooldown window. The time is recorded even when the send later
// fails so a flapping pair cannot hammer the API.
func (n *Notifier) shouldAlert(key string) (previous time.Time, suppressed bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	previous = n.lastAlert[key]
	if n.cooldown > 0 && !previous.IsZero() && time.Since(previous) < n.cooldown {
		return previous, true
	}
	n.lastAlert[key] = time.Now()
	return previous, false
}

func alertable(s domain.Status) bool {
	return s == domain.StatusDiverged || s == domain.StatusDiverging
}

func formatAlert(t correlation.StatusTransition, previous time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ *%s / %s* is %s\n", t.Pair.Symbol1, t.Pair.Symbol2, strings.ToLower(t.To.String()))
	fmt.Fprintf(&b, "Was: %s\n", t.From)
	if t.Coefficient != nil {
		fmt.Fprintf(&b, "Coefficient: %.4f\n", *t.Coefficient)
	}
	if !previous.IsZero() {
		fmt.Fprintf(&b, "Previous alert: %s\n", humanize.Time(previous))
	}
	return b.String()
}
