package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"coursepay/internal/payment"
	"coursepay/internal/pkg/utils"
	"coursepay/internal/repository"
)

const (
	sendTimeout = 10 * time.Second
	// Escaping can grow a rune to six bytes; 500 keeps any message well under
	// Telegram's 4096 character limit.
	maxDetailRune = 500
)

// Sender delivers one message to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID string, text string) error
}

// ChannelReporter posts operator alerts to a Telegram chat. Messages are sent
// in the background so callback acknowledgements are never delayed.
type ChannelReporter struct {
	sender Sender
	chatID string
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewChannelReporter returns a reporter; with a nil sender or empty chat id
// every report is dropped.
func NewChannelReporter(sender Sender, chatID string, logger *zap.Logger) *ChannelReporter {
	return &ChannelReporter{sender: sender, chatID: chatID, logger: logger}
}

func (r *ChannelReporter) Enabled() bool {
	return r.sender != nil && r.chatID != ""
}

// ReportRejection implements payment.RejectionReporter.
func (r *ChannelReporter) ReportRejection(_ context.Context, rejected *payment.RejectedError) {
	if !r.Enabled() {
		return
	}
	order := "unresolved"
	if rejected.OrderID != 0 {
		order = fmt.Sprintf("#%d", rejected.OrderID)
	}
	var b strings.Builder
	b.WriteString("⚠️ <b>Payment callback rejected</b>\n")
	fmt.Fprintf(&b, "Kind: <code>%s</code>\n", rejected.Kind)
	fmt.Fprintf(&b, "Order: %s\n", order)
	if rejected.Err != nil {
		detail := utils.Truncate(rejected.Err.Error(), maxDetailRune)
		fmt.Fprintf(&b, "Detail: %s\n", html.EscapeString(detail))
	}
	r.send(b.String())
}

// ReportDailySummary posts the callback outcome counts of the last day.
func (r *ChannelReporter) ReportDailySummary(_ context.Context, rows []repository.DispositionCount) {
	if !r.Enabled() {
		return
	}
	var b strings.Builder
	b.WriteString("📊 <b>Payment callbacks, last 24h</b>\n")
	if len(rows) == 0 {
		b.WriteString("No callbacks received.")
	}
	for _, row := range rows {
		label := row.Disposition
		if row.RejectKind != "" {
			label += " / " + row.RejectKind
		}
		fmt.Fprintf(&b, "%s: %s\n", html.EscapeString(label), utils.FormatNumber(row.Total))
	}
	r.send(b.String())
}

func (r *ChannelReporter) send(text string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := r.sender.SendMessage(ctx, r.chatID, text); err != nil {
			r.logger.Warn("Failed to send channel report", zap.Error(err))
		}
	}()
}

// Wait blocks until every in-flight message has been sent or failed.
func (r *ChannelReporter) Wait() {
	r.wg.Wait()
}
