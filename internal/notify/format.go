package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// Format renders an event as a title and body. ok is false for events that
// have no chat rendering.
func Format(ev domain.Event) (title, message string, ok bool) {
	switch p := ev.Payload.(type) {
	case domain.Position:
		if ev.Type == domain.EventPositionOpened {
			title = fmt.Sprintf("[%s] opened %s", ev.Strategy, p.Side)
			message = fmt.Sprintf("%s\nentry %.4f, size $%.2f, edge %.2f%%\nsource %s",
				describe(p), p.EntryPrice, p.SizeUSDC, p.EdgePct, sourceLabel(p))
			return title, message, true
		}
		exit := p.CurrentPrice
		if p.ExitPrice != nil {
			exit = *p.ExitPrice
		}
		title = fmt.Sprintf("[%s] closed %s: %s", ev.Strategy, p.Side, strings.ToUpper(string(p.Result)))
		message = fmt.Sprintf("%s\n%.4f -> %.4f, pnl %+.2f USDC (%s)",
			describe(p), p.EntryPrice, exit, p.RealizedPnL, p.CloseReason)
		return title, message, true
	case domain.ResetNotice:
		title = fmt.Sprintf("[%s] portfolio reset", ev.Strategy)
		message = fmt.Sprintf("closed %d positions, dropped %d queued", p.ClosedPositions, p.DroppedQueue)
		return title, message, true
	case domain.Fault:
		title = fmt.Sprintf("[%s] HALTED", ev.Strategy)
		return title, p.Message, true
	}
	return "", "", false
}

func describe(p domain.Position) string {
	if p.Question != "" {
		return p.Question
	}
	return p.MarketID
}

func sourceLabel(p domain.Position) string {
	if p.SourceName != "" && p.SourceName != p.SourceID {
		return p.SourceName + " (" + p.SourceID + ")"
	}
	return p.SourceID
}
