package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/socialink/realtime-core/config"
	"github.com/socialink/realtime-core/internal/domain/model"
	"github.com/socialink/realtime-core/internal/reconcile"
	"github.com/socialink/realtime-core/internal/session"
	"github.com/socialink/realtime-core/internal/ws"
	"go.uber.org/fx"
)

// runClient wires the full client core through fx and drives it from a
// terminal UI. The UI owns the main goroutine; the connection manager,
// dispatcher, and reconciliation engine run underneath it.
func runClient(ctx context.Context, cfg *config.Config) error {
	var (
		sess   *session.Session
		mgr    *ws.Manager
		engine *reconcile.Engine
	)
	app := NewApp(cfg, fx.Populate(&sess, &mgr, &engine))

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start client core: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	if err := ui.Init(); err != nil {
		return fmt.Errorf("init terminal ui: %w", err)
	}
	defer ui.Close()

	t := newTUI(cfg, sess, mgr)

	// Coalesce engine mutations into a single pending redraw.
	dirty := make(chan struct{}, 1)
	engine.SetOnChange(func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})

	// The initial snapshot may race a backend that is still coming up;
	// the UI starts empty and 'r' retries.
	refreshCtx, cancelRefresh := context.WithTimeout(ctx, 10*time.Second)
	_ = sess.RefreshConversations(refreshCtx)
	cancelRefresh()

	return t.run(ctx, dirty)
}

// tui is a two-pane terminal client: conversation list on the left,
// message history and input on the right.
type tui struct {
	cfg  *config.Config
	sess *session.Session
	mgr  *ws.Manager

	convList *widgets.List
	msgPane  *widgets.Paragraph
	input    *widgets.Paragraph
	status   *widgets.Paragraph

	convs     []model.Conversation
	inputText string
	focusList bool
	notice    string
}

func newTUI(cfg *config.Config, sess *session.Session, mgr *ws.Manager) *tui {
	t := &tui{
		cfg:       cfg,
		sess:      sess,
		mgr:       mgr,
		convList:  widgets.NewList(),
		msgPane:   widgets.NewParagraph(),
		input:     widgets.NewParagraph(),
		status:    widgets.NewParagraph(),
		focusList: true,
	}

	t.convList.Title = " Conversations "
	t.convList.SelectedRowStyle = ui.NewStyle(ui.ColorBlack, ui.ColorCyan)
	t.msgPane.Title = " Messages "
	t.input.Title = " Message (Tab to switch, Enter to send) "
	t.status.Border = false

	return t
}

func (t *tui) run(ctx context.Context, dirty <-chan struct{}) error {
	t.layout(ui.TerminalDimensions())
	t.render()

	events := ui.PollEvents()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-dirty:
			t.render()

		case <-ticker.C:
			// Presence and typing state change without engine events.
			t.render()

		case e := <-events:
			switch e.ID {
			case "<C-c>":
				return nil
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				t.layout(payload.Width, payload.Height)
				ui.Clear()
				t.render()
			default:
				t.handleKey(ctx, e)
				t.render()
			}
		}
	}
}

func (t *tui) handleKey(ctx context.Context, e ui.Event) {
	switch e.ID {
	case "<Tab>":
		t.focusList = !t.focusList
		return
	case "<Escape>":
		t.focusList = true
		return
	}

	if t.focusList {
		switch e.ID {
		case "<Down>", "j":
			t.convList.ScrollDown()
		case "<Up>", "k":
			t.convList.ScrollUp()
		case "r":
			t.refresh(ctx)
		case "<Enter>":
			t.openSelected(ctx)
		}
		return
	}

	switch e.ID {
	case "<Enter>":
		t.send(ctx)
	case "<Backspace>", "<C-8>":
		if len(t.inputText) > 0 {
			t.inputText = t.inputText[:len(t.inputText)-1]
			t.sess.HandleTyping()
		}
	case "<Space>":
		t.inputText += " "
		t.sess.HandleTyping()
	default:
		// Printable keys arrive as single-rune event ids.
		if len([]rune(e.ID)) == 1 {
			t.inputText += e.ID
			t.sess.HandleTyping()
		}
	}
}

func (t *tui) refresh(ctx context.Context) {
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := t.sess.RefreshConversations(reqCtx); err != nil {
		t.notice = "refresh failed: " + err.Error()
		return
	}
	t.notice = ""
}

func (t *tui) openSelected(ctx context.Context) {
	if t.convList.SelectedRow < 0 || t.convList.SelectedRow >= len(t.convs) {
		return
	}
	conv := t.convs[t.convList.SelectedRow]

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := t.sess.OpenConversation(reqCtx, conv); err != nil {
		t.notice = "open failed: " + err.Error()
		return
	}
	t.notice = ""
	t.focusList = false
}

func (t *tui) send(ctx context.Context) {
	text := strings.TrimSpace(t.inputText)
	if text == "" {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := t.sess.SendMessage(reqCtx, text); err != nil {
		t.notice = "send failed: " + err.Error()
		return
	}
	t.notice = ""
	t.inputText = ""
}

func (t *tui) layout(width, height int) {
	listWidth := width / 3
	t.convList.SetRect(0, 1, listWidth, height-3)
	t.msgPane.SetRect(listWidth, 1, width, height-3)
	t.input.SetRect(listWidth, height-3, width, height)
	t.status.SetRect(0, 0, width, 1)
}

func (t *tui) render() {
	t.convs = t.sess.Conversations()

	rows := make([]string, 0, len(t.convs))
	for _, c := range t.convs {
		marker := " "
		if t.sess.IsOnline(c.OtherUser.ID) {
			marker = "*"
		}
		row := fmt.Sprintf("%s %s", marker, c.OtherUser.Name)
		if c.UnreadCount > 0 {
			row += fmt.Sprintf(" (%d)", c.UnreadCount)
		}
		rows = append(rows, row)
	}
	t.convList.Rows = rows
	if t.convList.SelectedRow >= len(rows) {
		t.convList.SelectedRow = max(0, len(rows)-1)
	}

	t.msgPane.Text = t.renderMessages()
	t.input.Text = t.inputText
	t.status.Text = t.renderStatus()

	if t.focusList {
		t.convList.BorderStyle = ui.NewStyle(ui.ColorCyan)
		t.input.BorderStyle = ui.NewStyle(ui.ColorWhite)
	} else {
		t.convList.BorderStyle = ui.NewStyle(ui.ColorWhite)
		t.input.BorderStyle = ui.NewStyle(ui.ColorCyan)
	}

	ui.Render(t.status, t.convList, t.msgPane, t.input)
}

func (t *tui) renderMessages() string {
	conv, open := t.sess.Active()
	if !open {
		return "Select a conversation and press Enter."
	}

	var b strings.Builder
	for _, m := range t.sess.Messages() {
		who := conv.OtherUser.Name
		if m.SenderID == t.cfg.User.ID {
			who = "me"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.Local().Format("15:04"), who, m.Content)
	}

	if typing := t.sess.TypingUsers(); len(typing) > 0 {
		fmt.Fprintf(&b, "\n%s is typing...", conv.OtherUser.Name)
	}
	return b.String()
}

func (t *tui) renderStatus() string {
	state := "offline"
	if t.mgr.IsConnected() {
		state = "connected"
	}
	s := fmt.Sprintf(" %s | %s", t.cfg.User.ID, state)
	if t.notice != "" {
		s += " | " + t.notice
	}
	return s
}
