package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"keychat/internal/model"
	"keychat/internal/utils/log"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

type (
	// App is the terminal chat window for one Chat.
	App struct {
		app     *tview.Application
		chatbox *tview.TextView
		input   *tview.InputField

		client *Client
		book   *model.AddressBook
		chat   *model.Chat

		stopOnce sync.Once
	}
)

func NewApp(client *Client, book *model.AddressBook, chat *model.Chat) *App {
	return &App{
		app:    tview.NewApplication(),
		client: client,
		book:   book,
		chat:   chat,
	}
}

// Run blocks until the window is closed or ctx is done.
func (c *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	go c.listen(ctx)

	return c.renderUI()
}

func (c *App) Stop() {
	c.stopOnce.Do(c.app.Stop)
}

func (c *App) title() string {
	names := make([]string, 0, len(c.chat.Peers()))
	for _, pk := range c.chat.Peers() {
		names = append(names, c.book.DisplayName(pk))
	}
	return fmt.Sprintf(" Chat with %s ", strings.Join(names, ", "))
}

// blocking function
func (c *App) renderUI() error {
	c.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.chatbox.SetBorder(true).SetTitle(c.title())

	c.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(" New Message (Esc to quit) ")

	c.input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEscape:
			c.Stop()
		case tcell.KeyEnter:
			text := c.input.GetText()
			if text == "" {
				return
			}
			c.input.SetText("")

			go func(msg string) {
				if err := c.SendMessage(context.Background(), msg); err != nil {
					log.Error("send message failed", zap.Error(err))
					c.printf("[red]send failed:[-] %s\n", tview.Escape(err.Error()))
				}
			}(text)
		}
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(c.chatbox, 0, 1, false).
		AddItem(c.input, 3, 0, true)

	return c.app.SetRoot(layout, true).SetFocus(c.input).Run()
}

func (c *App) printf(format string, args ...any) {
	c.app.QueueUpdateDraw(func() {
		fmt.Fprintf(c.chatbox, format, args...)
		c.chatbox.ScrollToEnd()
	})
}

func (c *App) listen(ctx context.Context) {
	for {
		msg, err := c.client.Receive(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				log.Debug("relay connection closed", zap.Error(err))
				c.printf("[red]disconnected:[-] %s\n", tview.Escape(err.Error()))
			}
			return
		}
		c.ReceiveMessage(msg)
	}
}

func (c *App) SendMessage(ctx context.Context, msg string) error {
	if err := c.client.SendChat(ctx, c.chat, msg); err != nil {
		return err
	}
	c.printf("[yellow]You:[-] %s\n", tview.Escape(msg))
	return nil
}

func (c *App) ReceiveMessage(msg *Message) {
	name := tview.Escape(c.book.DisplayName(msg.From))
	if !c.chat.Has(msg.From) {
		c.printf("[gray]%s (outside this chat):[-] %s\n", name, tview.Escape(msg.Text))
		return
	}
	c.printf("[green]%s:[-] %s\n", name, tview.Escape(msg.Text))
}
