package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	statex "github.com/tanpawarit/pharmacy-concierge/agent/state"
)

// exitWords end an interactive chat before it completes.
var exitWords = map[string]bool{
	"quit":    true,
	"exit":    true,
	"bye":     true,
	"goodbye": true,
}

type conversation interface {
	StartSession(ctx context.Context, phone string) (contractx.TurnReply, error)
	SubmitTurn(ctx context.Context, sessionID string, text string) (contractx.TurnReply, error)
	EndSession(ctx context.Context, sessionID string) (contractx.SessionSummary, error)
}

func chatCommand(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(out)
	phone := fs.String("phone", "", "caller phone number, e.g. +1-555-123-4567")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if strings.TrimSpace(*phone) == "" {
		return fmt.Errorf("%w: chat requires --phone", errUsage)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	directory, err := a.directory(ctx)
	if err != nil {
		return err
	}
	orch, err := a.orchestrator(directory, a.backend)
	if err != nil {
		return err
	}

	v := newView(out)
	v.hint("Type your message. Say quit, exit, bye or goodbye to hang up.")
	return converse(ctx, orch, *phone, in, v)
}

// converse runs one session: greeting, caller turns until the session
// completes or the caller leaves, then the summary.
func converse(ctx context.Context, c conversation, phone string, in io.Reader, v *view) error {
	reply, err := c.StartSession(ctx, phone)
	if err != nil {
		return err
	}
	v.bot(reply.Reply)

	scanner := bufio.NewScanner(in)
	for reply.Status != string(statex.StatusCompleted) {
		if err := ctx.Err(); err != nil {
			break
		}
		v.prompt()
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		v.caller(text)
		if text == "" {
			continue
		}
		if exitWords[strings.ToLower(text)] {
			break
		}

		next, err := c.SubmitTurn(ctx, reply.SessionID, text)
		if err != nil {
			return err
		}
		reply = next
		v.bot(reply.Reply)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	// EndSession must run even after an interrupt.
	summary, err := c.EndSession(context.WithoutCancel(ctx), reply.SessionID)
	if err != nil {
		return err
	}
	v.summary(summary)
	return nil
}
