package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/boat-builder/agentruntime"
	"github.com/charmbracelet/lipgloss"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	agentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

// chat runs an interactive session reading one prompt per line until EOF or "/exit". "/reset"
// starts a new session and "/history" prints the current one.
func chat(ctx context.Context, pod *agentruntime.Pod, in io.Reader, out io.Writer, streaming bool) error {
	sess, err := pod.NewSession(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hintStyle.Render("Type a message, /reset, /history or /exit."))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			pod.CloseSession(sess.ID())
			if sess, err = pod.NewSession(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, hintStyle.Render("New session "+sess.ID()))
			continue
		case "/history":
			for _, m := range sess.History().Snapshot() {
				fmt.Fprintln(out, hintStyle.Render(describe(m)))
			}
			continue
		}

		fmt.Fprint(out, agentStyle.Render("agent> "))
		if !streaming {
			result := sess.Complete(ctx, line)
			if result.Failed() {
				fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("[%s] %s", result.ErrorType, result.Error)))
				continue
			}
			fmt.Fprintln(out, result.Result)
			continue
		}

		stream := sess.Stream(ctx, line)
		for chunk := range stream.Chunks() {
			switch chunk.Type {
			case agentruntime.ResponseTypeContent:
				fmt.Fprint(out, chunk.Content)
			case agentruntime.ResponseTypeError:
				fmt.Fprint(out, errorStyle.Render(fmt.Sprintf("\n[%s] %s", agentruntime.ErrorType(stream.Err()), chunk.Content)))
			}
		}
		stream.Close()
		fmt.Fprintln(out)
		if err := ctx.Err(); err != nil {
			return nil
		}
	}
}

func describe(m agentruntime.Message) string {
	switch {
	case len(m.ToolCalls) > 0:
		names := make([]string, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			names[i] = c.Name
		}
		return fmt.Sprintf("%s: calls %s", m.Role, strings.Join(names, ", "))
	case m.Role == agentruntime.RoleTool:
		return fmt.Sprintf("%s[%s]: %s", m.Role, m.ToolCallID, m.Content)
	default:
		return fmt.Sprintf("%s: %s", m.Role, m.Content)
	}
}
