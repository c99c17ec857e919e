package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	contractx "github.com/tanpawarit/pharmacy-concierge/agent/contract"
	mailerx "github.com/tanpawarit/pharmacy-concierge/pkg/mailer"
)

var (
	botStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(72)
	callerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	summaryStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(0, 1)
)

// view prints the conversation. Styling is only applied on a terminal so
// piped output stays plain.
type view struct {
	out    io.Writer
	styled bool
	// echo repeats caller lines, for scripted input nobody typed.
	echo bool
}

func newView(out io.Writer) *view {
	v := &view{out: out}
	if f, ok := out.(*os.File); ok {
		v.styled = term.IsTerminal(int(f.Fd()))
	}
	return v
}

func (v *view) render(style lipgloss.Style, s string) string {
	if !v.styled {
		return s
	}
	return style.Render(s)
}

func (v *view) hint(s string) {
	fmt.Fprintln(v.out, v.render(hintStyle, s))
}

func (v *view) title(s string) {
	fmt.Fprintln(v.out)
	fmt.Fprintln(v.out, v.render(titleStyle, s))
}

func (v *view) prompt() {
	if v.echo {
		return
	}
	fmt.Fprint(v.out, v.render(callerStyle, "you> "))
}

func (v *view) caller(text string) {
	if !v.echo {
		return
	}
	fmt.Fprintln(v.out, v.render(callerStyle, "caller> "+text))
}

func (v *view) bot(text string) {
	if v.styled {
		fmt.Fprintln(v.out, botStyle.Render(text))
		return
	}
	fmt.Fprintln(v.out, "assistant> "+text)
}

func (v *view) summary(s contractx.SessionSummary) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", v.render(labelStyle, "Caller:"), s.CallerName)
	fmt.Fprintf(&b, "%s %s\n", v.render(labelStyle, "Outcome:"), orNone(s.Outcome))
	fmt.Fprintf(&b, "%s %d\n", v.render(labelStyle, "Turns:"), s.Turns)

	fmt.Fprintln(&b, v.render(labelStyle, "Collected:"))
	if len(s.ExtractedFields) == 0 {
		fmt.Fprintln(&b, "  (nothing)")
	}
	names := make([]string, 0, len(s.ExtractedFields))
	for k := range s.ExtractedFields {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(&b, "  %s: %s\n", k, s.ExtractedFields[k])
	}

	fmt.Fprint(&b, v.render(labelStyle, "Follow-ups:"))
	if len(s.FollowUps) == 0 {
		fmt.Fprint(&b, "\n  (none)")
	}
	for _, r := range s.FollowUps {
		detail := r.Reference
		style := okStyle
		if r.Outcome == contractx.OutcomeFailed {
			detail = r.Reason
			style = failStyle
		}
		fmt.Fprintf(&b, "\n  %s %s %s", r.Action.Kind, v.render(style, string(r.Outcome)), detail)
	}

	if v.styled {
		fmt.Fprintln(v.out, summaryStyle.Render(v.render(titleStyle, "Session summary")+"\n"+b.String()))
		return
	}
	fmt.Fprintln(v.out, "--- session summary ---")
	fmt.Fprintln(v.out, b.String())
}

func (v *view) outbox(msgs []mailerx.Message) {
	for _, m := range msgs {
		fmt.Fprintf(v.out, "%s %s -> %s: %s\n", v.render(labelStyle, "email"), m.Reference, m.To, m.Subject)
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
