// weft-pad is a small multi-user editing demo over a weft-relay. It keeps
// one replica per pad, applies relayed envelopes as they arrive, and
// accepts edit commands on an input line:
//
//	i <pos> <text>   insert text
//	d <start> <end>  remove a range
//	m <start> <end>  mark a range (adds a "comment" interval)
//	f <needle>       find from the start of the document
//	q                quit
package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/gorilla/websocket"

	"github.com/phroun/weft"
	"github.com/phroun/weft/wire"
)

var (
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)
	markStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
)

type refreshMsg struct{}

type disconnectMsg struct{ err error }

type pad struct {
	w     *weft.Weft
	marks *weft.IntervalCollection

	view   viewport.Model
	input  textinput.Model
	status string
}

func newPad(w *weft.Weft) *pad {
	in := textinput.New()
	in.Placeholder = "i <pos> <text> | d <start> <end> | m <start> <end> | f <needle> | q"
	in.Focus()
	return &pad{
		w:     w,
		marks: w.Intervals("comments"),
		view:  viewport.New(80, 16),
		input: in,
	}
}

func (p *pad) Init() tea.Cmd { return textinput.Blink }

func (p *pad) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.view.Width = msg.Width
		p.view.Height = msg.Height - 3
	case refreshMsg:
		p.refresh()
	case disconnectMsg:
		p.status = fmt.Sprintf("disconnected: %v", msg.err)
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return p, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(p.input.Value())
			p.input.SetValue("")
			if line == "q" {
				return p, tea.Quit
			}
			p.status = p.execute(line)
			p.refresh()
		}
	}
	var cmds []tea.Cmd
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	cmds = append(cmds, cmd)
	p.view, cmd = p.view.Update(msg)
	cmds = append(cmds, cmd)
	return p, tea.Batch(cmds...)
}

func (p *pad) refresh() {
	var sb strings.Builder
	sb.WriteString(p.w.Text())
	sb.WriteString("\n")
	for _, info := range p.marks.All() {
		sb.WriteString(markStyle.Render(
			fmt.Sprintf("[%d,%d) %s", info.Start, info.End, info.ID[:8])))
		sb.WriteString("\n")
	}
	p.view.SetContent(sb.String())
}

func (p *pad) execute(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	argInt := func(i int) (int, bool) {
		if i >= len(fields) {
			return 0, false
		}
		n, err := strconv.Atoi(fields[i])
		return n, err == nil
	}
	switch fields[0] {
	case "i":
		pos, ok := argInt(1)
		if !ok || len(fields) < 3 {
			return "usage: i <pos> <text>"
		}
		text := strings.Join(fields[2:], " ")
		if err := p.w.Insert(pos, text); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("inserted %d chars at %d", len([]rune(text)), pos)
	case "d":
		start, ok1 := argInt(1)
		end, ok2 := argInt(2)
		if !ok1 || !ok2 {
			return "usage: d <start> <end>"
		}
		if err := p.w.Remove(start, end); err != nil {
			return err.Error()
		}
		return fmt.Sprintf("removed [%d,%d)", start, end)
	case "m":
		start, ok1 := argInt(1)
		end, ok2 := argInt(2)
		if !ok1 || !ok2 {
			return "usage: m <start> <end>"
		}
		id, err := p.marks.Add(start, end, "comment", nil)
		if err != nil {
			return err.Error()
		}
		return "marked " + id[:8]
	case "f":
		if len(fields) < 2 {
			return "usage: f <needle>"
		}
		res, err := p.w.SearchFromPos(0, strings.Join(fields[1:], " "), weft.SearchOptions{})
		if err != nil {
			return err.Error()
		}
		if res == nil {
			return "no match"
		}
		return fmt.Sprintf("found at [%d,%d)", res.Start, res.End)
	default:
		return "unknown command"
	}
}

func (p *pad) View() string {
	status := statusStyle.Render(fmt.Sprintf("weft-pad  client=%s  seq=%d  len=%d  %s",
		p.w.ClientID()[:8], p.w.Seq(), p.w.Len(), p.status))
	return p.view.View() + "\n" + status + "\n" + p.input.View()
}

func main() {
	addr := flag.String("addr", "ws://localhost:9010/", "relay websocket address")
	flag.Parse()

	conn, _, err := websocket.DefaultDialer.Dial(*addr, nil)
	if err != nil {
		color.Red("dial %s: %v", *addr, err)
		return
	}
	defer conn.Close()

	var hello wire.Frame
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != wire.FrameHello {
		color.Red("handshake failed: %v", err)
		return
	}
	color.Green("connected as %s", hello.ClientID)

	var writeErr error
	w, err := weft.New(weft.Options{
		ClientID: hello.ClientID,
		Transport: weft.TransportFunc(func(op weft.Op) error {
			writeErr = conn.WriteJSON(op)
			return writeErr
		}),
	})
	if err != nil {
		color.Red("replica: %v", err)
		return
	}

	prog := tea.NewProgram(newPad(w), tea.WithAltScreen())

	w.RegisterDeltaListener(func(weft.DeltaEvent) { prog.Send(refreshMsg{}) })
	w.RegisterIntervalListener(func(weft.IntervalEvent) { prog.Send(refreshMsg{}) })

	go func() {
		for {
			var f wire.Frame
			if err := conn.ReadJSON(&f); err != nil {
				prog.Send(disconnectMsg{err: err})
				return
			}
			if f.Type == wire.FrameOp && f.Envelope != nil {
				if err := w.Receive(*f.Envelope); err != nil {
					prog.Send(disconnectMsg{err: err})
					return
				}
			}
		}
	}()

	if _, err := prog.Run(); err != nil {
		color.Red("pad: %v", err)
	}
}
