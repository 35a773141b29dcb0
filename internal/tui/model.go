// Package tui renders the mint page in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"senseimint/internal/config"
	"senseimint/internal/session"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/core/types"
)

// Controller is the part of the session controller the view drives.
type Controller interface {
	Snapshot() session.Snapshot
	Changes() <-chan struct{}
	DetectExistingConnection(ctx context.Context) error
	RequestConnection(ctx context.Context) error
	SubmitMint(ctx context.Context) (*types.Receipt, error)
	CollectionLink() string
	DismissNotice()
}

// Messages

type changedMsg struct{}

type opDoneMsg struct {
	op  string
	err error
}

// Model is the Bubble Tea model of the mint page
type Model struct {
	ctx     context.Context
	ctrl    Controller
	site    config.SiteConfig
	keys    KeyMap
	help    help.Model
	spinner spinner.Model

	snap           session.Snapshot
	showCollection bool
	width          int
}

// NewModel creates the mint page over ctrl. ctx bounds every wallet call.
func NewModel(ctx context.Context, ctrl Controller, site config.SiteConfig) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorMagenta)

	return Model{
		ctx:     ctx,
		ctrl:    ctrl,
		site:    site,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		spinner: sp,
		snap:    ctrl.Snapshot(),
		width:   80,
	}
}

// Init checks for an existing connection and starts listening for changes
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.detectCmd(),
		waitForChange(m.ctrl.Changes()),
	)
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func (m Model) detectCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return opDoneMsg{op: session.OpDetect, err: ctrl.DetectExistingConnection(ctx)}
	}
}

func (m Model) connectCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return opDoneMsg{op: session.OpConnect, err: ctrl.RequestConnection(ctx)}
	}
}

func (m Model) mintCmd() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		_, err := ctrl.SubmitMint(ctx)
		return opDoneMsg{op: session.OpMint, err: err}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case changedMsg:
		m.snap = m.ctrl.Snapshot()
		return m, waitForChange(m.ctrl.Changes())

	case opDoneMsg:
		// Errors already live in the snapshot notice.
		m.snap = m.ctrl.Snapshot()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Dismiss):
		m.ctrl.DismissNotice()
		m.snap = m.ctrl.Snapshot()
		return m, nil

	case key.Matches(msg, m.keys.Collection):
		if m.snap.CollectionEnabled() {
			m.showCollection = !m.showCollection
		}
		return m, nil

	case key.Matches(msg, m.keys.Connect):
		return m.primary(false)

	case key.Matches(msg, m.keys.Mint):
		return m.primary(true)

	case key.Matches(msg, m.keys.Enter):
		return m.primary(m.snap.Connected())
	}
	return m, nil
}

// primary runs the page's main button: connect when disconnected, mint when
// connected. A connected session that lost its event subscription may connect again.
func (m Model) primary(mint bool) (tea.Model, tea.Cmd) {
	if m.snap.IsLoading() {
		return m, nil
	}
	// Flip locally so a repeated key press is ignored before the controller reports back.
	if mint {
		if !m.snap.Connected() {
			return m, nil
		}
		m.snap.State = session.StateMinting
		return m, m.mintCmd()
	}
	if m.snap.Connected() && m.snap.Subscribed {
		return m, nil
	}
	m.snap.State = session.StateConnecting
	return m, m.connectCmd()
}

// View renders the page
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render(m.site.Title))
	b.WriteString("\n")
	b.WriteString(SubTextStyle.Render(m.site.Subtitle))
	b.WriteString("\n\n")

	if m.snap.Status.LastMintedMessage != "" {
		b.WriteString(MiniTextStyle.Width(max(m.width-4, 20)).Render(m.snap.Status.LastMintedMessage))
		b.WriteString("\n")
	}
	if link := m.snap.Status.LastMintedTokenLink; link != "" {
		b.WriteString(LinkStyle.Render(link))
		b.WriteString("\n")
	}
	if m.snap.Status.LastMintedMessage != "" || m.snap.Status.LastMintedTokenLink != "" {
		b.WriteString("\n")
	}

	b.WriteString(m.renderPrimary())
	b.WriteString("\n")
	b.WriteString(m.renderCount())
	b.WriteString("\n\n")
	b.WriteString(m.renderCollection())
	b.WriteString("\n")

	if m.snap.Connected() {
		b.WriteString(MiniTextStyle.Render(fmt.Sprintf("%s on %s", m.snap.ConnectedAddress.Hex(), m.snap.Network)))
		b.WriteString("\n")
	}

	if n := m.snap.Notice; n != nil {
		b.WriteString("\n")
		b.WriteString(NoticeStyle.Render(n.Message))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(FooterStyle.Render(fmt.Sprintf("built by @%s  %s", m.site.TwitterHandle, m.site.TwitterLink())))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return ContainerStyle.Render(b.String())
}

func (m Model) renderPrimary() string {
	label := "Connect to Wallet"
	if m.snap.Connected() {
		label = "Mint NFT"
	}
	if m.snap.IsLoading() {
		return DisabledButtonStyle.Render(m.spinner.View() + " Loading...")
	}
	return ButtonStyle.Render(label)
}

func (m Model) renderCount() string {
	count := fmt.Sprintf("%d/%d NFTs Minted", m.snap.Status.TotalMinted, m.snap.Status.TotalSupply)
	if m.snap.SoldOut() {
		return SoldOutStyle.Render(count)
	}
	return CountStyle.Render(count)
}

func (m Model) renderCollection() string {
	label := "View Collection on OpenSea"
	if !m.snap.CollectionEnabled() {
		return DisabledButtonStyle.Render(label)
	}
	out := ButtonStyle.Render(label)
	if m.showCollection {
		out += "\n" + LinkStyle.Render(m.ctrl.CollectionLink())
	}
	return out
}
