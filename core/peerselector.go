package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/kahva/goferry/discovery"
	"github.com/kahva/goferry/styles"
)

// PeerSelector is the interactive picker over the discovery peer list.
// It re-snapshots the list on every redraw, so peers appearing or
// expiring show up without restarting the form.
type PeerSelector struct {
	peers    func() []discovery.Peer
	Selected map[string]discovery.Peer

	selected string
	filter   string
}

func NewPeerSelector(peers func() []discovery.Peer) *PeerSelector {
	return &PeerSelector{
		peers:    peers,
		Selected: make(map[string]discovery.Peer),
	}
}

func (p *PeerSelector) filteredPeers() []discovery.Peer {
	peers := p.peers()
	if p.filter == "" {
		return peers
	}

	filter := strings.ToLower(p.filter)
	filtered := make([]discovery.Peer, 0, len(peers))
	for _, peer := range peers {
		if strings.Contains(strings.ToLower(peer.Name), filter) ||
			strings.Contains(strings.ToLower(peer.Addr), filter) {
			filtered = append(filtered, peer)
		}
	}
	return filtered
}

func (p *PeerSelector) formatPeerOption(peer discovery.Peer) string {
	name := peer.Name
	if len(name) > 20 {
		name = name[:17] + "..."
	}

	addr := peer.Addr
	if len(addr) > 25 {
		addr = addr[:22] + "..."
	}

	prefix := ""
	if _, ok := p.Selected[peer.Name]; ok {
		prefix = styles.SUCCESS.Render("* ")
	}

	text := fmt.Sprintf("%s%-20s %-25s %ds", prefix, name, addr, int(time.Since(peer.LastSeen).Seconds()))

	if time.Since(peer.LastSeen) > discovery.DefaultHelloInterval {
		text = styles.WARNING.Render(text)
	}

	return text
}

// RunRecur shows the picker until the user is done or cancels. Cancel
// surfaces as ErrCanceled.
func (p *PeerSelector) RunRecur() error {
	peers := p.filteredPeers()

	var options []huh.Option[string]

	filterText := "Filter peers"
	if p.filter != "" {
		filterText = fmt.Sprintf("Filter: '%s'", p.filter)
	}
	options = append(options,
		huh.NewOption(filterText, "filter"),
		huh.NewOption("Refresh", "refresh"),
	)

	for _, peer := range peers {
		options = append(options, huh.NewOption(p.formatPeerOption(peer), peer.Name))
	}

	options = append(options,
		huh.NewOption("All", "select_all"),
		huh.NewOption("Done", "done"),
		huh.NewOption("Cancel", "cancel"),
	)

	title := fmt.Sprintf("Choose peers (%d selected):", len(p.Selected))
	if p.filter != "" {
		title += fmt.Sprintf(" [Filter: %s]", p.filter)
	}

	form := huh.NewSelect[string]().
		Title(title).
		Options(options...).
		Value(&p.selected).
		Height(20)

	if err := form.Run(); err != nil {
		return err
	}

	switch p.selected {
	case "cancel":
		return ErrCanceled
	case "done":
		return nil
	case "refresh":
		return p.RunRecur()
	case "filter":
		return p.runFilter()
	case "select_all":
		for _, peer := range peers {
			p.Selected[peer.Name] = peer
		}
		return p.RunRecur()
	default:
		p.togglePeer(p.selected)
		return p.RunRecur()
	}
}

func (p *PeerSelector) runFilter() error {
	var newFilter string

	form := huh.NewInput().
		Title("Filter peers (by name or address):").
		Value(&newFilter).
		Placeholder(p.filter)

	if err := form.Run(); err != nil {
		return p.RunRecur()
	}

	p.filter = strings.TrimSpace(newFilter)
	return p.RunRecur()
}

func (p *PeerSelector) togglePeer(name string) {
	for _, peer := range p.peers() {
		if peer.Name != name {
			continue
		}
		if _, ok := p.Selected[name]; ok {
			delete(p.Selected, name)
		} else {
			p.Selected[name] = peer
		}
		return
	}
}

func (p *PeerSelector) ClearSelection() {
	p.Selected = make(map[string]discovery.Peer)
}
