package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/clichat/internal/config"
	"github.com/danmuck/clichat/internal/protocol"
	"github.com/danmuck/clichat/internal/protocol/session"
	"github.com/danmuck/clichat/internal/storage"
	"github.com/pterm/pterm"
)

// profile is an opened local profile.
type profile struct {
	user  protocol.Username
	token protocol.Token
	index *storage.Index
}

func openProfile(cfg config.ClientConfig) (profile, error) {
	layout, err := storage.Open(cfg.Root)
	if err != nil {
		return profile{}, fmt.Errorf("%w (run `clichat signup <username>` first)", err)
	}
	user, token, err := layout.ReadIdentity()
	if err != nil {
		return profile{}, err
	}
	idx, err := storage.LoadIndex(layout)
	if err != nil {
		return profile{}, err
	}
	return profile{user: user, token: token, index: idx}, nil
}

// online opens the profile, dials the relay and verifies.
func online(ctx context.Context, cfg config.ClientConfig, opts ...session.Option) (*session.Client, error) {
	p, err := openProfile(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := session.Dial(ctx, cfg.ServerAddr, cfg.Session)
	if err != nil {
		return nil, err
	}
	c := session.NewClient(conn, p.user, p.token, p.index, opts...)
	if err := c.Verify(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func parsePeer(raw string) (protocol.Username, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return protocol.Username{}, errUsage
	}
	return protocol.NewUsername(name)
}

func runSignup(ctx context.Context, cfg config.ClientConfig, _ options, args []string) error {
	name := cfg.Username
	if len(args) > 0 {
		name = args[0]
	}
	user, err := parsePeer(name)
	if err != nil {
		return err
	}
	if _, err := storage.Open(cfg.Root); err == nil {
		return fmt.Errorf("%w: %s", storage.ErrProfileExists, cfg.Root)
	}

	conn, err := session.Dial(ctx, cfg.ServerAddr, cfg.Session)
	if err != nil {
		return err
	}
	defer conn.Close()
	token, err := session.Signup(conn, user)
	if err != nil {
		return err
	}
	if _, err := storage.Init(cfg.Root, user, token); err != nil {
		return err
	}
	pterm.Success.Printfln("signed up as %q, profile at %s", user.String(), cfg.Root)
	return nil
}

func runConnect(ctx context.Context, cfg config.ClientConfig, _ options, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	target, err := parsePeer(args[0])
	if err != nil {
		return err
	}
	c, err := online(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.RequestPeer(target); err != nil {
		return err
	}
	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("waiting for %s to answer", target.String()))
	ev, err := c.AwaitPeer(target)
	if err != nil {
		if spinner != nil {
			spinner.Fail(err.Error())
		}
		return err
	}
	if ev.Kind != session.EventPeerAdded {
		if spinner != nil {
			spinner.Warning(fmt.Sprintf("%s declined or is offline", target.String()))
		}
		return nil
	}
	if spinner != nil {
		spinner.Success(fmt.Sprintf("%s is now a peer", target.String()))
	}
	return nil
}

func runSend(ctx context.Context, cfg config.ClientConfig, _ options, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	peer, err := parsePeer(args[0])
	if err != nil {
		return err
	}
	text := strings.Join(args[1:], " ")
	c, err := online(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.SendChat(peer, text); err != nil {
		return err
	}
	pterm.Success.Printfln("sent to %s", peer.String())
	return nil
}

func runListen(ctx context.Context, cfg config.ClientConfig, opts options, _ []string) error {
	acceptor := session.Acceptor(promptAcceptor)
	if opts.accept {
		acceptor = session.AcceptAll
	}
	// Idle waits are expected while listening.
	cfg.Session.ReadTimeout = 0
	c, err := online(ctx, cfg, session.WithAcceptor(acceptor))
	if err != nil {
		return err
	}
	defer c.Close()

	pterm.Info.Printfln("online as %q, ctrl-c to quit", c.User().String())
	return c.Listen(ctx, func(ev session.Event) {
		pterm.Println(describeEvent(ev))
	})
}

func promptAcceptor(req protocol.PeerConnectRequest) bool {
	if fi, err := os.Stdin.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return false
	}
	ok, _ := pterm.DefaultInteractiveConfirm.
		WithDefaultText(fmt.Sprintf("%s wants to connect. Accept?", req.Requester.String())).
		Show()
	return ok
}

func runHistory(_ context.Context, cfg config.ClientConfig, _ options, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	peer, err := parsePeer(args[0])
	if err != nil {
		return err
	}
	p, err := openProfile(cfg)
	if err != nil {
		return err
	}
	cl, err := p.index.Log(peer)
	if err != nil {
		return err
	}
	msgs, err := cl.ReadAll()
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		pterm.Info.Printfln("no messages with %s yet", peer.String())
		return nil
	}
	return pterm.DefaultTable.WithHasHeader().WithData(historyRows(msgs, p.user)).Render()
}

func runPeers(_ context.Context, cfg config.ClientConfig, _ options, _ []string) error {
	p, err := openProfile(cfg)
	if err != nil {
		return err
	}
	if p.index.Len() == 0 {
		pterm.Info.Println("no peers yet")
		return nil
	}
	return pterm.DefaultTable.WithHasHeader().WithData(peerRows(p.index)).Render()
}
