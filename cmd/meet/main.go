package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiremeet/internal/client"
	"github.com/vovakirdan/wiremeet/internal/identity"
	"github.com/vovakirdan/wiremeet/internal/log"
	"github.com/vovakirdan/wiremeet/internal/reconciler"
	"github.com/vovakirdan/wiremeet/internal/session"
	"github.com/vovakirdan/wiremeet/internal/transport/lkroom"
)

const leaveTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalFlags struct {
	server   string
	email    string
	password string
	logLevel string
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:           "meet",
		Short:         "Join wiremeet rooms from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.server, "server", "http://localhost:8080", "wiremeet server base URL")
	cmd.PersistentFlags().StringVar(&g.email, "email", "", "sign in with this email")
	cmd.PersistentFlags().StringVar(&g.password, "password", os.Getenv("WIREMEET_PASSWORD"), "password for --email")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	cmd.AddCommand(newCreateCmd(&g), newJoinCmd(&g))
	return cmd
}

func (g *globalFlags) signIn(ctx context.Context, c *client.Client) (*client.Session, error) {
	if g.email == "" {
		return nil, nil
	}
	s, err := c.Login(ctx, g.email, g.password)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return s, nil
}

func newCreateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a meeting and print its room name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := &client.Client{BaseURL: g.server}
			s, err := g.signIn(cmd.Context(), c)
			if err != nil {
				return err
			}
			var bearer string
			if s != nil {
				bearer = s.Token
			}
			room, err := c.CreateMeeting(cmd.Context(), bearer)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), room)
			return nil
		},
	}
}

type joinFlags struct {
	name         string
	audioFile    string
	videoFile    string
	cacheFile    string
	redisAddr    string
	fetchTimeout time.Duration
}

func newJoinCmd(g *globalFlags) *cobra.Command {
	var f joinFlags

	cmd := &cobra.Command{
		Use:   "join [room]",
		Short: "Join a room, creating one when no room is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := log.NewWithWriter(os.Stderr, g.logLevel)
			c := &client.Client{BaseURL: g.server}

			s, err := g.signIn(ctx, c)
			if err != nil {
				return err
			}
			enter := reconciler.EnterOptions{}
			if s != nil {
				p := s.User.Principal()
				enter.Principal = &p
				enter.BearerToken = s.Token
			}

			if len(args) == 1 {
				enter.Room = args[0]
			} else {
				if enter.Room, err = c.CreateMeeting(ctx, enter.BearerToken); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created room %s\n", enter.Room)
			}

			cache, closeCache, err := openCache(ctx, f)
			if err != nil {
				return err
			}
			defer closeCache()

			out := cmd.OutOrStdout()
			r, err := reconciler.New(reconciler.Options{
				TokenSource:  &reconciler.HTTPTokenSource{BaseURL: g.server},
				Transport:    lkroom.New(logger),
				Devices:      lkroom.FileDevices{AudioFile: f.audioFile, VideoFile: f.videoFile},
				Cache:        cache,
				Renderer:     &consoleRenderer{log: logger},
				Logger:       logger,
				FetchTimeout: f.fetchTimeout,
			})
			if err != nil {
				return err
			}

			return runSession(ctx, r, enter, f.name, cmd.InOrStdin(), out)
		},
	}

	cmd.Flags().StringVar(&f.name, "name", "", "guest display name (prompted when empty)")
	cmd.Flags().StringVar(&f.audioFile, "audio-file", "", "Ogg/Opus file published as the microphone")
	cmd.Flags().StringVar(&f.videoFile, "video-file", "", "IVF or H.264 file published as the camera")
	cmd.Flags().StringVar(&f.cacheFile, "cache-file", defaultCacheFile(), "credential cache file; empty keeps credentials in memory")
	cmd.Flags().StringVar(&f.redisAddr, "redis-addr", "", "keep credentials in Redis at this address instead of a file")
	cmd.Flags().DurationVar(&f.fetchTimeout, "fetch-timeout", reconciler.DefaultFetchTimeout, "credential request timeout")
	return cmd
}

func defaultCacheFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "wiremeet", "sessions.json")
}

func openCache(ctx context.Context, f joinFlags) (session.Store, func(), error) {
	switch {
	case f.redisAddr != "":
		rdb := redis.NewClient(&redis.Options{Addr: f.redisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return session.NewRedisStore(rdb, ""), func() { _ = rdb.Close() }, nil
	case f.cacheFile != "":
		return session.NewFileStore(f.cacheFile), func() {}, nil
	default:
		return session.NewMemoryStore(), func() {}, nil
	}
}

// runSession drives r until the room is left, the join fails or ctx ends.
func runSession(ctx context.Context, r *reconciler.Reconciler, enter reconciler.EnterOptions, guestName string, in io.Reader, out io.Writer) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		_ = r.Run(runCtx)
		close(stopped)
	}()
	defer func() { cancel(); <-stopped }()

	if err := r.Enter(enter); err != nil {
		return err
	}

	c := &console{r: r, out: out, view: reconciler.View{State: -1}, preset: guestName}
	lines := readLines(in, stopped)
	interrupted := ctx.Done()
	var leaveDeadline <-chan time.Time
	leave := func() error {
		interrupted = nil
		leaveDeadline = time.After(leaveTimeout)
		return r.Leave()
	}

	for {
		select {
		case <-interrupted:
			c.leaving = true
			if err := leave(); err != nil {
				return nil
			}
			continue

		case <-leaveDeadline:
			return nil

		case n := <-r.Notifications():
			printNotification(out, n)
			continue

		case v := <-r.Updates():
			entered := v.State != c.view.State
			if entered || v.State == reconciler.StateConnected {
				printView(out, v)
			}
			c.view = v
			if !entered {
				continue
			}
			switch v.State {
			case reconciler.StateAwaitingIdentity:
				if c.preset == "" {
					fmt.Fprint(out, namePrompt)
				}
			case reconciler.StateFailed:
				if c.leaving {
					return v.Err
				}
				fmt.Fprintf(out, "join failed: %v\n%s", v.Err, retryPrompt)
			case reconciler.StateConnected:
				fmt.Fprintln(out, connectedHelp)
			case reconciler.StateDisconnected:
				return nil
			}

		case line, ok := <-lines:
			if !ok {
				lines = nil
				c.eof = true
			} else {
				c.pending = append(c.pending, line)
			}
		}

		err := c.drain()
		if errors.Is(err, errLeaveRequested) {
			c.leaving = true
			if err := leave(); err != nil {
				return nil
			}
			continue
		}
		if err != nil {
			return err
		}
	}
}

const (
	namePrompt    = "Your name: "
	retryPrompt   = "retry? [y/N] "
	connectedHelp = "type a message to chat, /mic on|off, /cam on|off, /leave"
)

var (
	errNoGuestName    = errors.New("no guest name given")
	errLeaveRequested = errors.New("leave requested")
)

// readLines scans in on its own goroutine so no prompt ever blocks
// cancellation. The channel closes at EOF or once stop is closed.
func readLines(in io.Reader, stop <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
	}()
	return lines
}

// console feeds typed lines to whichever state is waiting for input. Lines
// typed while a join is in flight wait in pending.
type console struct {
	r       *reconciler.Reconciler
	out     io.Writer
	view    reconciler.View
	preset  string // --name, tried once before prompting
	pending []string
	eof     bool
	leaving bool
}

func (c *console) drain() error {
	if c.leaving {
		c.pending = nil
		return nil
	}
	if c.view.State == reconciler.StateAwaitingIdentity && c.preset != "" {
		name := c.preset
		c.preset = ""
		accepted, err := submitName(c.r, c.out, name)
		if err != nil {
			return err
		}
		if accepted {
			c.view.State = reconciler.StateRequesting
		}
	}
	for len(c.pending) > 0 {
		line := c.pending[0]
		switch c.view.State {
		case reconciler.StateAwaitingIdentity:
			c.pending = c.pending[1:]
			accepted, err := submitName(c.r, c.out, line)
			if err != nil {
				return err
			}
			if accepted {
				c.view.State = reconciler.StateRequesting
			}
		case reconciler.StateFailed:
			c.pending = c.pending[1:]
			if !confirmed(line) {
				return c.view.Err
			}
			if err := c.r.Retry(); err != nil {
				return err
			}
			c.view.State = reconciler.StateRequesting
		case reconciler.StateConnected:
			c.pending = c.pending[1:]
			if err := runCommand(c.r, c.out, line); err != nil {
				return err
			}
		default:
			return nil
		}
	}
	if c.eof {
		switch c.view.State {
		case reconciler.StateAwaitingIdentity:
			return errNoGuestName
		case reconciler.StateFailed:
			return c.view.Err
		}
	}
	return nil
}

// submitName sends a guest name and re-prompts when it is rejected.
func submitName(r *reconciler.Reconciler, out io.Writer, name string) (bool, error) {
	err := r.SubmitGuestName(name)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, identity.ErrInvalidDisplayName) {
		return false, err
	}
	fmt.Fprintln(out, err)
	fmt.Fprint(out, namePrompt)
	return false, nil
}

func confirmed(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// runCommand handles one line typed while connected. Anything that is not a
// slash command is sent as chat.
func runCommand(r *reconciler.Reconciler, out io.Writer, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		if err := r.SendChat(line); err != nil {
			if errors.Is(err, reconciler.ErrInvalidChat) {
				fmt.Fprintln(out, err)
				return nil
			}
			return err
		}
		return nil
	}

	fields := strings.Fields(line)
	toggle := func(set func(bool) error) error {
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			fmt.Fprintf(out, "usage: %s on|off\n", fields[0])
			return nil
		}
		return set(fields[1] == "on")
	}
	switch fields[0] {
	case "/mic":
		return toggle(r.SetMicrophone)
	case "/cam":
		return toggle(r.SetCamera)
	case "/leave":
		return errLeaveRequested
	default:
		fmt.Fprintln(out, connectedHelp)
		return nil
	}
}

func printView(out io.Writer, v reconciler.View) {
	fmt.Fprintf(out, "[%s] room %s\n", v.State, v.Room)
	if v.State != reconciler.StateConnected {
		return
	}
	fmt.Fprintf(out, "  you: %s (%s) %s\n", v.Local.Name, v.Local.Identity, mediaLabel(v.Local.MediaState))
	for _, p := range v.Participants {
		fmt.Fprintf(out, "  [%s] %s %s %s\n", identity.Initials(p.Name), p.Name, mediaLabel(p.MediaState), p.Quality)
	}
}

func mediaLabel(m reconciler.MediaState) string {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	label := "mic:" + onOff(m.AudioOn) + " cam:" + onOff(m.VideoOn)
	if m.ScreenOn {
		label += " screen"
	}
	return label
}

func printNotification(out io.Writer, n reconciler.Notification) {
	if n.Kind == reconciler.NotifyChat {
		fmt.Fprintf(out, "<%s> %s\n", n.Name, n.Text)
		return
	}
	fmt.Fprintf(out, "* %s\n", n.Message)
}

type consoleRenderer struct {
	log *zerolog.Logger
}

func (r *consoleRenderer) Release(id string) {
	r.log.Debug().Str("identity", id).Msg("released participant tile")
}
