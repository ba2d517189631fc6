package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"syscall"
	"time"

	"github.com/keiu-jiyu/VideoChat/internal/config"
	"github.com/keiu-jiyu/VideoChat/internal/discovery"
	"github.com/keiu-jiyu/VideoChat/internal/media"
	"github.com/keiu-jiyu/VideoChat/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagName     string
	flagServer   string
	flagDiscover bool
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagVideo    string
	flagAudio    string
	flagHeadless bool
)

var joinCmd = &cobra.Command{
	Use:     "join <room>",
	Aliases: []string{"j"},
	Short:   "Join a room and connect to everyone in it",
	Long: `Join a room. A direct WebRTC connection is negotiated with every other
participant; participants arriving later connect to you the same way.

Examples:
  meshroom join standup
  meshroom join standup --name alice --video cam.ivf --audio mic.ogg
  meshroom join standup --discover
  meshroom join standup --server wss://relay.example.com --relay --turn turn.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return joinRoom(ctx, args[0], slog.Default())
	},
}

func joinRoom(ctx context.Context, roomID string, logger *slog.Logger) error {
	source, err := media.OpenSource(media.Options{
		VideoFile: flagVideo,
		AudioFile: flagAudio,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer source.Close()

	serverURL := flagServer
	if flagDiscover {
		serverURL, err = discoverRelay(ctx)
		if err != nil {
			return err
		}
	}

	cfg, err := config.Load(config.Options{
		ServerURL:  serverURL,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
	if err != nil {
		return err
	}

	notifier := ui.NewNotifier()

	stopSpinner := ui.RunConnectionSpinner("Connecting to relay...")
	defer stopSpinner()
	session, err := NewRoomSession(ctx, cfg, source, notifier.Notify, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	name := flagName
	if name == "" {
		name = defaultName()
	}
	members, err := session.Join(ctx, roomID, name)
	if err != nil {
		return err
	}
	stopSpinner()

	fmt.Println(ui.JoinedView(roomID, name, len(members)))
	joinedAt := time.Now()

	if flagHeadless {
		select {
		case <-ctx.Done():
		case <-session.Client.Done():
			ui.PrintWarning("Connection to relay lost")
		}
	} else {
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
			case <-session.Client.Done():
			}
			close(done)
		}()
		model := ui.NewRoomModel(roomID, name, session.Manager, session.Sink.Totals, notifier.C())
		if err := ui.RunRoom(model, done); err != nil {
			return fmt.Errorf("room view: %w", err)
		}
	}

	sessions, totals := session.Summary()
	fmt.Println()
	ui.RenderCallSummary(roomID, time.Since(joinedAt), sessions, func(id string) (uint64, uint64) {
		t := totals[id]
		return t[0], t[1]
	})
	return nil
}

func discoverRelay(ctx context.Context) (string, error) {
	stopSpinner := ui.RunWaitingSpinner("Looking for a relay on the local network...")
	defer stopSpinner()

	resolver, err := discovery.NewResolver(nil, 0)
	if err != nil {
		return "", err
	}
	relay, err := resolver.FindRelay(ctx)
	if err != nil {
		return "", err
	}
	stopSpinner()
	ui.PrintInfof("Found relay %q at %s", relay.Instance, relay.URL())
	return relay.URL(), nil
}

func defaultName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "guest"
}

func init() {
	rootCmd.AddCommand(joinCmd)

	joinCmd.Flags().StringVarP(&flagName, "name", "n", "", "Display name (default: current user)")
	joinCmd.Flags().StringVar(&flagServer, "server", "", "Relay URL (default $SERVER_URL or "+config.DefaultServerURL+")")
	joinCmd.Flags().BoolVarP(&flagDiscover, "discover", "D", false, "Find the relay via mDNS")
	joinCmd.Flags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	joinCmd.Flags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	joinCmd.Flags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	joinCmd.Flags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	joinCmd.Flags().BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode")
	joinCmd.Flags().StringVar(&flagVideo, "video", "", "IVF file to play as the video track")
	joinCmd.Flags().StringVar(&flagAudio, "audio", "", "Ogg/Opus file to play as the audio track")
	joinCmd.Flags().BoolVar(&flagHeadless, "headless", false, "Log events instead of showing the room view")

	joinCmd.MarkFlagsMutuallyExclusive("server", "discover")
}
