package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/keiu-jiyu/VideoChat/internal/config"
	"github.com/keiu-jiyu/VideoChat/internal/room"
	"github.com/keiu-jiyu/VideoChat/internal/ui"
	"github.com/spf13/cobra"
)

var flagRoomsServer string

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the relay's active rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{ServerURL: flagRoomsServer})
		if err != nil {
			return err
		}
		rooms, err := fetchRooms(cmd.Context(), cfg.HTTPBase()+"/rooms")
		if err != nil {
			return err
		}
		ui.RenderRooms(rooms)
		return nil
	},
}

func fetchRooms(ctx context.Context, url string) ([]room.Info, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list rooms: relay returned %s", resp.Status)
	}
	var rooms []room.Info
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	return rooms, nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)

	roomsCmd.Flags().StringVar(&flagRoomsServer, "server", "", "Relay URL (default $SERVER_URL or "+config.DefaultServerURL+")")
}
