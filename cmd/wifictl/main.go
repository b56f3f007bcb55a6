package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/revcam/revcam/internal/wifi"
)

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func main() {
	wm := wifi.NewManager()

	rootCmd := &cobra.Command{
		Use:   "wifictl",
		Short: "Administer the camera's wifi via NetworkManager",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show wifi device status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(wm.Status(cmd.Context()))
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "scan",
		Short: "List visible networks",
		RunE: func(cmd *cobra.Command, args []string) error {
			nets, err := wm.Scan(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(nets)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "start-ap [ssid]",
		Short: "Start the open fallback access point",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ssid := "RevCam"
			if len(args) > 0 {
				ssid = args[0]
			}
			res, err := wm.StartOpenAP(cmd.Context(), ssid)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stop-ap",
		Short: "Bring the access point down",
		RunE: func(cmd *cobra.Command, args []string) error {
			wm.StopAP(cmd.Context())
			return printJSON(map[string]bool{"ok": true})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "connect <ssid> [password]",
		Short: "Join a wifi network",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password := ""
			if len(args) > 1 {
				password = args[1]
			}
			res, err := wm.Connect(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "debug",
		Short: "Dump raw nmcli state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(wm.Debug(cmd.Context()))
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
