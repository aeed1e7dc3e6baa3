package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/fentz26/jml/internal/models"
	"github.com/spf13/cobra"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Inspect and deliver notifications",
}

var notifyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notifications",
	RunE:  runNotifyList,
}

var notifyFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Retry delivery of pending notifications",
	RunE:  runNotifyFlush,
}

var (
	notifyTopic   string
	notifyPending bool
)

func init() {
	notifyCmd.AddCommand(notifyListCmd, notifyFlushCmd)

	notifyListCmd.Flags().StringVar(&notifyTopic, "topic", "", "Filter by topic (e.g. jml.joiner_completed)")
	notifyListCmd.Flags().BoolVar(&notifyPending, "pending", false, "Only undelivered notifications")
}

func runNotifyList(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if notifyTopic != "" {
		q.Set("topic", notifyTopic)
	}
	if notifyPending {
		q.Set("delivered", "false")
	}
	path := "/api/notifications/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var list []models.Notification
	if err := json.Unmarshal(resp, &list); err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No notifications found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTOPIC\tDELIVERED\tCREATED")
	for _, n := range list {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", truncateID(n.ID), n.Topic, n.Delivered, n.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}

func runNotifyFlush(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/api/notifications/flush", nil)
	if err != nil {
		return err
	}

	var res struct {
		Delivered int `json:"delivered"`
	}
	if err := json.Unmarshal(resp, &res); err != nil {
		return err
	}
	fmt.Printf("Delivered %d notifications\n", res.Delivered)
	return nil
}
