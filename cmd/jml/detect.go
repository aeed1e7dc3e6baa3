package main

import (
	"encoding/json"
	"fmt"

	"github.com/fentz26/jml/internal/lifecycle"
	"github.com/spf13/cobra"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect new joiners and inactive leavers and process them",
	RunE:  runDetect,
}

func runDetect(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/api/detect", nil)
	if err != nil {
		return err
	}

	var res lifecycle.DetectionResult
	if err := json.Unmarshal(resp, &res); err != nil {
		return err
	}

	fmt.Printf("Joiners detected: %d\n", res.JoinersDetected)
	fmt.Printf("Leavers detected: %d\n", res.LeaversDetected)
	fmt.Printf("Processed:        %d\n", res.Processed)
	fmt.Printf("Failed:           %d\n", res.Failed)
	for _, ev := range res.Events {
		fmt.Printf("  %s  %-6s  %s  %s\n", truncateID(ev.ID), ev.EventType, ev.Status, ev.UserName)
	}
	return nil
}
