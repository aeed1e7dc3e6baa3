package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fentz26/jml/internal/models"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Submit and inspect lifecycle events",
}

var eventJoinerCmd = &cobra.Command{
	Use:   "joiner [user-id]",
	Short: "Onboard a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventJoiner,
}

var eventMoverCmd = &cobra.Command{
	Use:   "mover [user-id]",
	Short: "Move a user to a new department, role or manager",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventMover,
}

var eventLeaverCmd = &cobra.Command{
	Use:   "leaver [user-id]",
	Short: "Offboard a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventLeaver,
}

var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List lifecycle events",
	RunE:  runEventList,
}

var eventShowCmd = &cobra.Command{
	Use:   "show [event-id]",
	Short: "Show an event and its tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventShow,
}

var eventResumeCmd = &cobra.Command{
	Use:   "resume [event-id]",
	Short: "Run a pending event whose effective date has passed",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventAction("resume"),
}

var eventCancelCmd = &cobra.Command{
	Use:   "cancel [event-id]",
	Short: "Cancel a pending event",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventAction("cancel"),
}

var eventAuditCmd = &cobra.Command{
	Use:   "audit [event-id]",
	Short: "Show the decision records written for an event",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventAudit,
}

var (
	evTriggeredBy string
	evDepartment  string
	evJobTitle    string
	evManager     string
	evTemplate    string
	evApps        []string
	evDate        string
	evEmployee    string

	evPrevDepartment string
	evPrevJobTitle   string
	evPrevManager    string
	evPrevTemplate   string
	evRemoveApps     []string

	evTermination string
	evTransferTo  string
	evImmediate   bool

	evFilterUser   string
	evFilterType   string
	evFilterStatus string
	evLimit        int
)

func init() {
	eventCmd.AddCommand(eventJoinerCmd, eventMoverCmd, eventLeaverCmd, eventListCmd,
		eventShowCmd, eventResumeCmd, eventCancelCmd, eventAuditCmd)

	hostname, _ := os.Hostname()
	defaultActor := fmt.Sprintf("cli@%s", hostname)
	for _, c := range []*cobra.Command{eventJoinerCmd, eventMoverCmd, eventLeaverCmd} {
		c.Flags().StringVar(&evTriggeredBy, "by", defaultActor, "Actor recorded as triggering the event")
		c.Flags().StringVar(&evDate, "date", "", "Effective date (YYYY-MM-DD or RFC3339, default now)")
	}

	f := eventJoinerCmd.Flags()
	f.StringVar(&evDepartment, "department", "", "Department")
	f.StringVar(&evJobTitle, "title", "", "Job title")
	f.StringVar(&evManager, "manager", "", "Manager user ID")
	f.StringVar(&evTemplate, "template", "", "Role template ID")
	f.StringSliceVar(&evApps, "apps", nil, "Additional app IDs to provision")
	f.StringVar(&evEmployee, "employee-type", "", "Employee type (e.g. full_time, contractor)")

	f = eventMoverCmd.Flags()
	f.StringVar(&evPrevDepartment, "from-department", "", "Previous department")
	f.StringVar(&evDepartment, "department", "", "New department")
	f.StringVar(&evPrevJobTitle, "from-title", "", "Previous job title")
	f.StringVar(&evJobTitle, "title", "", "New job title")
	f.StringVar(&evPrevManager, "from-manager", "", "Previous manager user ID")
	f.StringVar(&evManager, "manager", "", "New manager user ID")
	f.StringVar(&evPrevTemplate, "from-template", "", "Previous role template ID")
	f.StringVar(&evTemplate, "template", "", "New role template ID")
	f.StringSliceVar(&evApps, "add-apps", nil, "App IDs to grant")
	f.StringSliceVar(&evRemoveApps, "remove-apps", nil, "App IDs to revoke")

	f = eventLeaverCmd.Flags()
	f.StringVar(&evDepartment, "department", "", "Department the user is leaving")
	f.StringVar(&evTermination, "termination", string(models.TerminationVoluntary),
		"Termination type (voluntary, involuntary, retirement, contract_end)")
	f.StringVar(&evTransferTo, "transfer-to", "", "User ID that receives ownership of owned resources")
	f.BoolVar(&evImmediate, "immediate", false, "Revoke access now instead of on the last working day")

	f = eventListCmd.Flags()
	f.StringVar(&evFilterUser, "user", "", "Filter by user ID")
	f.StringVar(&evFilterType, "type", "", "Filter by type (joiner, mover, leaver)")
	f.StringVar(&evFilterStatus, "status", "", "Filter by status (pending, in_progress, completed, failed, cancelled)")
	f.IntVar(&evLimit, "limit", 0, "Maximum number of events")
}

// parseDate accepts a calendar date or an RFC3339 timestamp. Empty means now.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}

func submitEvent(kind, userID string, md models.Metadata) error {
	body := map[string]interface{}{
		"userId":      userID,
		"triggeredBy": evTriggeredBy,
		"metadata":    md,
	}
	resp, err := apiPost("/api/events/"+kind, body)
	if err != nil {
		return err
	}

	var ev models.LifecycleEvent
	if err := json.Unmarshal(resp, &ev); err != nil {
		return err
	}
	printEvent(&ev)
	return nil
}

func runEventJoiner(cmd *cobra.Command, args []string) error {
	start, err := parseDate(evDate)
	if err != nil {
		return err
	}
	return submitEvent("joiner", args[0], models.JoinerMetadata{
		Department:      evDepartment,
		JobTitle:        evJobTitle,
		Manager:         evManager,
		RoleTemplateID:  evTemplate,
		AppsToProvision: evApps,
		StartDate:       start,
		EmployeeType:    evEmployee,
	})
}

func runEventMover(cmd *cobra.Command, args []string) error {
	effective, err := parseDate(evDate)
	if err != nil {
		return err
	}
	return submitEvent("mover", args[0], models.MoverMetadata{
		PreviousDepartment:     evPrevDepartment,
		NewDepartment:          evDepartment,
		PreviousJobTitle:       evPrevJobTitle,
		NewJobTitle:            evJobTitle,
		PreviousManager:        evPrevManager,
		NewManager:             evManager,
		PreviousRoleTemplateID: evPrevTemplate,
		NewRoleTemplateID:      evTemplate,
		AppsToAdd:              evApps,
		AppsToRemove:           evRemoveApps,
		EffectiveDate:          effective,
	})
}

func runEventLeaver(cmd *cobra.Command, args []string) error {
	lastDay, err := parseDate(evDate)
	if err != nil {
		return err
	}
	return submitEvent("leaver", args[0], models.LeaverMetadata{
		Department:          evDepartment,
		LastWorkingDay:      lastDay,
		TerminationType:     models.TerminationType(evTermination),
		TransferTo:          evTransferTo,
		ImmediateRevocation: evImmediate,
	})
}

func runEventList(cmd *cobra.Command, args []string) error {
	q := url.Values{}
	if evFilterUser != "" {
		q.Set("user", evFilterUser)
	}
	if evFilterType != "" {
		q.Set("type", evFilterType)
	}
	if evFilterStatus != "" {
		q.Set("status", evFilterStatus)
	}
	if evLimit > 0 {
		q.Set("limit", fmt.Sprint(evLimit))
	}
	path := "/api/events/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := apiGet(path)
	if err != nil {
		return err
	}

	var events []models.LifecycleEvent
	if err := json.Unmarshal(resp, &events); err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No events found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tUSER\tSTATUS\tEFFECTIVE\tTASKS")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			truncateID(ev.ID), ev.EventType, truncate(ev.UserName, 30), ev.Status,
			ev.EffectiveDate.Format("2006-01-02"), len(ev.Tasks))
	}
	w.Flush()
	return nil
}

func runEventShow(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/api/events/" + url.PathEscape(args[0]))
	if err != nil {
		return err
	}

	var ev models.LifecycleEvent
	if err := json.Unmarshal(resp, &ev); err != nil {
		return err
	}
	printEvent(&ev)
	return nil
}

func runEventAction(action string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		resp, err := apiPost("/api/events/"+url.PathEscape(args[0])+"/"+action, nil)
		if err != nil {
			return err
		}

		var ev models.LifecycleEvent
		if err := json.Unmarshal(resp, &ev); err != nil {
			return err
		}
		printEvent(&ev)
		return nil
	}
}

func runEventAudit(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/api/events/" + url.PathEscape(args[0]) + "/audit")
	if err != nil {
		return err
	}

	var entries []models.PDREntry
	if err := json.Unmarshal(resp, &entries); err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No audit records found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tINPUTS\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format(time.RFC3339), e.Action, e.Outcome, truncateID(e.InputsHash), e.Details)
	}
	w.Flush()
	return nil
}

func printEvent(ev *models.LifecycleEvent) {
	fmt.Printf("ID:           %s\n", ev.ID)
	fmt.Printf("Type:         %s\n", ev.EventType)
	fmt.Printf("User:         %s <%s> (%s)\n", ev.UserName, ev.UserEmail, ev.UserID)
	fmt.Printf("Status:       %s\n", ev.Status)
	fmt.Printf("Triggered By: %s\n", ev.TriggeredBy)
	fmt.Printf("Triggered:    %s\n", ev.TriggeredAt.Format(time.RFC3339))
	fmt.Printf("Effective:    %s\n", ev.EffectiveDate.Format(time.RFC3339))
	if ev.CompletedAt != nil {
		fmt.Printf("Completed:    %s\n", ev.CompletedAt.Format(time.RFC3339))
	}
	if ev.Error != "" {
		fmt.Printf("Error:        %s\n", ev.Error)
	}

	if len(ev.Tasks) == 0 {
		return
	}
	fmt.Println("\nTasks:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for i, t := range ev.Tasks {
		line := fmt.Sprintf("  %d.\t%s\t%s", i+1, t.Status, t.Description)
		if t.Error != "" {
			line += "\t" + t.Error
		}
		fmt.Fprintln(w, line)
	}
	w.Flush()
}

// --- Helpers ---

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
