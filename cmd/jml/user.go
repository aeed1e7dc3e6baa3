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

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage directory users",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a user to the directory",
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List directory users",
	RunE:  runUserList,
}

var userAccessCmd = &cobra.Command{
	Use:   "access [user-id]",
	Short: "List a user's app access",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAccess,
}

var userDeactivateCmd = &cobra.Command{
	Use:   "deactivate [user-id]",
	Short: "Mark a user inactive so detection proposes a leaver event",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserDeactivate,
}

var (
	userName       string
	userEmail      string
	userDepartment string
	userJobTitle   string
	userManager    string
)

func init() {
	userCmd.AddCommand(userAddCmd, userListCmd, userAccessCmd, userDeactivateCmd)

	userAddCmd.Flags().StringVar(&userName, "name", "", "Full name (required)")
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
	userAddCmd.Flags().StringVar(&userDepartment, "department", "", "Department")
	userAddCmd.Flags().StringVar(&userJobTitle, "title", "", "Job title")
	userAddCmd.Flags().StringVar(&userManager, "manager", "", "Manager user ID")
	userAddCmd.MarkFlagRequired("name")
	userAddCmd.MarkFlagRequired("email")
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	resp, err := apiPost("/api/users/", models.User{
		Name:       userName,
		Email:      userEmail,
		Department: userDepartment,
		JobTitle:   userJobTitle,
		Manager:    userManager,
	})
	if err != nil {
		return err
	}

	var u models.User
	if err := json.Unmarshal(resp, &u); err != nil {
		return err
	}
	fmt.Printf("Created user: %s\n", u.ID)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/api/users/")
	if err != nil {
		return err
	}

	var users []models.User
	if err := json.Unmarshal(resp, &users); err != nil {
		return err
	}

	if len(users) == 0 {
		fmt.Println("No users found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tDEPARTMENT\tSTATUS")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", truncateID(u.ID), truncate(u.Name, 30), u.Email, u.Department, u.Status)
	}
	w.Flush()
	return nil
}

func runUserAccess(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/api/users/" + url.PathEscape(args[0]) + "/access")
	if err != nil {
		return err
	}

	var access []models.UserAppAccess
	if err := json.Unmarshal(resp, &access); err != nil {
		return err
	}

	if len(access) == 0 {
		fmt.Println("No app access")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "APP\tACCESS\tGRANTED BY\tGRANTED")
	for _, a := range access {
		app := a.AppName
		if app == "" {
			app = a.AppID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", app, a.AccessType, a.GrantedBy, a.GrantedAt.Format("2006-01-02"))
	}
	w.Flush()
	return nil
}

func runUserDeactivate(cmd *cobra.Command, args []string) error {
	inactive := models.UserStatusInactive
	if _, err := apiPatch("/api/users/"+url.PathEscape(args[0]), map[string]interface{}{
		"status": inactive,
	}); err != nil {
		return err
	}
	fmt.Printf("Deactivated user %s\n", args[0])
	return nil
}
