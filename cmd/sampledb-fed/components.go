package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sampledb/sampledb/pkg/api"
)

var (
	componentName        string
	componentAddress     string
	componentDescription string
)

var componentsCmd = &cobra.Command{
	Use:     "components",
	Aliases: []string{"component"},
	Short:   "Manage peer components",
}

var componentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered components",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		components, err := a.engine.Store().ListComponents()
		if err != nil {
			return err
		}
		if outputFormat() != "table" {
			items := make([]api.ComponentResponse, len(components))
			for i := range components {
				items[i] = api.ComponentToResponse(&components[i])
			}
			return printOutput(cmd.OutOrStdout(), map[string]any{"components": items})
		}
		rows := make([][]string, len(components))
		for i, c := range components {
			rows[i] = []string{
				strconv.FormatInt(c.ID, 10),
				c.UUID,
				derefString(c.Name),
				derefString(c.Address),
				formatTime(c.LastSyncTimestamp),
			}
		}
		printTable(cmd.OutOrStdout(), []string{"id", "uuid", "name", "address", "last sync"}, rows)
		return nil
	},
}

var componentsAddCmd = &cobra.Command{
	Use:   "add <uuid>",
	Short: "Register a peer component",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.engine.Store().AddComponent(args[0], optional(componentName), optional(componentAddress), componentDescription)
		if err != nil {
			return err
		}
		if outputFormat() != "table" {
			return printOutput(cmd.OutOrStdout(), api.ComponentToResponse(c))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "component %s registered with id %d\n", c.UUID, c.ID)
		return nil
	},
}

func init() {
	componentsAddCmd.Flags().StringVar(&componentName, "name", "", "Display name")
	componentsAddCmd.Flags().StringVar(&componentAddress, "address", "", "Base URL of the component")
	componentsAddCmd.Flags().StringVar(&componentDescription, "description", "", "Free text description")

	componentsCmd.AddCommand(componentsListCmd)
	componentsCmd.AddCommand(componentsAddCmd)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
