package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sampledb/sampledb/pkg/fedlog"
	"github.com/sampledb/sampledb/pkg/store"
)

var logComponent string

var logCmd = &cobra.Command{
	Use:   "log <kind> <id>",
	Short: "Show the federation log of an entity, newest first",
	Long: `Log lists the federation log entries of a local entity. Kinds accept the
plural table name or the singular name, e.g. "objects" or "object".
Use "log component <uuid>" for everything exchanged with one component.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var entries []fedlog.Entry
		kind, ok := store.ParseKind(args[0])
		switch {
		case !ok:
			return fmt.Errorf("unknown entity kind %q", args[0])
		case kind == store.KindComponent:
			comp, err := a.component(args[1])
			if err != nil {
				return err
			}
			entries, err = a.engine.Log().EntriesForComponent(comp.ID)
			if err != nil {
				return err
			}
		default:
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[1])
			}
			var componentID *int64
			if logComponent != "" {
				comp, err := a.component(logComponent)
				if err != nil {
					return err
				}
				componentID = &comp.ID
			}
			entries, err = a.engine.Log().EntriesFor(kind, id, componentID)
			if err != nil {
				return err
			}
		}

		if outputFormat() != "table" {
			return printOutput(cmd.OutOrStdout(), map[string]any{"entries": entries})
		}
		rows := make([][]string, len(entries))
		for i, e := range entries {
			user := ""
			if e.UserID != nil {
				user = strconv.FormatInt(*e.UserID, 10)
			}
			rows[i] = []string{
				e.UTCDatetime.UTC().Format("2006-01-02 15:04:05"),
				string(e.Type),
				strconv.FormatInt(e.EntityID, 10),
				strconv.FormatInt(e.ComponentID, 10),
				user,
			}
		}
		printTable(cmd.OutOrStdout(), []string{"datetime", "type", "entity", "component", "user"}, rows)
		return nil
	},
}

func init() {
	logCmd.Flags().StringVar(&logComponent, "component", "", "Only show entries for this component UUID")
}
